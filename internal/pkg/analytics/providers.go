package analytics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/mixpanel"
	"github.com/gofiber/fiber/v2/log"
	"github.com/savaki/amplitude-go"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

// MixpanelTimeout bounds a single mixpanel request.
const MixpanelTimeout = 5 * time.Second

type amplitudePublisher interface {
	Publish(e amplitude.Event) error
}

// MultiTracker fans an event out to every configured provider.
type MultiTracker struct {
	amplitude amplitudePublisher
	mixpanel  mixpanel.Mixpanel
}

func NewMultiTracker(amplitudeKey, mixpanelKey string) *MultiTracker {
	t := &MultiTracker{}
	if amplitudeKey != "" {
		t.amplitude = amplitude.New(amplitudeKey)
	}
	if mixpanelKey != "" {
		t.mixpanel = mixpanel.NewFromClient(&http.Client{Timeout: MixpanelTimeout}, mixpanelKey, "")
	}
	return t
}

var (
	globalTracker     Tracker
	globalTrackerOnce sync.Once
)

// GetTracker returns the process-wide tracker built from AMPLITUDE_API_KEY
// and MIXPANEL_API_KEY, or a no-op tracker when neither is set.
func GetTracker() Tracker {
	globalTrackerOnce.Do(func() {
		amplitudeKey := env.GetEnv("AMPLITUDE_API_KEY", "")
		mixpanelKey := env.GetEnv("MIXPANEL_API_KEY", "")
		if amplitudeKey == "" && mixpanelKey == "" {
			log.Info("[Analytics] no provider keys configured, events are dropped")
			globalTracker = Noop()
			return
		}
		globalTracker = NewMultiTracker(amplitudeKey, mixpanelKey)
	})
	return globalTracker
}

// Close flushes buffered amplitude events. Call it once on shutdown.
func (t *MultiTracker) Close() {
	switch c := t.amplitude.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			log.Warnf("[Analytics] amplitude flush failed: %v", err)
		}
	case interface{ Close() }:
		c.Close()
	}
}

// Close flushes the process-wide tracker if one was built.
func Close() {
	if mt, ok := globalTracker.(*MultiTracker); ok {
		mt.Close()
	}
}

func (t *MultiTracker) Track(ctx context.Context, ev Event) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}

	distinctID := ev.DistinctID
	if distinctID == "" {
		distinctID = "anonymous"
	}
	props := ev.Properties
	if props == nil {
		props = map[string]interface{}{}
	}

	if t.amplitude != nil {
		aev := amplitude.Event{
			UserId:          distinctID,
			EventType:       ev.Name,
			EventProperties: props,
			UserProperties:  ev.UserProperties,
		}
		if err := t.amplitude.Publish(aev); err != nil {
			log.Warnf("[Analytics] Can't publish %q to amplitude: %v", ev.Name, err)
		}
	}

	if t.mixpanel != nil {
		const ip = "0" // don't auto-detect
		mev := &mixpanel.Event{
			IP:         ip,
			Properties: props,
		}
		done := make(chan error, 1)
		go func() {
			done <- t.mixpanel.Track(distinctID, ev.Name, mev)
		}()
		select {
		case err := <-done:
			if err != nil {
				log.Warnf("[Analytics] Can't publish %q to mixpanel: %v", ev.Name, err)
			}
		case <-ctx.Done():
			log.Warnf("[Analytics] mixpanel publish of %q abandoned: %v", ev.Name, ctx.Err())
		}
	}
	return nil
}
