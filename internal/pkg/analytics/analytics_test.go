package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukex/mixpanel"
	"github.com/savaki/amplitude-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAmplitude struct {
	events []amplitude.Event
	err    error
}

func (f *fakeAmplitude) Publish(e amplitude.Event) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeMixpanel struct {
	mixpanel.Mixpanel
	tracked []string
	err     error
}

func (f *fakeMixpanel) Track(distinctId, eventName string, e *mixpanel.Event) error {
	f.tracked = append(f.tracked, distinctId+":"+eventName)
	return f.err
}

func TestValidateEvent(t *testing.T) {
	assert.NoError(t, ValidateEvent(Event{Name: "cta_clicked"}))
	assert.ErrorIs(t, ValidateEvent(Event{Name: "  "}), ErrInvalidEvent)
	assert.ErrorIs(t, ValidateEvent(Event{Name: strings.Repeat("x", MaxEventNameLength+1)}), ErrInvalidEvent)

	props := make(map[string]interface{}, MaxPropertyCount+1)
	for i := 0; i <= MaxPropertyCount; i++ {
		props[strings.Repeat("p", i+1)] = i
	}
	assert.ErrorIs(t, ValidateEvent(Event{Name: "ok", Properties: props}), ErrInvalidEvent)
}

func TestMultiTrackerForwardsToBothProviders(t *testing.T) {
	amp := &fakeAmplitude{}
	mp := &fakeMixpanel{}
	tr := &MultiTracker{amplitude: amp, mixpanel: mp}

	err := tr.Track(context.Background(), Event{Name: EventSubscribed, DistinctID: "a@example.com", Properties: map[string]interface{}{"source": "website"}})
	require.NoError(t, err)

	require.Len(t, amp.events, 1)
	assert.Equal(t, "a@example.com", amp.events[0].UserId)
	assert.Equal(t, EventSubscribed, amp.events[0].EventType)
	assert.Equal(t, []string{"a@example.com:subscribed"}, mp.tracked)
}

func TestMultiTrackerSwallowsProviderErrors(t *testing.T) {
	amp := &fakeAmplitude{err: errors.New("amplitude down")}
	mp := &fakeMixpanel{err: errors.New("mixpanel down")}
	tr := &MultiTracker{amplitude: amp, mixpanel: mp}

	assert.NoError(t, tr.Track(context.Background(), Event{Name: "page_view"}))
	assert.Equal(t, []string{"anonymous:page_view"}, mp.tracked)
}

func TestMultiTrackerRejectsInvalidEventBeforeForwarding(t *testing.T) {
	amp := &fakeAmplitude{}
	tr := &MultiTracker{amplitude: amp}

	assert.ErrorIs(t, tr.Track(context.Background(), Event{}), ErrInvalidEvent)
	assert.Empty(t, amp.events)
}

func TestNoopValidates(t *testing.T) {
	assert.NoError(t, Noop().Track(context.Background(), Event{Name: "x"}))
	assert.Error(t, Noop().Track(context.Background(), Event{}))
}

type blockingMixpanel struct {
	mixpanel.Mixpanel
	release chan struct{}
}

func (b *blockingMixpanel) Track(string, string, *mixpanel.Event) error {
	<-b.release
	return nil
}

func TestMultiTrackerHonorsContextDeadline(t *testing.T) {
	mp := &blockingMixpanel{release: make(chan struct{})}
	defer close(mp.release)
	tr := &MultiTracker{mixpanel: mp}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.NoError(t, tr.Track(ctx, Event{Name: "slow"}))
	assert.Less(t, time.Since(start), 2*time.Second)
}

type closingAmplitude struct {
	fakeAmplitude
	closed bool
}

func (c *closingAmplitude) Close() {
	c.closed = true
}

func TestMultiTrackerCloseFlushesAmplitude(t *testing.T) {
	amp := &closingAmplitude{}
	tr := &MultiTracker{amplitude: amp}

	tr.Close()
	assert.True(t, amp.closed)
}
