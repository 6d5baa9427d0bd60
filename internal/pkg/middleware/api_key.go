package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/usercontext"
)

// AdminAuthConfig configures RequireAdmin.
type AdminAuthConfig struct {
	// StaticKey is the ADMIN_API_KEY break-glass credential; empty disables it.
	StaticKey string
	Users     repository.UserRepository
	Roles     repository.RoleRepository
}

// RequireAdmin authenticates admin API requests. It accepts, in order, the
// static admin key, a per-user API key (X-API-Key or Bearer) or HTTP Basic
// credentials. Users additionally need the admin role.
func RequireAdmin(cfg AdminAuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey := extractAPIKeyFromHeader(c); apiKey != "" {
			if cfg.StaticKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.StaticKey)) == 1 {
				usercontext.Set(c, usercontext.UserContext{
					IsLoggedIn: true,
					IsAdmin:    true,
					Roles:      []string{models.RoleAdmin},
					AuthMethod: usercontext.AuthMethodStaticKey,
				})
				return c.Next()
			}
			return authenticateUser(c, cfg, usercontext.AuthMethodAPIKey, func() (*models.User, error) {
				return cfg.Users.GetByAPIKeyHash(models.HashAPIKey(apiKey))
			})
		}

		if email, password, ok := extractBasicAuth(c); ok {
			return authenticateUser(c, cfg, usercontext.AuthMethodBasic, func() (*models.User, error) {
				user, err := cfg.Users.GetByEmail(email)
				if err != nil {
					return nil, err
				}
				if !user.CheckPassword(password) {
					return nil, gorm.ErrRecordNotFound
				}
				return user, nil
			})
		}

		c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="admin"`)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing credentials"})
	}
}

func authenticateUser(c *fiber.Ctx, cfg AdminAuthConfig, method string, lookup func() (*models.User, error)) error {
	user, err := lookup()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
		}
		log.Errorf("[AdminAuth] credential lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Credential verification failed"})
	}

	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
	}

	roles, err := cfg.Roles.RoleNamesForUser(user.ID)
	if err != nil {
		log.Errorf("[AdminAuth] role lookup for user %d failed: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Role lookup failed"})
	}
	isAdmin := false
	for _, r := range roles {
		if r == models.RoleAdmin {
			isAdmin = true
			break
		}
	}
	if !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin role required"})
	}

	if method == usercontext.AuthMethodAPIKey {
		// Refresh last-used timestamp best-effort.
		if err := cfg.Users.TouchAPIKey(user.ID, time.Now()); err != nil {
			log.Warnf("[AdminAuth] failed to update api key usage timestamp for user %d: %v", user.ID, err)
		}
	}

	usercontext.Set(c, usercontext.UserContext{
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		IsLoggedIn: true,
		IsAdmin:    true,
		Roles:      roles,
		AuthMethod: method,
	})
	return c.Next()
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func extractBasicAuth(c *fiber.Ctx) (string, string, bool) {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) <= 6 || !strings.EqualFold(auth[:6], "basic ") {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[6:]))
	if err != nil {
		return "", "", false
	}
	email, password, found := strings.Cut(string(raw), ":")
	if !found || email == "" {
		return "", "", false
	}
	return email, password, true
}
