package usercontext

import "github.com/gofiber/fiber/v2"

const (
	AuthMethodStaticKey = "static_key"
	AuthMethodAPIKey    = "api_key"
	AuthMethodBasic     = "basic"
)

// UserContext describes the authenticated operator of an admin request
type UserContext struct {
	UserID     uint     `json:"user_id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	IsLoggedIn bool     `json:"is_logged_in"`
	IsAdmin    bool     `json:"is_admin"`
	Roles      []string `json:"roles"`
	AuthMethod string   `json:"auth_method"`
}

// Set stores the context and mirrors the common fields into Locals.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyFromProtected, uc.IsLoggedIn)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyUsername, uc.Name)
	c.Locals(KeyIsAdmin, uc.IsAdmin)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return uc
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// Actor names the caller for audit columns such as backup_logs.triggered_by.
func Actor(c *fiber.Ctx) string {
	uc := GetUserContext(c)
	switch {
	case uc.Email != "":
		return uc.Email
	case uc.AuthMethod != "":
		return uc.AuthMethod
	default:
		return "anonymous"
	}
}
