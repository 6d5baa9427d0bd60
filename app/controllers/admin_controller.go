package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/backup"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/cache"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/metrics"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/usercontext"
)

const (
	cacheKeyRoles = "roles:all"
	cacheKeyStats = "stats:overview"
)

// AdminUser is a user row as returned by the admin API.
type AdminUser struct {
	models.User
	Roles []string `json:"roles"`
}

// StatsOverview is the cached admin dashboard summary.
type StatsOverview struct {
	Subscribers       int64            `json:"subscribers"`
	Purchasers        int64            `json:"purchasers"`
	PaymentsByStatus  map[string]int64 `json:"payments_by_status"`
	RevenueByCurrency map[string]int64 `json:"revenue_by_currency"`
	Users             int64            `json:"users"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

type assignRoleRequest struct {
	Role string `json:"role" form:"role"`
}

type maintenanceRequest struct {
	Operation string `json:"operation" form:"operation"`
}

// AdminController handles the admin JSON API using the repository pattern
type AdminController struct {
	deps *Dependencies
}

// NewAdminController creates a new admin controller with its dependencies
func NewAdminController(deps *Dependencies) *AdminController {
	return &AdminController{deps: deps}
}

// HandleUsers lists users with their role names. An optional q filters
// by name or email.
func (ac *AdminController) HandleUsers(c *fiber.Ctx) error {
	page, perPage := pagination(c)
	offset := (page - 1) * perPage

	users, total, err := ac.deps.Repos.User.Search(strings.TrimSpace(c.Query("q")), offset, perPage)
	if err != nil {
		return ac.handleError(c, "Failed to list users", err)
	}

	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	roleNames, err := ac.deps.Repos.Role.RoleNamesForUsers(ids)
	if err != nil {
		return ac.handleError(c, "Failed to load user roles", err)
	}

	out := make([]AdminUser, len(users))
	for i, u := range users {
		roles := roleNames[u.ID]
		if roles == nil {
			roles = []string{}
		}
		out[i] = AdminUser{User: u, Roles: roles}
	}

	return c.JSON(fiber.Map{
		"users":      out,
		"pagination": paginationMeta(page, perPage, total),
	})
}

func (ac *AdminController) HandleRoles(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	roles, err := cache.Cached(ctx, ac.deps.Cache, cacheKeyRoles, func(context.Context) ([]models.Role, error) {
		return ac.deps.Repos.Role.List()
	})
	if err != nil {
		return ac.handleError(c, "Failed to list roles", err)
	}
	return c.JSON(fiber.Map{"roles": roles})
}

// HandleAssignRole grants a role to a user. Assigning an already held
// role succeeds without creating a second row.
func (ac *AdminController) HandleAssignRole(c *fiber.Ctx) error {
	user, ok, err := ac.lookupUser(c)
	if !ok {
		return err
	}

	var req assignRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}
	roleName := strings.ToLower(strings.TrimSpace(req.Role))
	if roleName == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_role", "Role is required")
	}

	role, err := ac.deps.Repos.Role.GetByName(roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "role_not_found", "Role not found")
	}
	if err != nil {
		return ac.handleError(c, "Failed to load role", err)
	}

	created, err := ac.deps.Repos.Role.Assign(user.ID, role.ID)
	if err != nil {
		return ac.handleError(c, "Failed to assign role", err)
	}
	ac.invalidate("roles:")
	log.Infof("[Admin] %s assigned role %s to user %d (created=%t)", usercontext.Actor(c), role.Name, user.ID, created)

	return c.JSON(fiber.Map{"ok": true, "user_id": user.ID, "role": role.Name, "created": created})
}

func (ac *AdminController) HandleRemoveRole(c *fiber.Ctx) error {
	user, ok, err := ac.lookupUser(c)
	if !ok {
		return err
	}

	role, err := ac.deps.Repos.Role.GetByName(strings.ToLower(strings.TrimSpace(c.Params("role"))))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "role_not_found", "Role not found")
	}
	if err != nil {
		return ac.handleError(c, "Failed to load role", err)
	}

	existed, err := ac.deps.Repos.Role.Remove(user.ID, role.ID)
	if err != nil {
		return ac.handleError(c, "Failed to remove role", err)
	}
	if !existed {
		return jsonError(c, fiber.StatusNotFound, "assignment_not_found", "User does not have this role")
	}
	ac.invalidate("roles:")
	log.Infof("[Admin] %s removed role %s from user %d", usercontext.Actor(c), role.Name, user.ID)

	return c.JSON(fiber.Map{"ok": true, "user_id": user.ID, "role": role.Name})
}

func (ac *AdminController) HandleSubscribers(c *fiber.Ctx) error {
	page, perPage := pagination(c)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	subs, total, err := ac.deps.Subscriptions.List(ctx, page, perPage)
	if err != nil {
		return ac.handleError(c, "Failed to list subscribers", err)
	}
	return c.JSON(fiber.Map{
		"subscribers": subs,
		"pagination":  paginationMeta(page, perPage, total),
	})
}

// HandleStats returns the overview served through the query cache.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stats, err := cache.Cached(ctx, ac.deps.Cache, cacheKeyStats, func(context.Context) (StatsOverview, error) {
		return ac.buildStats()
	})
	if err != nil {
		return ac.handleError(c, "Failed to build statistics", err)
	}
	return c.JSON(stats)
}

func (ac *AdminController) buildStats() (StatsOverview, error) {
	var s StatsOverview
	var err error
	repos := ac.deps.Repos

	if s.Subscribers, err = repos.Subscriber.Count(); err != nil {
		return s, err
	}
	if s.Purchasers, err = repos.Subscriber.CountPurchased(); err != nil {
		return s, err
	}
	if s.PaymentsByStatus, err = repos.Payment.CountByStatus(); err != nil {
		return s, err
	}
	if s.RevenueByCurrency, err = repos.Payment.RevenueByCurrency(); err != nil {
		return s, err
	}
	if s.Users, err = repos.User.Count(); err != nil {
		return s, err
	}
	s.GeneratedAt = time.Now().UTC()
	return s, nil
}

func (ac *AdminController) HandleBackup(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	entry, err := ac.deps.Backup.RunBackup(ctx, usercontext.Actor(c))
	if err != nil {
		metrics.MaintenanceRun(models.BackupOperationBackup, models.BackupStatusFailed)
		log.Errorf("[Admin] backup failed: %v", err)
		if entry != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "backup_failed", "message": "Backup failed", "backup": entry})
		}
		return internalError(c)
	}
	metrics.MaintenanceRun(models.BackupOperationBackup, models.BackupStatusSuccess)
	return c.JSON(fiber.Map{"ok": true, "backup": entry})
}

func (ac *AdminController) HandleBackups(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "0"))

	logs, err := ac.deps.Backup.ListLogs(c.Context(), limit)
	if err != nil {
		return ac.handleError(c, "Failed to list backups", err)
	}
	return c.JSON(fiber.Map{"backups": logs})
}

func (ac *AdminController) HandleMaintenance(c *fiber.Ctx) error {
	var req maintenanceRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}
	op := strings.TrimSpace(req.Operation)
	if !backup.IsMaintenanceOperation(op) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "unknown_operation",
			"message":    "Unknown maintenance operation",
			"operations": backup.MaintenanceOperations,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	entry, err := ac.deps.Backup.RunMaintenance(ctx, op, usercontext.Actor(c))
	if err != nil {
		metrics.MaintenanceRun(op, models.BackupStatusFailed)
		log.Errorf("[Admin] maintenance %s failed: %v", op, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "maintenance_failed", "message": "Maintenance operation failed", "log": entry})
	}
	metrics.MaintenanceRun(op, models.BackupStatusSuccess)
	return c.JSON(fiber.Map{"ok": true, "log": entry})
}

// lookupUser resolves the :id route parameter. When ok is false the
// response has already been written and err must be returned.
func (ac *AdminController) lookupUser(c *fiber.Ctx) (*models.User, bool, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, false, jsonError(c, fiber.StatusBadRequest, "invalid_user_id", "Invalid user id")
	}
	user, err := ac.deps.Repos.User.GetByID(uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, jsonError(c, fiber.StatusNotFound, "user_not_found", "User not found")
	}
	if err != nil {
		return nil, false, ac.handleError(c, "Failed to load user", err)
	}
	return user, true, nil
}

func (ac *AdminController) invalidate(pattern string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ac.deps.Cache.Clear(ctx, pattern); err != nil {
		log.Warnf("[Admin] cache invalidation for %q failed: %v", pattern, err)
	}
}

// handleError logs the cause and hides it from the client
func (ac *AdminController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Errorf("[Admin] %s: %v", message, err)
	return internalError(c)
}
