package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// Global controller instances
var (
	adminController     *AdminController
	subscribeController *SubscribeController
	checkoutController  *CheckoutController
	pageController      *PageController
	globalDeps          *Dependencies
)

// InitializeControllers wires the global controller instances used by the router
func InitializeControllers(deps *Dependencies) {
	globalDeps = deps
	adminController = NewAdminController(deps)
	subscribeController = NewSubscribeController(deps)
	checkoutController = NewCheckoutController(deps)
	pageController = NewPageController(deps)
}

// GetAdminController returns the global admin controller instance
func GetAdminController() *AdminController {
	if adminController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return adminController
}

func GetSubscribeController() *SubscribeController {
	if subscribeController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return subscribeController
}

func GetCheckoutController() *CheckoutController {
	if checkoutController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return checkoutController
}

func GetPageController() *PageController {
	if pageController == nil {
		panic("Controllers not initialized. Call InitializeControllers first.")
	}
	return pageController
}

// Adapter functions to keep the router free of controller wiring

// HandleAdminUsers - Adapter for user listing
func HandleAdminUsers(c *fiber.Ctx) error {
	return GetAdminController().HandleUsers(c)
}

// HandleAdminRoles - Adapter for role listing
func HandleAdminRoles(c *fiber.Ctx) error {
	return GetAdminController().HandleRoles(c)
}

// HandleAdminAssignRole - Adapter for role assignment
func HandleAdminAssignRole(c *fiber.Ctx) error {
	return GetAdminController().HandleAssignRole(c)
}

// HandleAdminRemoveRole - Adapter for role removal
func HandleAdminRemoveRole(c *fiber.Ctx) error {
	return GetAdminController().HandleRemoveRole(c)
}

// HandleAdminSubscribers - Adapter for subscriber listing
func HandleAdminSubscribers(c *fiber.Ctx) error {
	return GetAdminController().HandleSubscribers(c)
}

// HandleAdminStats - Adapter for the statistics overview
func HandleAdminStats(c *fiber.Ctx) error {
	return GetAdminController().HandleStats(c)
}

// HandleAdminBackup - Adapter for triggering a backup
func HandleAdminBackup(c *fiber.Ctx) error {
	return GetAdminController().HandleBackup(c)
}

// HandleAdminBackups - Adapter for the backup log
func HandleAdminBackups(c *fiber.Ctx) error {
	return GetAdminController().HandleBackups(c)
}

// HandleAdminMaintenance - Adapter for maintenance operations
func HandleAdminMaintenance(c *fiber.Ctx) error {
	return GetAdminController().HandleMaintenance(c)
}

func HandleSubscribe(c *fiber.Ctx) error {
	return GetSubscribeController().HandleSubscribe(c)
}

func HandleUnsubscribe(c *fiber.Ctx) error {
	return GetSubscribeController().HandleUnsubscribe(c)
}

func HandleSubscriberCount(c *fiber.Ctx) error {
	return GetSubscribeController().HandleSubscriberCount(c)
}

func HandleCreateCheckout(c *fiber.Ctx) error {
	return GetCheckoutController().HandleCreateCheckout(c)
}

func HandleCheckoutSession(c *fiber.Ctx) error {
	return GetCheckoutController().HandleSessionStatus(c)
}

func HandleStripeWebhook(c *fiber.Ctx) error {
	return GetCheckoutController().HandleStripeWebhook(c)
}

func HandleTrackEvent(c *fiber.Ctx) error {
	return HandleTrackEventWith(globalDeps)(c)
}

func HandleHealth(c *fiber.Ctx) error {
	return HandleHealthWith(globalDeps)(c)
}

func HandleIndex(c *fiber.Ctx) error {
	return GetPageController().HandleIndex(c)
}

func HandlePricing(c *fiber.Ctx) error {
	return GetPageController().HandlePricing(c)
}

func HandleCheckoutSuccess(c *fiber.Ctx) error {
	return GetPageController().HandleCheckoutSuccess(c)
}

func HandleCheckoutCancel(c *fiber.Ctx) error {
	return GetPageController().HandleCheckoutCancel(c)
}

func HandleUnsubscribeLink(c *fiber.Ctx) error {
	return GetPageController().HandleUnsubscribeLink(c)
}
