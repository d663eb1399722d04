package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/subscription"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/usercontext"
)

var (
	planService         *subscription.PlanService
	subscriptionService *subscription.Service
	userRepo            repository.UserRepository

	validate = validator.New()
)

// SetSubscriptionServices injects the services used by the subscription
// handlers. Called once during application startup.
func SetSubscriptionServices(plans *subscription.PlanService, subs *subscription.Service, users repository.UserRepository) {
	planService = plans
	subscriptionService = subs
	userRepo = users
}

// planResponse is the public shape of a catalog entry.
type planResponse struct {
	Code          string  `json:"code"`
	BillingPeriod string  `json:"billing_period"`
	Price         float64 `json:"price"`
	OldPrice      float64 `json:"old_price,omitempty"`
	Currency      string  `json:"currency"`
}

// HandleGetPlans returns the paid plans available to the current user.
// Anonymous visitors get the standard catalog.
func HandleGetPlans(c *fiber.Ctx) error {
	var user *models.User
	userCtx := usercontext.GetUserContext(c)
	if userCtx.IsLoggedIn {
		if u, err := userRepo.GetByID(userCtx.UserID); err == nil {
			user = u
		}
	}

	plans, err := planService.GetActivePaidPlansForUser(user)
	if err != nil {
		fiberlog.Errorf("[Subscription] failed to load plans: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load plans"})
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			Code:          p.Code,
			BillingPeriod: p.BillingPeriod,
			Price:         p.Price,
			OldPrice:      p.OldPrice,
			Currency:      p.Currency,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// subscriptionResponse is the public shape of the user's subscription state.
type subscriptionResponse struct {
	Status                  string     `json:"status"`
	PlanCode                string     `json:"plan_code,omitempty"`
	TrialEndsAt             *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodEndsAt     *time.Time `json:"current_period_ends_at,omitempty"`
	NextBillingAt           *time.Time `json:"next_billing_at,omitempty"`
	CancellationEffectiveAt *time.Time `json:"cancellation_effective_at,omitempty"`
	AutoRenew               bool       `json:"auto_renew"`
	HasActiveAccess         bool       `json:"has_active_access"`
}

// HandleGetSubscription returns the logged-in user's current subscription.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}

	sub, err := subscriptionService.FindCurrent(userCtx.UserID)
	if err != nil {
		fiberlog.Errorf("[Subscription] failed to load subscription for %s: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load subscription"})
	}
	if sub == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no subscription"})
	}

	active, err := subscriptionService.HasActiveAccess(userCtx.UserID)
	if err != nil {
		active = false
	}

	resp := subscriptionResponse{
		Status:                  sub.Status,
		TrialEndsAt:             sub.TrialEndsAt,
		CurrentPeriodEndsAt:     sub.CurrentPeriodEndsAt,
		NextBillingAt:           sub.NextBillingAt,
		CancellationEffectiveAt: sub.CancellationEffectiveAt,
		AutoRenew:               sub.AutoRenew,
		HasActiveAccess:         active,
	}
	if sub.Plan != nil {
		resp.PlanCode = sub.Plan.Code
	}
	return c.JSON(resp)
}

// cancelSubscriptionForm is the cancellation request body.
type cancelSubscriptionForm struct {
	ReasonType        string `form:"reason_type" json:"reason_type" validate:"required"`
	AdditionalDetails string `form:"additional_details" json:"additional_details" validate:"max=1000"`
}

// HandleCancelSubscription cancels the logged-in user's subscription.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}

	var form cancelSubscriptionForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason_type is required"})
	}

	user, err := userRepo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load user"})
	}

	sub, err := subscriptionService.Cancel(c.Context(), user, form.ReasonType, form.AdditionalDetails)
	if err != nil {
		if errors.Is(err, subscription.ErrNoCancellableSubscription) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no cancellable subscription"})
		}
		fiberlog.Errorf("[Subscription] cancellation failed for %s: %v", user.ID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "cancellation failed, please try again"})
	}

	return c.JSON(fiber.Map{
		"status":                    sub.Status,
		"cancellation_effective_at": sub.CancellationEffectiveAt,
	})
}
