package subscription

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/cache"
)

const (
	activePlansCacheKey = "subscription:active_plans"
	planCacheTTL        = 10 * time.Minute
)

// Cache is the small cache surface the plan service needs.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
	Delete(key string) error
}

type redisCache struct{}

func (redisCache) Get(key string) (string, error) { return cache.Get(key) }
func (redisCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}
func (redisCache) Delete(key string) error { return cache.Delete(key) }

// PlanService serves the plan catalog. The active plan list is cached in
// Redis because it hits the pricing page on every anonymous visit.
type PlanService struct {
	plans repository.SubscriptionPlanRepository
	cache Cache
}

// NewPlanService creates a plan service backed by Redis.
func NewPlanService(plans repository.SubscriptionPlanRepository) *PlanService {
	return &PlanService{plans: plans, cache: redisCache{}}
}

// NewPlanServiceWithCache creates a plan service with a custom cache.
func NewPlanServiceWithCache(plans repository.SubscriptionPlanRepository, c Cache) *PlanService {
	return &PlanService{plans: plans, cache: c}
}

// GetPlanByCode resolves a plan by its unique code.
func (s *PlanService) GetPlanByCode(code string) (*models.SubscriptionPlan, error) {
	plan, err := s.plans.GetByCode(strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPlan
		}
		return nil, err
	}
	return plan, nil
}

// GetActivePlan resolves the single active plan of a type.
func (s *PlanService) GetActivePlan(planType string) (*models.SubscriptionPlan, error) {
	plan, err := s.plans.FindActiveByType(planType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPlan
		}
		return nil, err
	}
	return plan, nil
}

// GetActivePlans returns all active plans ordered by price, cache-first.
func (s *PlanService) GetActivePlans() ([]models.SubscriptionPlan, error) {
	if cached, err := s.cache.Get(activePlansCacheKey); err == nil && cached != "" {
		var plans []models.SubscriptionPlan
		if err := json.Unmarshal([]byte(cached), &plans); err == nil {
			return plans, nil
		}
		// Stale or corrupt cache entry, fall through to the database.
		_ = s.cache.Delete(activePlansCacheKey)
	}

	plans, err := s.plans.ListActive()
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(plans); err == nil {
		if err := s.cache.Set(activePlansCacheKey, string(encoded), planCacheTTL); err != nil {
			fiberlog.Errorf("[Plans] failed to cache active plans: %v", err)
		}
	}
	return plans, nil
}

// InvalidatePlanCache drops the cached active plan list, for use after
// catalog changes.
func (s *PlanService) InvalidatePlanCache() {
	_ = s.cache.Delete(activePlansCacheKey)
}

// GetActivePaidPlansForUser returns the paid plans to offer a user. Users
// from Ukraine get the regional plan variants when present; everyone else,
// and Ukrainian users without regional variants, get the standard ones.
func (s *PlanService) GetActivePaidPlansForUser(user *models.User) ([]models.SubscriptionPlan, error) {
	plans, err := s.GetActivePlans()
	if err != nil {
		return nil, err
	}

	wantRegional := user != nil && strings.EqualFold(user.CountryCode, "UA")

	var standard, regional []models.SubscriptionPlan
	for _, plan := range plans {
		switch plan.Type {
		case models.PlanTypeStandardMonthly, models.PlanTypeStandardYearly:
			standard = append(standard, plan)
		case models.PlanTypeStandardMonthlyUA, models.PlanTypeStandardYearlyUA:
			regional = append(regional, plan)
		}
	}

	if wantRegional && len(regional) > 0 {
		return regional, nil
	}
	return standard, nil
}

// IsPlanAvailableForUser reports whether the user may subscribe to the plan.
// Trial plans are never purchasable and regional plans are limited to their
// region.
func (s *PlanService) IsPlanAvailableForUser(user *models.User, plan *models.SubscriptionPlan) bool {
	if plan == nil || !plan.IsActive || plan.IsTrialPlan() {
		return false
	}
	offered, err := s.GetActivePaidPlansForUser(user)
	if err != nil {
		return false
	}
	for _, p := range offered {
		if p.Code == plan.Code {
			return true
		}
	}
	return false
}
