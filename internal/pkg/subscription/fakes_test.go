package subscription

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/liqpay"
)

func newUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

// memoryUserRepo is an in-memory UserRepository.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uuid.UUID]models.User)}
}

func (r *memoryUserRepo) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepo) GetByID(id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryUserRepo) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryUserRepo) Update(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

// memoryPlanRepo is an in-memory SubscriptionPlanRepository.
type memoryPlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]models.SubscriptionPlan
}

func newMemoryPlanRepo() *memoryPlanRepo {
	return &memoryPlanRepo{plans: make(map[uuid.UUID]models.SubscriptionPlan)}
}

func (r *memoryPlanRepo) Create(plan *models.SubscriptionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	r.plans[plan.ID] = *plan
	return nil
}

func (r *memoryPlanRepo) GetByID(id uuid.UUID) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.plans[id]; ok {
		copied := p
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryPlanRepo) GetByCode(code string) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Code == code {
			copied := p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryPlanRepo) ListActive() ([]models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubscriptionPlan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (r *memoryPlanRepo) FindActiveByType(planType string) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Type == planType && p.IsActive {
			copied := p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// memorySubscriptionRepo is an in-memory UserSubscriptionRepository.
type memorySubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]models.UserSubscription
	seq  int
}

func newMemorySubscriptionRepo() *memorySubscriptionRepo {
	return &memorySubscriptionRepo{subs: make(map[uuid.UUID]models.UserSubscription)}
}

func (r *memorySubscriptionRepo) Create(sub *models.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	r.seq++
	sub.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	r.subs[sub.ID] = *sub
	return nil
}

func (r *memorySubscriptionRepo) Save(sub *models.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = *sub
	return nil
}

func (r *memorySubscriptionRepo) GetByID(id uuid.UUID) (*models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		copied := s
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memorySubscriptionRepo) FindCurrentByUser(userID uuid.UUID) (*models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current *models.UserSubscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		copied := s
		if current == nil || copied.CreatedAt.After(current.CreatedAt) {
			current = &copied
		}
	}
	if current == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return current, nil
}

func (r *memorySubscriptionRepo) FindTrialsEndingBetween(status string, from, to time.Time) ([]models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserSubscription
	for _, s := range r.subs {
		if s.Status != status || s.TrialEndsAt == nil {
			continue
		}
		if s.TrialEndsAt.Before(from) || s.TrialEndsAt.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySubscriptionRepo) FindTrialsExpiredBefore(status string, cutoff time.Time) ([]models.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserSubscription
	for _, s := range r.subs {
		if s.Status != status || s.TrialEndsAt == nil {
			continue
		}
		if !s.TrialEndsAt.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// memoryCancellationRepo is an in-memory SubscriptionCancellationRepository.
type memoryCancellationRepo struct {
	mu      sync.Mutex
	records []models.SubscriptionCancellation
}

func newMemoryCancellationRepo() *memoryCancellationRepo {
	return &memoryCancellationRepo{}
}

func (r *memoryCancellationRepo) Create(c *models.SubscriptionCancellation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.records = append(r.records, *c)
	return nil
}

func (r *memoryCancellationRepo) ListBySubscription(subscriptionID uuid.UUID) ([]models.SubscriptionCancellation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubscriptionCancellation
	for _, c := range r.records {
		if c.SubscriptionID == subscriptionID {
			out = append(out, c)
		}
	}
	return out, nil
}

// memoryEventRepo is an in-memory SubscriptionEventLogRepository.
type memoryEventRepo struct {
	mu     sync.Mutex
	events []models.SubscriptionEventLog
}

func newMemoryEventRepo() *memoryEventRepo {
	return &memoryEventRepo{}
}

func (r *memoryEventRepo) Create(e *models.SubscriptionEventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *memoryEventRepo) ListByUser(userID uuid.UUID, limit int) ([]models.SubscriptionEventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubscriptionEventLog
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryEventRepo) all() []models.SubscriptionEventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SubscriptionEventLog(nil), r.events...)
}

// recordingNotifier captures notification calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) record(kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind)
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func (n *recordingNotifier) SendSubscriptionActivated(*models.User, *models.UserSubscription) {
	n.record("activated")
}
func (n *recordingNotifier) SendPaymentFailed(_ *models.User, _ *models.UserSubscription, reason string) {
	n.record("payment_failed:" + reason)
}
func (n *recordingNotifier) SendCancellationConfirmation(*models.User, *models.UserSubscription) {
	n.record("cancelled")
}
func (n *recordingNotifier) SendTrialWelcome(*models.User, *models.UserSubscription) {
	n.record("trial_welcome")
}
func (n *recordingNotifier) SendTrialEndingSoon(*models.User, *models.UserSubscription) {
	n.record("trial_ending")
}
func (n *recordingNotifier) SendTrialExpired(*models.User, *models.UserSubscription) {
	n.record("trial_expired")
}

// fakeGateway is a scriptable ProviderGateway.
type fakeGateway struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *fakeGateway) CancelSubscription(context.Context, *models.UserSubscription) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.err
}

func (g *fakeGateway) cancelCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeStatusFetcher is a scriptable StatusFetcher.
type fakeStatusFetcher struct {
	status *liqpay.PaymentStatus
	err    error
}

func (f *fakeStatusFetcher) FetchStatus(context.Context, string, string) (*liqpay.PaymentStatus, error) {
	return f.status, f.err
}

// memoryCache is an in-memory Cache for the plan service.
type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *memoryCache) Set(key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := value.(string); ok {
		c.values[key] = s
	}
	return nil
}

func (c *memoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}
