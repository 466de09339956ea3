package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

// CacheDuration is how long fetched appointments and profiles are reused.
const CacheDuration = 5 * time.Minute

// AppointmentFetcher loads a user's appointments from the booking store,
// most recent first.
type AppointmentFetcher interface {
	FetchAppointments(ctx context.Context, userID string) ([]models.AppointmentSummary, error)
}

// ProfileFetcher loads a user's profile. A missing profile is (nil, nil).
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type cachedValue[T any] struct {
	value     T
	userID    string
	fetchedAt time.Time
}

func (c *cachedValue[T]) freshFor(userID string, now time.Time, ttl time.Duration) bool {
	return c != nil && c.userID == userID && now.Sub(c.fetchedAt) < ttl
}

// ResponseCache holds the appointment list and profile of the session's
// current user for a short time. Both slots are dropped whenever the
// session's user changes.
type ResponseCache struct {
	appointments AppointmentFetcher
	profiles     ProfileFetcher
	identity     IdentityProvider
	ttl          time.Duration
	now          func() time.Time
	metrics      *ChatbotMetrics
	logger       *zap.Logger

	mu              sync.Mutex
	appointmentSlot *cachedValue[[]models.AppointmentSummary]
	profileSlot     *cachedValue[*models.UserProfile]
	unsubscribe     func()
}

type CacheOption func(*ResponseCache)

// WithCacheTTL overrides CacheDuration.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock sets the clock used for expiry checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ResponseCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCacheMetrics(m *ChatbotMetrics) CacheOption {
	return func(c *ResponseCache) { c.metrics = m }
}

func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *ResponseCache) { c.logger = utils.LoggerOrNop(l) }
}

func NewResponseCache(identity IdentityProvider, appointments AppointmentFetcher, profiles ProfileFetcher, opts ...CacheOption) *ResponseCache {
	c := &ResponseCache{
		appointments: appointments,
		profiles:     profiles,
		identity:     identity,
		ttl:          CacheDuration,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = identity.OnChange(func(prev, next *models.User) {
		c.logger.Debug("identity changed, clearing response cache",
			zap.String("previous_user", userIDOf(prev)),
			zap.String("next_user", userIDOf(next)),
		)
		c.Invalidate()
	})
	return c
}

// CurrentUser returns the session's signed-in user, or nil.
func (c *ResponseCache) CurrentUser() *models.User {
	return c.identity.CurrentUser()
}

// Appointments returns the current user's appointments. With no user it
// returns an empty list without fetching. Fetch errors are returned and
// nothing is cached.
func (c *ResponseCache) Appointments(ctx context.Context) ([]models.AppointmentSummary, error) {
	user := c.identity.CurrentUser()
	if user == nil {
		return []models.AppointmentSummary{}, nil
	}

	c.mu.Lock()
	slot := c.appointmentSlot
	c.mu.Unlock()
	if slot.freshFor(user.ID, c.now(), c.ttl) {
		c.metrics.ObserveCacheLookup("appointments", true)
		return slot.value, nil
	}
	c.metrics.ObserveCacheLookup("appointments", false)

	appointments, err := c.appointments.FetchAppointments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch appointments for %s: %w", user.ID, err)
	}
	if appointments == nil {
		appointments = []models.AppointmentSummary{}
	}

	c.mu.Lock()
	c.appointmentSlot = &cachedValue[[]models.AppointmentSummary]{
		value:     appointments,
		userID:    user.ID,
		fetchedAt: c.now(),
	}
	c.mu.Unlock()

	return appointments, nil
}

// Profile returns the current user's profile, or nil when there is no user,
// no profile, or the fetch failed. Failures are logged and not cached.
func (c *ResponseCache) Profile(ctx context.Context) *models.UserProfile {
	user := c.identity.CurrentUser()
	if user == nil {
		return nil
	}

	c.mu.Lock()
	slot := c.profileSlot
	c.mu.Unlock()
	if slot.freshFor(user.ID, c.now(), c.ttl) {
		c.metrics.ObserveCacheLookup("profile", true)
		return slot.value
	}
	c.metrics.ObserveCacheLookup("profile", false)

	profile, err := c.profiles.FetchProfile(ctx, user.ID)
	if err != nil {
		c.logger.Warn("profile fetch failed, continuing without profile",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}

	c.mu.Lock()
	c.profileSlot = &cachedValue[*models.UserProfile]{
		value:     profile,
		userID:    user.ID,
		fetchedAt: c.now(),
	}
	c.mu.Unlock()

	return profile
}

// Invalidate drops both cached slots regardless of age.
func (c *ResponseCache) Invalidate() {
	c.mu.Lock()
	c.appointmentSlot = nil
	c.profileSlot = nil
	c.mu.Unlock()
}

// Close detaches the cache from identity notifications.
func (c *ResponseCache) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func userIDOf(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
