package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

var (
	ErrSessionNotFound  = errors.New("chat session not found")
	ErrSessionForbidden = errors.New("chat session belongs to another user")
)

const DefaultSessionTTL = 30 * time.Minute

// ChatSession bundles everything one conversation owns. The cache lives
// and dies with the session.
type ChatSession struct {
	ID       string
	Channel  models.MessageChannel
	Identity *SessionIdentity
	Cache    *ResponseCache
	Dialogue *Dialogue

	mu       sync.Mutex
	lastSeen time.Time
	// owner is the first user seen on a web session; empty until then.
	owner string
}

// Allows reports whether user on channel may use the session. WhatsApp
// sessions are keyed by the sender, so only the channel is checked. A web
// session is open until a user signs in to it and owned by that user after.
func (s *ChatSession) Allows(channel models.MessageChannel, user *models.User) bool {
	if channel != s.Channel {
		return false
	}
	if channel != models.ChannelWeb {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == "" || (user != nil && user.ID == s.owner)
}

// admit is Allows followed by claiming an unowned web session for user.
func (s *ChatSession) admit(channel models.MessageChannel, user *models.User) bool {
	if channel != s.Channel {
		return false
	}
	if channel != models.ChannelWeb {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == "" {
		if user != nil {
			s.owner = user.ID
		}
		return true
	}
	return user != nil && user.ID == s.owner
}

// SessionDeps are shared by every session the manager creates.
type SessionDeps struct {
	Appointments  AppointmentFetcher
	Profiles      ProfileFetcher
	Archive       SessionArchive
	Metrics       *ChatbotMetrics
	Logger        *zap.Logger
	Location      *time.Location
	ThinkingDelay time.Duration
	CacheTTL      time.Duration
	SessionTTL    time.Duration
	MaxHistory    int
	Now           func() time.Time
}

// SessionArchive stores turns for a given session.
type SessionArchive interface {
	ArchiveTurn(ctx context.Context, turn models.ArchivedTurn) error
}

// sessionTurnArchive binds a SessionArchive to one session.
type sessionTurnArchive struct {
	archive  SessionArchive
	session  string
	channel  models.MessageChannel
	identity IdentityProvider
}

func (a sessionTurnArchive) ArchiveTurn(ctx context.Context, turn models.Turn) error {
	return a.archive.ArchiveTurn(ctx, models.ArchivedTurn{
		Turn:      turn,
		SessionID: a.session,
		UserID:    userIDOf(a.identity.CurrentUser()),
		Channel:   a.channel,
	})
}

// SessionManager keeps one ChatSession per session id and expires idle ones.
type SessionManager struct {
	deps   SessionDeps
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*ChatSession
}

func NewSessionManager(deps SessionDeps) *SessionManager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = DefaultSessionTTL
	}
	deps.Logger = utils.LoggerOrNop(deps.Logger)
	return &SessionManager{
		deps:     deps,
		logger:   deps.Logger,
		sessions: make(map[string]*ChatSession),
	}
}

// GetOrCreate returns the session for id, creating it on first use. The
// first signed-in user of a web session becomes its owner; anyone else, and
// any other channel, gets ErrSessionForbidden without touching the session.
// A user change the session allows replaces its identity, which invalidates
// the session's cache.
func (m *SessionManager) GetOrCreate(id string, channel models.MessageChannel, user *models.User) (*ChatSession, error) {
	now := m.deps.Now()

	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		session = m.newSession(id, channel, user)
		m.sessions[id] = session
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !session.admit(channel, user) {
		m.logger.Warn("chat session access denied",
			zap.String("session_id", id),
			zap.String("channel", string(channel)),
			zap.String("user_id", userIDOf(user)),
		)
		return nil, ErrSessionForbidden
	}
	if ok {
		session.Identity.SetUser(user)
	} else {
		m.logger.Info("chat session started",
			zap.String("session_id", id),
			zap.String("channel", string(channel)),
		)
		m.deps.Metrics.SetActiveSessions(count)
	}

	session.touch(now)
	return session, nil
}

func (m *SessionManager) newSession(id string, channel models.MessageChannel, user *models.User) *ChatSession {
	identity := NewSessionIdentity(user)
	logger := m.logger.With(zap.String("session_id", id))

	cacheOpts := []CacheOption{
		WithCacheMetrics(m.deps.Metrics),
		WithCacheLogger(logger),
		WithCacheClock(m.deps.Now),
	}
	if m.deps.CacheTTL > 0 {
		cacheOpts = append(cacheOpts, WithCacheTTL(m.deps.CacheTTL))
	}
	cache := NewResponseCache(identity, m.deps.Appointments, m.deps.Profiles, cacheOpts...)

	generator := NewReplyGenerator(cache,
		WithLocation(m.deps.Location),
		WithGeneratorClock(m.deps.Now),
		WithGeneratorMetrics(m.deps.Metrics),
		WithGeneratorLogger(logger),
	)

	dialogueOpts := []DialogueOption{
		WithThinkingDelay(m.deps.ThinkingDelay),
		WithDialogueClock(m.deps.Now),
		WithMaxTurns(m.deps.MaxHistory),
		WithDialogueLogger(logger),
	}
	if m.deps.Archive != nil {
		dialogueOpts = append(dialogueOpts, WithTurnArchive(sessionTurnArchive{
			archive:  m.deps.Archive,
			session:  id,
			channel:  channel,
			identity: identity,
		}))
	}

	return &ChatSession{
		ID:       id,
		Channel:  channel,
		Identity: identity,
		Cache:    cache,
		Dialogue: NewDialogue(generator, dialogueOpts...),
	}
}

func (m *SessionManager) Get(id string) (*ChatSession, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(m.deps.Now())
	return session, nil
}

// SignOut clears the session's user. The transcript and the owner are kept.
func (m *SessionManager) SignOut(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	session.Identity.SignOut()
	return nil
}

// Sweep drops sessions idle for longer than the session TTL and returns
// how many were removed.
func (m *SessionManager) Sweep() int {
	cutoff := m.deps.Now().Add(-m.deps.SessionTTL)

	m.mu.Lock()
	var expired []*ChatSession
	for id, session := range m.sessions {
		if session.idleSince().Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, session := range expired {
		session.Cache.Close()
		m.logger.Info("chat session expired", zap.String("session_id", session.ID))
	}
	if len(expired) > 0 {
		m.deps.Metrics.SetActiveSessions(count)
	}
	return len(expired)
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("swept idle sessions", zap.Int("removed", n))
			}
		}
	}
}
