package services

import (
	"context"
	"sync"
	"time"

	"clinic-booking-chatbot/models"
)

var testZone = time.FixedZone("UTC+7", 7*3600)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAppointments struct {
	mu     sync.Mutex
	byUser map[string][]models.AppointmentSummary
	err    error
	calls  map[string]int
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{
		byUser: make(map[string][]models.AppointmentSummary),
		calls:  make(map[string]int),
	}
}

func (f *fakeAppointments) FetchAppointments(_ context.Context, userID string) ([]models.AppointmentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeAppointments) Calls(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

func (f *fakeAppointments) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeProfiles struct {
	mu     sync.Mutex
	byUser map[string]*models.UserProfile
	err    error
	calls  map[string]int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byUser: make(map[string]*models.UserProfile),
		calls:  make(map[string]int),
	}
}

func (f *fakeProfiles) FetchProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeProfiles) Calls(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

// stubSource is a ReplySource with fixed data.
type stubSource struct {
	user         *models.User
	appointments []models.AppointmentSummary
	err          error
	profile      *models.UserProfile

	appointmentCalls int
	profileCalls     int
}

func (s *stubSource) CurrentUser() *models.User {
	return s.user
}

func (s *stubSource) Appointments(context.Context) ([]models.AppointmentSummary, error) {
	s.appointmentCalls++
	if s.user == nil {
		return []models.AppointmentSummary{}, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.appointments, nil
}

func (s *stubSource) Profile(context.Context) *models.UserProfile {
	s.profileCalls++
	if s.user == nil {
		return nil
	}
	return s.profile
}

type replierFunc func(ctx context.Context, input models.ChatInput) models.ReplyPayload

func (f replierFunc) GenerateReply(ctx context.Context, input models.ChatInput) models.ReplyPayload {
	return f(ctx, input)
}

// echoReplier answers every input with its own text.
var echoReplier = replierFunc(func(_ context.Context, input models.ChatInput) models.ReplyPayload {
	if input.Kind == models.InputQuickReply {
		return models.ReplyPayload{Intent: input.Key.Intent(), Text: "re: " + string(input.Key)}
	}
	return models.ReplyPayload{Intent: models.IntentFallback, Text: "re: " + input.Text}
})

type recordingArchive struct {
	mu    sync.Mutex
	turns []models.ArchivedTurn
	err   error
}

func (a *recordingArchive) ArchiveTurn(_ context.Context, turn models.ArchivedTurn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.turns = append(a.turns, turn)
	return nil
}

func (a *recordingArchive) Turns() []models.ArchivedTurn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ArchivedTurn(nil), a.turns...)
}

type turnArchiveFunc func(ctx context.Context, turn models.Turn) error

func (f turnArchiveFunc) ArchiveTurn(ctx context.Context, turn models.Turn) error {
	return f(ctx, turn)
}
