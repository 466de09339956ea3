package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

const (
	// MaxHistoryMessages bounds the transcript; the oldest turns are dropped first.
	MaxHistoryMessages = 60
	// DefaultThinkingDelay is the pause shown as a typing indicator before each reply.
	DefaultThinkingDelay = 500 * time.Millisecond
)

const seedGreetingText = "Xin chào! 👋 Mình là trợ lý ảo của phòng khám. Mình có thể giúp gì cho bạn hôm nay?"
const seedMenuText = "Bạn có thể chọn một trong các chủ đề dưới đây hoặc nhập câu hỏi của mình:"

// DialogueState is the orchestrator's position in its reply cycle.
type DialogueState string

const (
	StateIdle      DialogueState = "idle"
	StateComposing DialogueState = "composing"
)

type dialogueEvent string

const (
	eventSubmit     dialogueEvent = "submit"
	eventReplyReady dialogueEvent = "reply_ready"
)

var ErrInvalidTransition = errors.New("invalid dialogue transition")

// transition is the whole state machine: idle --submit--> composing --reply_ready--> idle.
func transition(from DialogueState, ev dialogueEvent) (DialogueState, error) {
	switch {
	case from == StateIdle && ev == eventSubmit:
		return StateComposing, nil
	case from == StateComposing && ev == eventReplyReady:
		return StateIdle, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// Replier produces the answer for one user input.
type Replier interface {
	GenerateReply(ctx context.Context, input models.ChatInput) models.ReplyPayload
}

// TurnArchive persists transcript turns. Failures are logged and never
// affect the conversation.
type TurnArchive interface {
	ArchiveTurn(ctx context.Context, turn models.Turn) error
}

// DialogueUpdate is sent to observers after every visible change.
type DialogueUpdate struct {
	Composing bool
	Turn      *models.Turn
}

// Exchange is the outcome of one submission.
type Exchange struct {
	Reply    models.ReplyPayload
	UserTurn models.Turn
	BotTurn  models.Turn
}

// Dialogue owns a transcript and drives one reply at a time through the
// replier.
type Dialogue struct {
	replier  Replier
	archive  TurnArchive
	delay    time.Duration
	maxTurns int
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger

	// submitMu admits one submission at a time.
	submitMu sync.Mutex

	mu        sync.RWMutex
	state     DialogueState
	turns     []models.Turn
	observers map[int]func(DialogueUpdate)
	nextObs   int
}

type DialogueOption func(*Dialogue)

func WithThinkingDelay(d time.Duration) DialogueOption {
	return func(dl *Dialogue) {
		if d >= 0 {
			dl.delay = d
		}
	}
}

func WithDialogueClock(now func() time.Time) DialogueOption {
	return func(dl *Dialogue) {
		if now != nil {
			dl.now = now
		}
	}
}

func WithMaxTurns(n int) DialogueOption {
	return func(dl *Dialogue) {
		if n > 0 {
			dl.maxTurns = n
		}
	}
}

func WithTurnArchive(a TurnArchive) DialogueOption {
	return func(dl *Dialogue) { dl.archive = a }
}

func WithDialogueLogger(l *zap.Logger) DialogueOption {
	return func(dl *Dialogue) { dl.logger = utils.LoggerOrNop(l) }
}

func WithTurnIDs(newID func() string) DialogueOption {
	return func(dl *Dialogue) {
		if newID != nil {
			dl.newID = newID
		}
	}
}

// NewDialogue creates a dialogue seeded with a greeting followed by the
// full quick-reply menu.
func NewDialogue(replier Replier, opts ...DialogueOption) *Dialogue {
	d := &Dialogue{
		replier:   replier,
		delay:     DefaultThinkingDelay,
		maxTurns:  MaxHistoryMessages,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
		state:     StateIdle,
		observers: make(map[int]func(DialogueUpdate)),
	}
	for _, opt := range opts {
		opt(d)
	}

	now := d.now()
	d.turns = append(d.turns,
		models.Turn{
			ID:        d.newID(),
			Author:    models.AuthorBot,
			Text:      seedGreetingText,
			CreatedAt: now.Add(-time.Second),
		},
		models.Turn{
			ID:           d.newID(),
			Author:       models.AuthorBot,
			Text:         seedMenuText,
			QuickReplies: models.QuickRepliesFor(models.AllQuickReplyKeys),
			CreatedAt:    now,
		},
	)
	return d
}

// Submit sends typed text. Whitespace-only text is still answered (with
// the fallback reply).
func (d *Dialogue) Submit(ctx context.Context, text string) Exchange {
	return d.submit(ctx, models.FreeText(text), text)
}

// SubmitQuickReply sends a tapped quick reply; the user turn shows its title.
func (d *Dialogue) SubmitQuickReply(ctx context.Context, key models.QuickReplyKey) Exchange {
	return d.submit(ctx, models.QuickReplyInput(key), key.Title())
}

func (d *Dialogue) submit(ctx context.Context, input models.ChatInput, display string) Exchange {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	userTurn := d.appendTurn(ctx, models.Turn{
		ID:        d.newID(),
		Author:    models.AuthorUser,
		Text:      display,
		CreatedAt: d.now(),
	})

	d.setState(eventSubmit)
	defer d.setState(eventReplyReady)

	d.think(ctx)

	// The reply is produced even if the caller went away during the pause,
	// so the transcript never ends on an unanswered user turn.
	reply := d.replier.GenerateReply(context.WithoutCancel(ctx), input)

	botTurn := d.appendTurn(ctx, models.Turn{
		ID:           d.newID(),
		Author:       models.AuthorBot,
		Text:         reply.Text,
		QuickReplies: models.QuickRepliesFor(reply.QuickReplies),
		CreatedAt:    d.now(),
	})

	return Exchange{Reply: reply, UserTurn: userTurn, BotTurn: botTurn}
}

func (d *Dialogue) think(ctx context.Context) {
	if d.delay <= 0 {
		return
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (d *Dialogue) setState(ev dialogueEvent) {
	d.mu.Lock()
	next, err := transition(d.state, ev)
	if err != nil {
		d.mu.Unlock()
		d.logger.Error("dialogue state", zap.Error(err))
		return
	}
	d.state = next
	observers := d.snapshotObservers()
	d.mu.Unlock()

	update := DialogueUpdate{Composing: next == StateComposing}
	for _, fn := range observers {
		fn(update)
	}
}

func (d *Dialogue) appendTurn(ctx context.Context, turn models.Turn) models.Turn {
	d.mu.Lock()
	d.turns = append(d.turns, turn)
	if overflow := len(d.turns) - d.maxTurns; overflow > 0 {
		d.turns = append(d.turns[:0:0], d.turns[overflow:]...)
	}
	composing := d.state == StateComposing
	observers := d.snapshotObservers()
	d.mu.Unlock()

	if d.archive != nil {
		if err := d.archive.ArchiveTurn(context.WithoutCancel(ctx), turn); err != nil {
			d.logger.Warn("failed to archive turn",
				zap.String("turn_id", turn.ID),
				zap.Error(err),
			)
		}
	}

	for _, fn := range observers {
		t := turn
		fn(DialogueUpdate{Composing: composing, Turn: &t})
	}
	return turn
}

// snapshotObservers must be called with mu held.
func (d *Dialogue) snapshotObservers() []func(DialogueUpdate) {
	if len(d.observers) == 0 {
		return nil
	}
	out := make([]func(DialogueUpdate), 0, len(d.observers))
	for _, fn := range d.observers {
		out = append(out, fn)
	}
	return out
}

// OnUpdate registers fn for typing and transcript changes. Callbacks run
// on the submitting goroutine and must not call Submit.
func (d *Dialogue) OnUpdate(fn func(DialogueUpdate)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Transcript returns a copy of the turns, oldest first.
func (d *Dialogue) Transcript() []models.Turn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Turn, len(d.turns))
	copy(out, d.turns)
	return out
}

func (d *Dialogue) IsComposing() bool {
	return d.State() == StateComposing
}

func (d *Dialogue) State() DialogueState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}
