package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

const (
	maxUpcomingLines = 3
	maxHistoryLines  = 4
)

var (
	fullQuickReplies = []models.QuickReplyKey{
		models.QuickReplyHelp,
		models.QuickReplyUpcoming,
		models.QuickReplyHistory,
		models.QuickReplyHealth,
		models.QuickReplyNutrition,
		models.QuickReplyAccount,
	}
	helpQuickReplies = []models.QuickReplyKey{
		models.QuickReplyUpcoming,
		models.QuickReplyHistory,
		models.QuickReplyAccount,
		models.QuickReplyHealth,
		models.QuickReplyNutrition,
	}
	signInQuickReplies = []models.QuickReplyKey{
		models.QuickReplyHelp,
		models.QuickReplyHealth,
		models.QuickReplyNutrition,
	}
	upcomingQuickReplies = []models.QuickReplyKey{
		models.QuickReplyHistory,
		models.QuickReplyAccount,
		models.QuickReplyHelp,
	}
	historyQuickReplies = []models.QuickReplyKey{
		models.QuickReplyUpcoming,
		models.QuickReplyAccount,
		models.QuickReplyHelp,
	}
	healthQuickReplies = []models.QuickReplyKey{
		models.QuickReplyNutrition,
		models.QuickReplyUpcoming,
		models.QuickReplyHelp,
	}
	nutritionQuickReplies = []models.QuickReplyKey{
		models.QuickReplyHealth,
		models.QuickReplyUpcoming,
		models.QuickReplyHelp,
	}
	accountQuickReplies = []models.QuickReplyKey{
		models.QuickReplyUpcoming,
		models.QuickReplyHistory,
		models.QuickReplyHelp,
	}
	troubleQuickReplies = []models.QuickReplyKey{
		models.QuickReplyHelp,
		models.QuickReplyContactAdmin,
	}
)

const (
	fallbackText = "Xin lỗi, mình chưa hiểu rõ ý bạn. Bạn có thể hỏi lại cụ thể hơn hoặc chọn một gợi ý bên dưới nhé."
	troubleText  = "Xin lỗi, hệ thống đang gặp sự cố tạm thời. Bạn vui lòng thử lại sau ít phút nhé."
	signInText   = "Bạn cần đăng nhập để xem thông tin này. Vui lòng đăng nhập rồi hỏi lại mình nhé."
	thanksText   = "Rất vui được hỗ trợ bạn! 😊 Nếu cần thêm thông tin gì, bạn cứ nhắn cho mình nhé."

	helpText = "📖 Hướng dẫn sử dụng ứng dụng:\n" +
		"• Đặt lịch: vào mục \"Dịch vụ\", chọn dịch vụ, ngày giờ phù hợp rồi nhấn \"Xác nhận\".\n" +
		"• Theo dõi lịch hẹn: mở tab \"Lịch hẹn\" để xem trạng thái từng lịch.\n" +
		"• Hủy lịch: chọn lịch đang chờ xác nhận và nhấn \"Hủy lịch\".\n" +
		"• Cập nhật hồ sơ: vào \"Tài khoản\" > \"Chỉnh sửa thông tin\".\n" +
		"Bạn cũng có thể hỏi mình về lịch hẹn sắp tới, lịch sử khám hoặc lời khuyên sức khỏe."

	upcomingHeader = "📅 Lịch hẹn sắp tới của bạn:\n"
	upcomingEmpty  = "Bạn chưa có lịch hẹn sắp tới nào. Hãy vào mục \"Dịch vụ\" để đặt lịch nhé!"
	historyHeader  = "🗂️ Các lịch hẹn gần đây của bạn:\n"
	historyEmpty   = "Bạn chưa có lịch hẹn nào trước đây."

	healthAdvice = "• Ngủ đủ 7-8 tiếng mỗi đêm.\n" +
		"• Vận động ít nhất 30 phút mỗi ngày.\n" +
		"• Uống đủ 1,5-2 lít nước mỗi ngày.\n" +
		"• Khám sức khỏe định kỳ 6 tháng một lần."

	nutritionDefaultText = "🥗 Gợi ý dinh dưỡng cho bạn:\n" +
		"• Ăn nhiều rau xanh và trái cây tươi.\n" +
		"• Ưu tiên đạm từ cá, thịt gà, trứng và các loại đậu.\n" +
		"• Hạn chế đồ chiên rán, đồ ngọt và nước có ga.\n" +
		"• Chia nhỏ bữa ăn và không bỏ bữa sáng."
	nutritionFemaleText = "🥗 Gợi ý dinh dưỡng dành cho bạn nữ:\n" +
		"• Bổ sung sắt từ thịt đỏ, gan và rau lá xanh đậm.\n" +
		"• Bổ sung canxi và vitamin D từ sữa, sữa chua, cá nhỏ.\n" +
		"• Ăn đủ axit folic từ đậu, ngũ cốc nguyên hạt.\n" +
		"• Hạn chế đồ ngọt, cà phê và đồ uống có cồn."

	profileMissingText = "Bạn chưa có hồ sơ cá nhân. Vui lòng cập nhật thông tin trong mục \"Tài khoản\" để mình hỗ trợ tốt hơn nhé."
	notProvided        = "Chưa cập nhật"
)

// femaleGenderMarkers are normalized gender values that select the female
// nutrition advice.
var femaleGenderMarkers = map[string]bool{"nu": true, "female": true}

// ReplySource is the data a reply may need about the session's user.
// *ResponseCache implements it.
type ReplySource interface {
	CurrentUser() *models.User
	Appointments(ctx context.Context) ([]models.AppointmentSummary, error)
	Profile(ctx context.Context) *models.UserProfile
}

// ReplyGenerator turns one user input into the assistant's answer.
type ReplyGenerator struct {
	classifier *utils.IntentClassifier
	source     ReplySource
	location   *time.Location
	now        func() time.Time
	metrics    *ChatbotMetrics
	logger     *zap.Logger
}

type GeneratorOption func(*ReplyGenerator)

// WithLocation sets the zone dates and times are rendered in.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *ReplyGenerator) {
		if loc != nil {
			g.location = loc
		}
	}
}

func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *ReplyGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

func WithClassifier(ic *utils.IntentClassifier) GeneratorOption {
	return func(g *ReplyGenerator) {
		if ic != nil {
			g.classifier = ic
		}
	}
}

func WithGeneratorMetrics(m *ChatbotMetrics) GeneratorOption {
	return func(g *ReplyGenerator) { g.metrics = m }
}

func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *ReplyGenerator) { g.logger = utils.LoggerOrNop(l) }
}

func NewReplyGenerator(source ReplySource, opts ...GeneratorOption) *ReplyGenerator {
	g := &ReplyGenerator{
		classifier: utils.NewIntentClassifier(),
		source:     source,
		location:   time.FixedZone("UTC+7", 7*3600),
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveIntent maps a quick reply straight to its intent and classifies
// free text.
func (g *ReplyGenerator) ResolveIntent(input models.ChatInput) models.Intent {
	if input.Kind == models.InputQuickReply {
		return input.Key.Intent()
	}
	return g.classifier.ClassifyIntent(input.Text)
}

// GenerateReply never fails: data errors become an apology reply.
func (g *ReplyGenerator) GenerateReply(ctx context.Context, input models.ChatInput) models.ReplyPayload {
	start := time.Now()
	intent := g.ResolveIntent(input)

	text, quickReplies, err := g.replyFor(ctx, intent)
	if err != nil {
		g.logger.Error("reply generation failed",
			zap.String("intent", string(intent)),
			zap.Error(err),
		)
		g.metrics.ObserveReply(intent, true, time.Since(start))
		return models.ReplyPayload{
			Intent:       intent,
			Text:         troubleText,
			QuickReplies: slices.Clone(troubleQuickReplies),
		}
	}

	g.metrics.ObserveReply(intent, false, time.Since(start))
	return models.ReplyPayload{
		Intent:       intent,
		Text:         text,
		QuickReplies: slices.Clone(quickReplies),
	}
}

func (g *ReplyGenerator) replyFor(ctx context.Context, intent models.Intent) (string, []models.QuickReplyKey, error) {
	switch intent {
	case models.IntentGreeting:
		return g.greetingReply(ctx), fullQuickReplies, nil
	case models.IntentHelp:
		return helpText, helpQuickReplies, nil
	case models.IntentUpcoming:
		return g.upcomingReply(ctx)
	case models.IntentHistory:
		return g.historyReply(ctx)
	case models.IntentHealth:
		return g.healthReply(ctx), healthQuickReplies, nil
	case models.IntentNutrition:
		return g.nutritionReply(ctx), nutritionQuickReplies, nil
	case models.IntentAccount:
		return g.accountReply(ctx)
	case models.IntentThanks:
		return thanksText, fullQuickReplies, nil
	default:
		// fallback, contact_admin and anything unrecognised
		return fallbackText, fullQuickReplies, nil
	}
}

func (g *ReplyGenerator) greetingReply(ctx context.Context) string {
	name := "bạn"
	if profile := g.source.Profile(ctx); profile != nil {
		if n := strings.TrimSpace(profile.Name); n != "" {
			name = n
		}
	}
	return fmt.Sprintf("Xin chào %s! 👋 Mình là trợ lý ảo của phòng khám. "+
		"Mình có thể giúp bạn xem lịch hẹn, lịch sử khám, thông tin tài khoản và gợi ý chăm sóc sức khỏe.", name)
}

func (g *ReplyGenerator) upcomingReply(ctx context.Context) (string, []models.QuickReplyKey, error) {
	if g.source.CurrentUser() == nil {
		return signInText, signInQuickReplies, nil
	}

	appointments, err := g.source.Appointments(ctx)
	if err != nil {
		return "", nil, err
	}

	now := g.now()
	upcoming := make([]models.AppointmentSummary, 0, len(appointments))
	for _, a := range appointments {
		if a.HasDate() && a.ScheduledAt.After(now) {
			upcoming = append(upcoming, a)
		}
	}
	if len(upcoming) == 0 {
		return upcomingEmpty, upcomingQuickReplies, nil
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].ScheduledAt.Before(upcoming[j].ScheduledAt)
	})
	if len(upcoming) > maxUpcomingLines {
		upcoming = upcoming[:maxUpcomingLines]
	}

	lines := make([]string, 0, len(upcoming))
	for _, a := range upcoming {
		lines = append(lines, formatUpcomingLine(a, g.location))
	}
	return upcomingHeader + strings.Join(lines, "\n"), upcomingQuickReplies, nil
}

// historyReply lists the most recent appointments in the order the store
// returned them (newest first); it does not re-sort.
func (g *ReplyGenerator) historyReply(ctx context.Context) (string, []models.QuickReplyKey, error) {
	if g.source.CurrentUser() == nil {
		return signInText, signInQuickReplies, nil
	}

	appointments, err := g.source.Appointments(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(appointments) == 0 {
		return historyEmpty, historyQuickReplies, nil
	}

	recent := appointments
	if len(recent) > maxHistoryLines {
		recent = recent[:maxHistoryLines]
	}

	lines := make([]string, 0, len(recent))
	for _, a := range recent {
		lines = append(lines, formatHistoryLine(a, g.location))
	}
	return historyHeader + strings.Join(lines, "\n"), historyQuickReplies, nil
}

func (g *ReplyGenerator) healthReply(ctx context.Context) string {
	name := "Bạn"
	if profile := g.source.Profile(ctx); profile != nil {
		if n := capitalizeFirst(profile.Name); n != "" {
			name = n
		}
	}
	return fmt.Sprintf("💪 %s ơi, để giữ sức khỏe tốt bạn nên:\n%s", name, healthAdvice)
}

func (g *ReplyGenerator) nutritionReply(ctx context.Context) string {
	if profile := g.source.Profile(ctx); profile != nil {
		if femaleGenderMarkers[utils.NormalizeText(profile.Gender)] {
			return nutritionFemaleText
		}
	}
	return nutritionDefaultText
}

func (g *ReplyGenerator) accountReply(ctx context.Context) (string, []models.QuickReplyKey, error) {
	if g.source.CurrentUser() == nil {
		return signInText, signInQuickReplies, nil
	}

	profile := g.source.Profile(ctx)
	if profile == nil {
		return profileMissingText, accountQuickReplies, nil
	}

	lines := []string{
		"👤 Thông tin tài khoản của bạn:",
		"• Họ tên: " + valueOrNotProvided(profile.Name),
		"• Số điện thoại: " + valueOrNotProvided(profile.Phone),
		"• Địa chỉ: " + valueOrNotProvided(profile.Address),
	}
	return strings.Join(lines, "\n"), accountQuickReplies, nil
}

func valueOrNotProvided(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return notProvided
}
