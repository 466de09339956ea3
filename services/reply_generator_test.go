package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking-chatbot/models"
)

// Friday 16 October 2026, 10:00 in UTC+7.
var generatorNow = time.Date(2026, 10, 16, 10, 0, 0, 0, testZone)

func newTestGenerator(source ReplySource, opts ...GeneratorOption) *ReplyGenerator {
	opts = append([]GeneratorOption{
		WithLocation(testZone),
		WithGeneratorClock(func() time.Time { return generatorNow }),
	}, opts...)
	return NewReplyGenerator(source, opts...)
}

func TestGenerateReply_UpcomingRequiresSignIn(t *testing.T) {
	source := &stubSource{}
	reply := newTestGenerator(source).GenerateReply(context.Background(), models.FreeText("lịch hẹn sắp tới"))

	assert.Equal(t, models.IntentUpcoming, reply.Intent)
	assert.Equal(t, signInText, reply.Text)
	assert.Equal(t, signInQuickReplies, reply.QuickReplies)
	assert.Zero(t, source.appointmentCalls)
}

func TestGenerateReply_UpcomingListsFutureAscending(t *testing.T) {
	source := &stubSource{
		user: alice,
		appointments: []models.AppointmentSummary{
			{ID: "3", ServiceName: "Nha khoa", ScheduledAt: time.Date(2026, 10, 25, 9, 30, 0, 0, testZone), Status: "pending"},
			{ID: "1", ServiceName: "Khám tổng quát", ScheduledAt: time.Date(2026, 10, 10, 8, 0, 0, 0, testZone), Status: "completed"},
			{ID: "2", ServiceName: "Xét nghiệm máu", ScheduledAt: time.Date(2026, 10, 20, 14, 0, 0, 0, testZone), Status: "CONFIRMED"},
		},
	}

	reply := newTestGenerator(source).GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyUpcoming))

	assert.Equal(t, models.IntentUpcoming, reply.Intent)
	assert.Equal(t, upcomingQuickReplies, reply.QuickReplies)

	want := upcomingHeader +
		"• Xét nghiệm máu - Thứ Ba, 20 tháng 10 năm 2026 lúc 14:00 (Đã xác nhận)\n" +
		"• Nha khoa - Chủ Nhật, 25 tháng 10 năm 2026 lúc 09:30 (Chờ xác nhận)"
	assert.Equal(t, want, reply.Text)
	assert.NotContains(t, reply.Text, "Khám tổng quát")
}

func TestGenerateReply_UpcomingCapsAtThree(t *testing.T) {
	var appointments []models.AppointmentSummary
	for i := 5; i >= 1; i-- {
		appointments = append(appointments, models.AppointmentSummary{
			ServiceName: "Dịch vụ " + string(rune('A'+i)),
			ScheduledAt: generatorNow.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
	source := &stubSource{user: alice, appointments: appointments}

	reply := newTestGenerator(source).GenerateReply(context.Background(), models.FreeText("lịch hẹn sắp tới"))

	lines := strings.Split(strings.TrimPrefix(reply.Text, upcomingHeader), "\n")
	require.Len(t, lines, maxUpcomingLines)
	assert.Contains(t, lines[0], "Dịch vụ B")
	assert.Contains(t, lines[2], "Dịch vụ D")
}

func TestGenerateReply_UpcomingEmpty(t *testing.T) {
	source := &stubSource{
		user: alice,
		appointments: []models.AppointmentSummary{
			{ServiceName: "Khám cũ", ScheduledAt: generatorNow.Add(-time.Hour)},
			{ServiceName: "Chưa xếp lịch"},
		},
	}

	reply := newTestGenerator(source).GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyUpcoming))

	assert.Equal(t, upcomingEmpty, reply.Text)
}

func TestGenerateReply_FetchFailureApologises(t *testing.T) {
	metrics := NewChatbotMetrics(prometheus.NewRegistry())
	source := &stubSource{user: alice, err: errors.New("mongo down")}

	for _, key := range []models.QuickReplyKey{models.QuickReplyUpcoming, models.QuickReplyHistory} {
		reply := newTestGenerator(source, WithGeneratorMetrics(metrics)).
			GenerateReply(context.Background(), models.QuickReplyInput(key))

		assert.Equal(t, key.Intent(), reply.Intent)
		assert.Equal(t, troubleText, reply.Text)
		assert.Equal(t, []models.QuickReplyKey{models.QuickReplyHelp, models.QuickReplyContactAdmin}, reply.QuickReplies)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.repliesTotal.WithLabelValues("upcoming", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.repliesTotal.WithLabelValues("history", "error")))
}

func TestGenerateReply_HistoryKeepsStoreOrder(t *testing.T) {
	source := &stubSource{
		user: alice,
		appointments: []models.AppointmentSummary{
			{ServiceName: "Tái khám", ScheduledAt: time.Date(2026, 9, 1, 8, 0, 0, 0, testZone), Status: "completed"},
			{ServiceName: "Khám tổng quát", ScheduledAt: time.Date(2026, 9, 20, 15, 45, 0, 0, testZone), Status: "cancelled_by_admin"},
			{ServiceName: "", Status: "rejected"},
			{ServiceName: "Siêu âm", ScheduledAt: time.Date(2026, 8, 2, 7, 5, 0, 0, testZone)},
			{ServiceName: "Không hiển thị", ScheduledAt: time.Date(2026, 7, 2, 7, 5, 0, 0, testZone)},
		},
	}

	reply := newTestGenerator(source).GenerateReply(context.Background(), models.FreeText("xem lịch sử khám"))

	assert.Equal(t, models.IntentHistory, reply.Intent)
	want := historyHeader +
		"• Tái khám - 01/09/2026 08:00 (Đã hoàn thành)\n" +
		"• Khám tổng quát - 20/09/2026 15:45 (Phòng khám đã hủy)\n" +
		"• Dịch vụ - Chưa rõ thời gian (Bị từ chối)\n" +
		"• Siêu âm - 02/08/2026 07:05"
	assert.Equal(t, want, reply.Text)
	assert.Equal(t, historyQuickReplies, reply.QuickReplies)
}

func TestGenerateReply_HistoryEmptyAndSignedOut(t *testing.T) {
	reply := newTestGenerator(&stubSource{user: alice}).
		GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyHistory))
	assert.Equal(t, historyEmpty, reply.Text)

	reply = newTestGenerator(&stubSource{}).
		GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyHistory))
	assert.Equal(t, signInText, reply.Text)
}

func TestGenerateReply_Account(t *testing.T) {
	tests := []struct {
		name    string
		source  *stubSource
		want    string
		wantNot string
	}{
		{
			name:   "signed out",
			source: &stubSource{},
			want:   signInText,
		},
		{
			name:   "no profile",
			source: &stubSource{user: alice},
			want:   profileMissingText,
		},
		{
			name: "empty phone is reported as not provided",
			source: &stubSource{user: alice, profile: &models.UserProfile{
				Name: "Nguyễn Thị Lan", Phone: "", Address: "12 Lê Lợi, Huế",
			}},
			want: "👤 Thông tin tài khoản của bạn:\n" +
				"• Họ tên: Nguyễn Thị Lan\n" +
				"• Số điện thoại: Chưa cập nhật\n" +
				"• Địa chỉ: 12 Lê Lợi, Huế",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := newTestGenerator(tt.source).GenerateReply(context.Background(), models.FreeText("thông tin tài khoản"))
			assert.Equal(t, models.IntentAccount, reply.Intent)
			assert.Equal(t, tt.want, reply.Text)
		})
	}
}

func TestGenerateReply_Greeting(t *testing.T) {
	reply := newTestGenerator(&stubSource{}).GenerateReply(context.Background(), models.FreeText("Xin chào"))
	assert.Equal(t, models.IntentGreeting, reply.Intent)
	assert.True(t, strings.HasPrefix(reply.Text, "Xin chào bạn!"))
	assert.Equal(t, fullQuickReplies, reply.QuickReplies)

	source := &stubSource{user: alice, profile: &models.UserProfile{Name: "Lan"}}
	reply = newTestGenerator(source).GenerateReply(context.Background(), models.FreeText("chào bot"))
	assert.True(t, strings.HasPrefix(reply.Text, "Xin chào Lan!"))
}

func TestGenerateReply_HealthAddressesUser(t *testing.T) {
	source := &stubSource{user: alice, profile: &models.UserProfile{Name: "lan"}}
	reply := newTestGenerator(source).GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyHealth))

	assert.Equal(t, models.IntentHealth, reply.Intent)
	assert.True(t, strings.HasPrefix(reply.Text, "💪 Lan ơi"))
	assert.Equal(t, healthQuickReplies, reply.QuickReplies)

	reply = newTestGenerator(&stubSource{}).GenerateReply(context.Background(), models.QuickReplyInput(models.QuickReplyHealth))
	assert.True(t, strings.HasPrefix(reply.Text, "💪 Bạn ơi"))
}

func TestGenerateReply_NutritionByGender(t *testing.T) {
	tests := []struct {
		gender string
		want   string
	}{
		{"Nữ", nutritionFemaleText},
		{"female", nutritionFemaleText},
		{"Nam", nutritionDefaultText},
		{"", nutritionDefaultText},
	}
	for _, tt := range tests {
		t.Run(tt.gender, func(t *testing.T) {
			source := &stubSource{user: alice, profile: &models.UserProfile{Gender: tt.gender}}
			reply := newTestGenerator(source).GenerateReply(context.Background(), models.FreeText("tư vấn dinh dưỡng"))
			assert.Equal(t, models.IntentNutrition, reply.Intent)
			assert.Equal(t, tt.want, reply.Text)
		})
	}
}

func TestGenerateReply_StaticIntents(t *testing.T) {
	tests := []struct {
		name       string
		input      models.ChatInput
		wantIntent models.Intent
		wantText   string
	}{
		{"help text", models.FreeText("hướng dẫn đặt lịch"), models.IntentHelp, helpText},
		{"thanks", models.FreeText("Cảm ơn nhiều nhé"), models.IntentThanks, thanksText},
		{"empty text", models.FreeText("   "), models.IntentFallback, fallbackText},
		{"gibberish", models.FreeText("xyz qwe"), models.IntentFallback, fallbackText},
		{"contact admin", models.QuickReplyInput(models.QuickReplyContactAdmin), models.IntentContactAdmin, fallbackText},
		{"unknown quick reply", models.QuickReplyInput("book_now"), models.IntentHelp, helpText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := newTestGenerator(&stubSource{}).GenerateReply(context.Background(), tt.input)
			assert.Equal(t, tt.wantIntent, reply.Intent)
			assert.Equal(t, tt.wantText, reply.Text)
			assert.NotEmpty(t, reply.QuickReplies)
		})
	}
}

func TestGenerateReply_QuickRepliesAreCopies(t *testing.T) {
	gen := newTestGenerator(&stubSource{})

	first := gen.GenerateReply(context.Background(), models.FreeText("xin chào"))
	first.QuickReplies[0] = "tampered"

	second := gen.GenerateReply(context.Background(), models.FreeText("xin chào"))
	assert.Equal(t, models.QuickReplyHelp, second.QuickReplies[0])
}

func TestResolveIntent(t *testing.T) {
	gen := newTestGenerator(&stubSource{})

	assert.Equal(t, models.IntentAccount, gen.ResolveIntent(models.QuickReplyInput(models.QuickReplyAccount)))
	// Quick replies bypass the classifier even if the key reads like a keyword.
	assert.Equal(t, models.IntentHelp, gen.ResolveIntent(models.QuickReplyInput("cảm ơn")))
	assert.Equal(t, models.IntentThanks, gen.ResolveIntent(models.FreeText("cảm ơn")))
}

func TestFormatHelpers(t *testing.T) {
	at := time.Date(2026, 10, 18, 7, 5, 0, 0, time.UTC)

	assert.Equal(t, "Chủ Nhật, 18 tháng 10 năm 2026", formatLongDate(at))
	assert.Equal(t, "18/10/2026", formatShortDate(at))
	assert.Equal(t, "07:05", formatClock(at))
	assert.Equal(t, "Đức", capitalizeFirst("  đức "))
	assert.Equal(t, "", capitalizeFirst(" "))
	assert.Equal(t, "", statusSuffix(""))
	assert.Equal(t, " (Không rõ)", statusSuffix("archived"))
}
