package services

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

var vietnameseWeekdays = [...]string{
	time.Sunday:    "Chủ Nhật",
	time.Monday:    "Thứ Hai",
	time.Tuesday:   "Thứ Ba",
	time.Wednesday: "Thứ Tư",
	time.Thursday:  "Thứ Năm",
	time.Friday:    "Thứ Sáu",
	time.Saturday:  "Thứ Bảy",
}

const defaultServiceName = "Dịch vụ"

// formatLongDate renders e.g. "Thứ Hai, 20 tháng 10 năm 2026".
func formatLongDate(t time.Time) string {
	return fmt.Sprintf("%s, %d tháng %d năm %d", vietnameseWeekdays[t.Weekday()], t.Day(), int(t.Month()), t.Year())
}

func formatShortDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func formatClock(t time.Time) string {
	return t.Format("15:04")
}

func serviceNameOf(a models.AppointmentSummary) string {
	if name := strings.TrimSpace(a.ServiceName); name != "" {
		return name
	}
	return defaultServiceName
}

func statusSuffix(status string) string {
	if status == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", utils.MapStatusToLabel(status))
}

func formatUpcomingLine(a models.AppointmentSummary, loc *time.Location) string {
	at := a.ScheduledAt.In(loc)
	return fmt.Sprintf("• %s - %s lúc %s%s", serviceNameOf(a), formatLongDate(at), formatClock(at), statusSuffix(a.Status))
}

func formatHistoryLine(a models.AppointmentSummary, loc *time.Location) string {
	if !a.HasDate() {
		return fmt.Sprintf("• %s - Chưa rõ thời gian%s", serviceNameOf(a), statusSuffix(a.Status))
	}
	at := a.ScheduledAt.In(loc)
	return fmt.Sprintf("• %s - %s %s%s", serviceNameOf(a), formatShortDate(at), formatClock(at), statusSuffix(a.Status))
}

// capitalizeFirst upper-cases the first letter of a trimmed name.
func capitalizeFirst(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
