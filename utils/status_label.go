package utils

import (
	"strings"

	"clinic-booking-chatbot/models"
)

// UnknownStatusLabel is shown for missing or unrecognised status codes.
const UnknownStatusLabel = "Không rõ"

var statusLabels = map[string]string{
	models.StatusPending:             "Chờ xác nhận",
	models.StatusConfirmed:           "Đã xác nhận",
	models.StatusCompleted:           "Đã hoàn thành",
	models.StatusRejected:            "Bị từ chối",
	models.StatusCancelledByCustomer: "Khách hàng đã hủy",
	models.StatusCancelledByAdmin:    "Phòng khám đã hủy",
}

// MapStatusToLabel returns the display label for a backend status code.
func MapStatusToLabel(status string) string {
	if status == "" {
		return UnknownStatusLabel
	}
	if label, ok := statusLabels[strings.ToLower(status)]; ok {
		return label
	}
	return UnknownStatusLabel
}
