package utils

import (
	"strings"

	"clinic-booking-chatbot/models"
)

// KeywordRule maps an intent to the phrases that trigger it.
type KeywordRule struct {
	Intent   models.Intent `json:"intent"`
	Keywords []string      `json:"keywords"`
}

// defaultRules is evaluated top to bottom and the first rule with any hit
// wins, so the order here is the tie-break between overlapping phrases.
var defaultRules = []KeywordRule{
	{
		Intent:   models.IntentThanks,
		Keywords: []string{"cảm ơn", "cám ơn", "camon", "biết ơn", "thank", "tks"},
	},
	{
		Intent: models.IntentContactAdmin,
		Keywords: []string{
			"admin", "quản trị viên", "nhân viên", "tư vấn viên", "người thật",
		},
	},
	{
		Intent:   models.IntentGreeting,
		Keywords: []string{"xin chào", "chào", "hello", "hey", "good morning"},
	},
	{
		Intent: models.IntentHelp,
		Keywords: []string{
			"hướng dẫn", "làm sao", "làm thế nào", "cách", "giúp", "trợ giúp",
			"hỗ trợ", "sử dụng", "đặt lịch", "đặt hẹn", "help",
		},
	},
	{
		Intent: models.IntentUpcoming,
		Keywords: []string{
			"sắp tới", "sắp đến", "tiếp theo", "lịch hẹn tới", "lịch của tôi",
			"lịch hẹn của tôi", "upcoming",
		},
	},
	{
		Intent: models.IntentHistory,
		Keywords: []string{
			"lịch sử", "đã khám", "trước đây", "lần trước", "quá khứ",
			"nhật ký", "history",
		},
	},
	{
		Intent: models.IntentHealth,
		Keywords: []string{
			"sức khỏe", "tập luyện", "thể dục", "cân nặng", "giảm cân",
			"tăng cân", "giấc ngủ", "health", "fitness", "bmi",
		},
	},
	{
		Intent: models.IntentNutrition,
		Keywords: []string{
			"dinh dưỡng", "ăn uống", "thực đơn", "chế độ ăn", "ăn gì",
			"calo", "nutrition", "diet",
		},
	},
	{
		Intent: models.IntentAccount,
		Keywords: []string{
			"tài khoản", "hồ sơ", "mật khẩu", "thông tin cá nhân",
			"số điện thoại", "địa chỉ", "account", "profile", "password",
		},
	},
}

// IntentClassifier matches normalized text against an ordered rule table.
// Matching is plain substring containment, which tolerates run-together
// Vietnamese phrases but can fire on a keyword embedded in a longer word.
type IntentClassifier struct {
	rules []KeywordRule
}

// NewIntentClassifier returns a classifier over the built-in rule table.
func NewIntentClassifier() *IntentClassifier {
	return NewIntentClassifierWithRules(defaultRules)
}

// NewIntentClassifierWithRules builds a classifier over rules, keeping their
// order. Keywords are normalized once here.
func NewIntentClassifierWithRules(rules []KeywordRule) *IntentClassifier {
	normalized := make([]KeywordRule, 0, len(rules))
	for _, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if kw = NormalizeText(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		normalized = append(normalized, KeywordRule{Intent: rule.Intent, Keywords: keywords})
	}
	return &IntentClassifier{rules: normalized}
}

// ClassifyIntent returns the intent of the first rule that matches message,
// or fallback when the message is blank or nothing matches.
func (ic *IntentClassifier) ClassifyIntent(message string) models.Intent {
	message = NormalizeText(message)
	if message == "" {
		return models.IntentFallback
	}

	for _, rule := range ic.rules {
		if containsAnyKeyword(message, rule.Keywords) {
			return rule.Intent
		}
	}

	return models.IntentFallback
}

// Rules returns a copy of the normalized rule table in evaluation order.
func (ic *IntentClassifier) Rules() []KeywordRule {
	out := make([]KeywordRule, len(ic.rules))
	for i, rule := range ic.rules {
		out[i] = KeywordRule{
			Intent:   rule.Intent,
			Keywords: append([]string(nil), rule.Keywords...),
		}
	}
	return out
}

var defaultClassifier = NewIntentClassifier()

// DetectIntent classifies message with the built-in rule table.
func DetectIntent(message string) models.Intent {
	return defaultClassifier.ClassifyIntent(message)
}

func containsAnyKeyword(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
