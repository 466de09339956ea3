package models

// Intent is the classified purpose of a user utterance.
type Intent string

const (
	IntentHelp         Intent = "help"
	IntentUpcoming     Intent = "upcoming"
	IntentHistory      Intent = "history"
	IntentHealth       Intent = "health"
	IntentNutrition    Intent = "nutrition"
	IntentAccount      Intent = "account"
	IntentGreeting     Intent = "greeting"
	IntentThanks       Intent = "thanks"
	IntentContactAdmin Intent = "contact_admin"
	IntentFallback     Intent = "fallback"
)

// AllIntents lists every intent the classifier can produce.
var AllIntents = []Intent{
	IntentHelp,
	IntentUpcoming,
	IntentHistory,
	IntentHealth,
	IntentNutrition,
	IntentAccount,
	IntentGreeting,
	IntentThanks,
	IntentContactAdmin,
	IntentFallback,
}

// Valid reports whether i is one of the fixed intents.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// QuickReplyKey identifies a pre-canned reply the user can tap instead of typing.
type QuickReplyKey string

const (
	QuickReplyHelp         QuickReplyKey = "help"
	QuickReplyUpcoming     QuickReplyKey = "upcoming"
	QuickReplyHistory      QuickReplyKey = "history"
	QuickReplyHealth       QuickReplyKey = "health"
	QuickReplyNutrition    QuickReplyKey = "nutrition"
	QuickReplyAccount      QuickReplyKey = "account"
	QuickReplyContactAdmin QuickReplyKey = "contact_admin"
)

// QuickReply is the display form of a quick reply key.
type QuickReply struct {
	Key   QuickReplyKey `json:"key" bson:"key"`
	Title string        `json:"title" bson:"title"`
}

var quickReplyTitles = map[QuickReplyKey]string{
	QuickReplyHelp:         "Hướng dẫn sử dụng",
	QuickReplyUpcoming:     "Lịch hẹn sắp tới",
	QuickReplyHistory:      "Lịch sử khám",
	QuickReplyHealth:       "Lời khuyên sức khỏe",
	QuickReplyNutrition:    "Dinh dưỡng",
	QuickReplyAccount:      "Thông tin tài khoản",
	QuickReplyContactAdmin: "Liên hệ quản trị viên",
}

var quickReplyIntents = map[QuickReplyKey]Intent{
	QuickReplyHelp:         IntentHelp,
	QuickReplyUpcoming:     IntentUpcoming,
	QuickReplyHistory:      IntentHistory,
	QuickReplyHealth:       IntentHealth,
	QuickReplyNutrition:    IntentNutrition,
	QuickReplyAccount:      IntentAccount,
	QuickReplyContactAdmin: IntentContactAdmin,
}

// AllQuickReplyKeys is the full menu in display order.
var AllQuickReplyKeys = []QuickReplyKey{
	QuickReplyHelp,
	QuickReplyUpcoming,
	QuickReplyHistory,
	QuickReplyHealth,
	QuickReplyNutrition,
	QuickReplyAccount,
	QuickReplyContactAdmin,
}

// Known reports whether k is one of the fixed quick reply keys.
func (k QuickReplyKey) Known() bool {
	_, ok := quickReplyIntents[k]
	return ok
}

// Title returns the display title, or the raw key when it is unknown.
func (k QuickReplyKey) Title() string {
	if title, ok := quickReplyTitles[k]; ok {
		return title
	}
	return string(k)
}

// Intent maps a key to the intent it triggers. Unknown keys map to help.
func (k QuickReplyKey) Intent() Intent {
	if intent, ok := quickReplyIntents[k]; ok {
		return intent
	}
	return IntentHelp
}

// QuickRepliesFor expands keys into their display form.
func QuickRepliesFor(keys []QuickReplyKey) []QuickReply {
	if len(keys) == 0 {
		return nil
	}
	out := make([]QuickReply, 0, len(keys))
	for _, k := range keys {
		out = append(out, QuickReply{Key: k, Title: k.Title()})
	}
	return out
}
