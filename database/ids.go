package database

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// idCandidates returns the values an id may be stored as: the raw string
// and, when it is a valid hex ObjectID, the ObjectID too.
func idCandidates(id string) []interface{} {
	candidates := []interface{}{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		candidates = append(candidates, oid)
	}
	return candidates
}

// idString renders a decoded _id (ObjectID or string) as a string.
func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return ""
	}
}

// phoneVariants lists the forms a phone number may be stored in: the
// WhatsApp id ("84912345678"), with a plus sign, and the local form
// ("0912345678").
func phoneVariants(waID, countryCode string) []string {
	waID = strings.TrimPrefix(strings.TrimSpace(waID), "+")
	if waID == "" {
		return nil
	}
	variants := []string{waID, "+" + waID}
	if countryCode != "" && strings.HasPrefix(waID, countryCode) && len(waID) > len(countryCode) {
		variants = append(variants, "0"+strings.TrimPrefix(waID, countryCode))
	}
	return variants
}
