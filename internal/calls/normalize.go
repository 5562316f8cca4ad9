package calls

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// IdentityPrefix marks the room identity of a dialed phone leg.
const IdentityPrefix = "phone_user_"

// Normalize returns raw as "+<digits>". A missing leading "+" is added and
// every other non-digit is dropped, so Normalize is idempotent.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")

	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte('+')
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return "", &ValidationError{Msg: "missing phone number"}
	}
	return b.String(), nil
}

// Identity is the participant identity for a normalized number.
func Identity(phone string) string { return IdentityPrefix + phone }

// PhoneFromIdentity reverses Identity.
func PhoneFromIdentity(identity string) (string, bool) {
	phone, ok := strings.CutPrefix(identity, IdentityPrefix)
	if !ok || phone == "" {
		return "", false
	}
	return phone, true
}

// DisplayName is the participant name shown in the room.
func DisplayName(phone string) string {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return "Customer " + phone
	}
	return "Customer " + phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
