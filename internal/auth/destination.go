package auth

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidDestination is returned for input that is neither an email nor a phone number
var ErrInvalidDestination = errors.New("invalid phone number or email")

// NormalizeDestination canonicalizes a sign-in destination. Emails are lower-cased;
// Vietnamese numbers in national form (0xxxxxxxxx) or without the plus (84xxxxxxxxx)
// become +84xxxxxxxxx. Other numbers must already be E.164.
func NormalizeDestination(raw string) (dest string, isEmail bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, ErrInvalidDestination
	}
	if strings.Contains(raw, "@") {
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Address != raw {
			return "", false, ErrInvalidDestination
		}
		return strings.ToLower(addr.Address), true, nil
	}
	phone, err := NormalizePhone(raw)
	return phone, false, err
}

// NormalizePhone converts a phone number to E.164, defaulting to Vietnam (+84)
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidDestination
		}
	}
	s := b.String()

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "84") && len(s) == 11:
		s = "+" + s
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "+84" + s[1:]
	default:
		return "", ErrInvalidDestination
	}

	digits := len(s) - 1
	if digits < 8 || digits > 15 || s[1] == '0' {
		return "", ErrInvalidDestination
	}
	if strings.HasPrefix(s, "+84") && digits != 11 {
		return "", ErrInvalidDestination
	}
	return s, nil
}
