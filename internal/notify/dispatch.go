package notify

import (
	"context"
	"strings"
)

// OTPSender delivers a code to one kind of destination
type OTPSender interface {
	SendOTP(ctx context.Context, to, code string) error
}

// Dispatcher routes OTP delivery to email or messaging by destination shape
type Dispatcher struct {
	email OTPSender
	phone OTPSender
}

// NewDispatcher creates a dispatcher
func NewDispatcher(email, phone OTPSender) *Dispatcher {
	return &Dispatcher{email: email, phone: phone}
}

// DeliverOTP sends code to destination, an email address or an E.164 phone number
func (d *Dispatcher) DeliverOTP(ctx context.Context, destination, code string) error {
	if strings.Contains(destination, "@") {
		return d.email.SendOTP(ctx, destination, code)
	}
	return d.phone.SendOTP(ctx, destination, code)
}

// MaskContact masks a phone number or email for logging (e.g. +8******67, jo***@mail.com)
func MaskContact(contact string) string {
	if at := strings.Index(contact, "@"); at >= 0 {
		local := contact[:at]
		if len(local) <= 2 {
			return "***" + contact[at:]
		}
		return local[:2] + "***" + contact[at:]
	}
	if len(contact) <= 4 {
		return "****"
	}
	return contact[:2] + strings.Repeat("*", len(contact)-4) + contact[len(contact)-2:]
}
