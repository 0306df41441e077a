package auth

import "context"

// OtpProvider defines the interface for OTP operations
type OtpProvider interface {
	// RequestOTP issues a code for destination. devCode is non-empty only in dev mode.
	RequestOTP(ctx context.Context, destination, ip, userAgent string) (devCode string, err error)
	VerifyOTP(ctx context.Context, destination, code, ip string) error
}

// OtpDeliverer sends a plaintext code to a phone number or email address
type OtpDeliverer interface {
	DeliverOTP(ctx context.Context, destination, code string) error
}
