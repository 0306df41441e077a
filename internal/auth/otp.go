package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/notify"
)

const (
	otpExpiry            = 5 * time.Minute
	maxAttempts          = 5
	minAttemptDelay      = 2 * time.Second
	requestWindow        = 10 * time.Minute
	maxRequestsPerWindow = 3

	// DevOTP is the fixed code used when OTP dev mode is on
	DevOTP = "123456"
)

var (
	ErrOTPRateLimited = errors.New("rate limit exceeded")
	ErrInvalidOTP     = errors.New("invalid or expired OTP")
	ErrOTPTooFast     = errors.New("too many attempts, try again later")
)

// OtpStore is the OTP session persistence
type OtpStore interface {
	CreateOrReplaceSession(ctx context.Context, destination, otpHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error)
	GetActiveSession(ctx context.Context, destination string) (model.OtpSession, error)
	MarkConsumed(ctx context.Context, sessionID uuid.UUID) error
	IncrementAttempt(ctx context.Context, sessionID uuid.UUID) (int, error)
	CountRecentRequests(ctx context.Context, destination string, since time.Time) (int, error)
}

// OtpService implements OtpProvider with database-backed sessions. Only a salted hash
// of each code is stored.
type OtpService struct {
	store     OtpStore
	deliverer OtpDeliverer
	salt      string
	devMode   bool
	now       func() time.Time
}

// NewOtpService creates a new OTP provider. In dev mode the code is always DevOTP and
// nothing is delivered.
func NewOtpService(store OtpStore, deliverer OtpDeliverer, salt string, devMode bool) *OtpService {
	return &OtpService{
		store:     store,
		deliverer: deliverer,
		salt:      salt,
		devMode:   devMode,
		now:       time.Now,
	}
}

// RequestOTP creates or replaces the OTP session for destination and delivers the code.
// At most 3 requests per 10 minutes per destination are allowed.
func (p *OtpService) RequestOTP(ctx context.Context, destination, ip, userAgent string) (string, error) {
	now := p.now()
	count, err := p.store.CountRecentRequests(ctx, destination, now.Add(-requestWindow))
	if err != nil {
		return "", fmt.Errorf("rate limit check: %w", err)
	}
	if count >= maxRequestsPerWindow {
		return "", fmt.Errorf("%w: max %d OTP requests per %v", ErrOTPRateLimited, maxRequestsPerWindow, requestWindow)
	}

	code := DevOTP
	if !p.devMode {
		code, err = generateOTPCode()
		if err != nil {
			return "", err
		}
	}

	var requestIP, ua *string
	if ip != "" {
		requestIP = &ip
	}
	if userAgent != "" {
		ua = &userAgent
	}
	if _, err := p.store.CreateOrReplaceSession(ctx, destination, hashOTPHex(destination, code, p.salt), now.Add(otpExpiry), requestIP, ua); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	if p.devMode {
		log.Printf("[auth] dev mode OTP issued for %s", notify.MaskContact(destination))
		return code, nil
	}
	if err := p.deliverer.DeliverOTP(ctx, destination, code); err != nil {
		return "", fmt.Errorf("deliver otp: %w", err)
	}
	return "", nil
}

// VerifyOTP checks code against the active session: 5 attempts, at least 2s apart, then
// the session is consumed.
func (p *OtpService) VerifyOTP(ctx context.Context, destination, code, ip string) error {
	session, err := p.store.GetActiveSession(ctx, destination)
	if err != nil {
		return ErrInvalidOTP
	}

	if session.LastAttemptAt != nil && p.now().Sub(*session.LastAttemptAt) < minAttemptDelay {
		return ErrOTPTooFast
	}

	newCount, err := p.store.IncrementAttempt(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if !constantTimeCompare(hashOTPBytes(destination, code, p.salt), session.OTPHash) {
		if newCount >= maxAttempts {
			_ = p.store.MarkConsumed(ctx, session.ID)
			log.Printf("[auth] OTP session for %s exhausted from %s", notify.MaskContact(destination), ip)
		}
		return ErrInvalidOTP
	}

	if err := p.store.MarkConsumed(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to consume session: %w", err)
	}
	return nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// hashOTPHex returns SHA-256(destination:code:salt) as hex for DB storage
func hashOTPHex(destination, code, salt string) string {
	return hex.EncodeToString(hashOTPBytes(destination, code, salt))
}

func hashOTPBytes(destination, code, salt string) []byte {
	hash := sha256.Sum256([]byte(destination + ":" + code + ":" + salt))
	return hash[:]
}

func constantTimeCompare(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
