package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/notify"
	"github.com/santajump/server/internal/repo"
)

// ErrPhoneTaken is returned when a phone number already belongs to another user
var ErrPhoneTaken = errors.New("phone number is already in use")

const maxReferralCodeRetries = 5

// UserStore is the user persistence needed for sign-in
type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	VerifyPhone(ctx context.Context, userID uuid.UUID, phone string, bonus int) (model.User, bool, error)
}

// Referrals links new users to referrers and rewards completed referrals
type Referrals interface {
	LinkReferral(ctx context.Context, newUser model.User, code string) error
	CompleteReferral(ctx context.Context, referredID uuid.UUID) error
}

// ConfigSource provides the current game configuration
type ConfigSource interface {
	Get(ctx context.Context) (model.GameConfig, error)
}

// AuthService orchestrates authentication operations
type AuthService struct {
	otpProvider OtpProvider
	jwtService  *JWTService
	users       UserStore
	referrals   Referrals
	config      ConfigSource
	newCode     func() (string, error)
}

// NewAuthService creates a new auth service
func NewAuthService(
	otpProvider OtpProvider,
	jwtService *JWTService,
	users UserStore,
	referrals Referrals,
	config ConfigSource,
) *AuthService {
	return &AuthService{
		otpProvider: otpProvider,
		jwtService:  jwtService,
		users:       users,
		referrals:   referrals,
		config:      config,
		newCode:     ledger.NewReferralCode,
	}
}

// SignInResult is the outcome of a successful OTP sign-in
type SignInResult struct {
	User    model.User
	Token   string
	Created bool
}

// RequestSignInOTP sends a sign-in code to a normalized destination
func (s *AuthService) RequestSignInOTP(ctx context.Context, destination, ip, userAgent string) (string, error) {
	return s.otpProvider.RequestOTP(ctx, destination, ip, userAgent)
}

// SignIn verifies the OTP, gets or creates the user and issues a token. A new user who
// supplied a referral code is linked to the referrer; an unknown code does not block
// sign-up. Signing in by phone counts as verifying that phone.
func (s *AuthService) SignIn(ctx context.Context, destination, code, referralCode, ip string, isEmail bool) (SignInResult, error) {
	if err := s.otpProvider.VerifyOTP(ctx, destination, code, ip); err != nil {
		return SignInResult{}, err
	}

	user, created, err := s.getOrCreate(ctx, destination, isEmail)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to get or create user: %w", err)
	}

	if created && referralCode != "" {
		if err := s.referrals.LinkReferral(ctx, user, referralCode); err != nil {
			log.Printf("[auth] referral code %q ignored for user %s: %v", referralCode, user.ID, err)
		}
	}

	if !isEmail && user.PhoneVerifiedAt == nil {
		user, err = s.markPhoneVerified(ctx, user.ID, destination)
		if err != nil {
			return SignInResult{}, err
		}
	}

	token, err := s.jwtService.SignUserToken(user.ID)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return SignInResult{User: user, Token: token, Created: created}, nil
}

func (s *AuthService) lookup(ctx context.Context, destination string, isEmail bool) (model.User, error) {
	if isEmail {
		return s.users.GetByEmail(ctx, destination)
	}
	return s.users.GetByPhone(ctx, destination)
}

// getOrCreate retries creation on a referral code collision. A duplicate caused by a
// concurrent sign-up of the same destination resolves on the next lookup.
func (s *AuthService) getOrCreate(ctx context.Context, destination string, isEmail bool) (model.User, bool, error) {
	for i := 0; i < maxReferralCodeRetries; i++ {
		u, err := s.lookup(ctx, destination, isEmail)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.User{}, false, err
		}

		code, err := s.newCode()
		if err != nil {
			return model.User{}, false, err
		}
		candidate := model.User{ReferralCode: code}
		if isEmail {
			candidate.Email = &destination
		} else {
			candidate.Phone = &destination
		}
		u, err = s.users.Create(ctx, candidate)
		if err == nil {
			log.Printf("[auth] user %s created for %s", u.ID, notify.MaskContact(destination))
			return u, true, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return model.User{}, false, err
		}
	}
	return model.User{}, false, fmt.Errorf("could not allocate a unique referral code")
}

// markPhoneVerified records the verified phone, grants the verification bonus the first
// time and completes a pending referral
func (s *AuthService) markPhoneVerified(ctx context.Context, userID uuid.UUID, phone string) (model.User, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return model.User{}, err
	}
	user, first, err := s.users.VerifyPhone(ctx, userID, phone, cfg.PhoneVerifyBonus)
	if errors.Is(err, repo.ErrDuplicate) {
		return model.User{}, ErrPhoneTaken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("verify phone: %w", err)
	}
	if first {
		if err := s.referrals.CompleteReferral(ctx, userID); err != nil {
			log.Printf("[auth] completing referral for %s failed: %v", userID, err)
		}
	}
	return user, nil
}

// RequestPhoneVerification sends a code to a phone the signed-in user wants to attach
func (s *AuthService) RequestPhoneVerification(ctx context.Context, userID uuid.UUID, rawPhone, ip, userAgent string) (string, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return "", err
	}
	if err := s.ensurePhoneFree(ctx, userID, phone); err != nil {
		return "", err
	}
	return s.otpProvider.RequestOTP(ctx, phone, ip, userAgent)
}

// VerifyPhone checks the code sent to phone and attaches it to the user
func (s *AuthService) VerifyPhone(ctx context.Context, userID uuid.UUID, rawPhone, code, ip string) (model.User, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return model.User{}, err
	}
	if err := s.ensurePhoneFree(ctx, userID, phone); err != nil {
		return model.User{}, err
	}
	if err := s.otpProvider.VerifyOTP(ctx, phone, code, ip); err != nil {
		return model.User{}, err
	}
	return s.markPhoneVerified(ctx, userID, phone)
}

func (s *AuthService) ensurePhoneFree(ctx context.Context, userID uuid.UUID, phone string) error {
	owner, err := s.users.GetByPhone(ctx, phone)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != userID:
		return ErrPhoneTaken
	}
	return nil
}
