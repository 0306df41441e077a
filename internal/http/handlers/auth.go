package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/notify"
)

// AuthHandler handles player sign-in and admin login
type AuthHandler struct {
	authService     *auth.AuthService
	adminAuth       *auth.AdminAuth
	jwtService      *auth.JWTService
	cookieSecure    bool
	ipLimiter       *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService *auth.AuthService,
	adminAuth *auth.AdminAuth,
	jwtService *auth.JWTService,
	cookieSecure bool,
) *AuthHandler {
	// IP rate limiters: 10 per 10min for request-otp, 20 per 10min for verify-otp and
	// admin login (per-destination limits are DB-based)
	return &AuthHandler{
		authService:     authService,
		adminAuth:       adminAuth,
		jwtService:      jwtService,
		cookieSecure:    cookieSecure,
		ipLimiter:       middleware.NewRateLimiter(10*time.Minute, 10),
		verifyIPLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// Close stops the rate limiter cleanup goroutines
func (h *AuthHandler) Close() {
	h.ipLimiter.Stop()
	h.verifyIPLimiter.Stop()
}

// requestOTPRequest is the request body for POST /auth/request-otp
type requestOTPRequest struct {
	Destination string `json:"destination"`
}

// otpSentResponse is the JSON response for OTP requests
type otpSentResponse struct {
	Message string `json:"message"`
	DevOTP  string `json:"dev_otp,omitempty"`
}

// verifyOTPRequest is the request body for POST /auth/verify-otp
type verifyOTPRequest struct {
	Destination  string `json:"destination"`
	OTP          string `json:"otp"`
	ReferralCode string `json:"referral_code"`
}

// verifyOTPResponse is the JSON response for verify-otp
type verifyOTPResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	Created     bool         `json:"created"`
	User        userResponse `json:"user"`
}

// HandleRequestOTP handles POST /auth/request-otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Destination) == "" {
		respondWithError(w, http.StatusBadRequest, "destination is required")
		return
	}
	destination, _, err := auth.NormalizeDestination(req.Destination)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	devCode, err := h.authService.RequestSignInOTP(r.Context(), destination, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		log.Printf("[auth] %s: failed to request OTP: %v", notify.MaskContact(destination), err)
		respondWithServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, otpSentResponse{Message: "otp_sent", DevOTP: devCode})
}

// HandleVerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OTP = strings.TrimSpace(req.OTP)
	if strings.TrimSpace(req.Destination) == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "destination and otp are required")
		return
	}
	destination, isEmail, err := auth.NormalizeDestination(req.Destination)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	if !h.verifyIPLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	res, err := h.authService.SignIn(r.Context(), destination, req.OTP, req.ReferralCode, middleware.ClientIP(r), isEmail)
	if err != nil {
		log.Printf("[auth] %s: OTP verification failed: %v", notify.MaskContact(destination), err)
		respondWithServiceError(w, r, err)
		return
	}

	h.setCookie(w, middleware.UserCookie, res.Token, h.jwtService.TTL())
	respondJSON(w, http.StatusOK, verifyOTPResponse{
		AccessToken: res.Token,
		TokenType:   "bearer",
		Created:     res.Created,
		User:        toUserResponse(res.User),
	})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.UserCookie)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleAdminLogin handles POST /admin/login
func (h *AuthHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !h.verifyIPLimiter.Allow("admin:" + middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	token, err := h.adminAuth.Login(req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	h.setCookie(w, middleware.AdminCookie, token, h.jwtService.AdminTTL())
	respondJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

// HandleAdminLogout handles POST /admin/logout
func (h *AuthHandler) HandleAdminLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.AdminCookie)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
