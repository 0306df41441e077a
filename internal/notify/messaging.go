package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santajump/server/internal/config"
)

// Messenger sends phone OTPs through Zalo ZNS or SMS gateways, trying providers in order.
// In dry-run mode nothing is sent and the message is logged with the phone masked.
type Messenger struct {
	providers []config.MessagingProvider
	client    *http.Client
	dryRun    bool
}

// NewMessenger creates a messenger for the configured providers
func NewMessenger(providers []config.MessagingProvider, dryRun bool) *Messenger {
	return &Messenger{
		providers: providers,
		client:    &http.Client{Timeout: 10 * time.Second},
		dryRun:    dryRun,
	}
}

type providerResponse struct {
	Error   int    `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendOTP delivers a sign-in or verification code to phone
func (m *Messenger) SendOTP(ctx context.Context, phone, code string) error {
	if m.dryRun {
		log.Printf("[notify][messaging][dry-run] to=%s otp sent", MaskContact(phone))
		return nil
	}
	if len(m.providers) == 0 {
		return ErrNoProviders
	}
	var errs []error
	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch p.Kind {
		case "zalo":
			err = m.sendZalo(ctx, p, phone, code)
		default:
			err = m.sendSMS(ctx, p, phone, code)
		}
		if err == nil {
			return nil
		}
		log.Printf("[notify][messaging] provider %s (%s) failed for %s: %v", p.Name, p.Kind, MaskContact(phone), err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return fmt.Errorf("all messaging providers failed: %w", errors.Join(errs...))
}

// sendZalo posts a ZNS template message; Zalo expects the phone without the leading +
func (m *Messenger) sendZalo(ctx context.Context, p config.MessagingProvider, phone, code string) error {
	payload := map[string]any{
		"phone":         strings.TrimPrefix(phone, "+"),
		"template_id":   p.TemplateID,
		"template_data": map[string]string{"otp": code},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", p.APIKey)
	return m.do(req)
}

func (m *Messenger) sendSMS(ctx context.Context, p config.MessagingProvider, phone, code string) error {
	form := url.Values{
		"apiKey":    {p.APIKey},
		"recipient": {phone},
		"text":      {fmt.Sprintf("Santa Jump: ma xac thuc cua ban la %s", code)},
	}
	if p.Sender != "" {
		form.Set("from", p.Sender)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return m.do(req)
}

func (m *Messenger) do(req *http.Request) error {
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result providerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if result.Error != 0 || result.Code != 0 {
		return fmt.Errorf("provider error %d/%d: %s", result.Error, result.Code, result.Message)
	}
	return nil
}
