// Package sms delivers one-time verification codes by text message.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"go.aimuz.me/saathi/metrics"
)

// DefaultCountryCode is prefixed to bare phone numbers.
const DefaultCountryCode = "91"

// ErrMissingFields is returned when the phone number or code is empty.
var ErrMissingFields = errors.New("phone and code are required")

// Message is one outgoing text.
type Message struct {
	To   string
	From string
	Body string
}

// Receipt is the provider's answer to a send.
type Receipt struct {
	SID          string `json:"sid,omitempty"`
	Status       string `json:"status,omitempty"`
	ErrorCode    int    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProviderError is a send the provider refused, as opposed to a transport
// failure.
type ProviderError struct {
	Code    int    `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider error %d: %s", e.Code, e.Message)
}

// Sender sends one text message.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Twilio
// ─────────────────────────────────────────────────────────────────────────────

// TwilioConfig holds Twilio account credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
}

// NewTwilioSender creates a TwilioSender.
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client}
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(msg.From)
	params.SetBody(msg.Body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		var tre *twclient.TwilioRestError
		if errors.As(err, &tre) {
			return Receipt{}, &ProviderError{Code: tre.Code, Status: tre.Status, Message: tre.Message}
		}
		return Receipt{}, fmt.Errorf("create message: %w", err)
	}

	var r Receipt
	if resp.Sid != nil {
		r.SID = *resp.Sid
	}
	if resp.Status != nil {
		r.Status = *resp.Status
	}
	if resp.ErrorCode != nil {
		r.ErrorCode = *resp.ErrorCode
	}
	if resp.ErrorMessage != nil {
		r.ErrorMessage = *resp.ErrorMessage
	}
	return r, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// OTP
// ─────────────────────────────────────────────────────────────────────────────

// Result is the outcome reported to the client.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Config configures an OTPService.
type Config struct {
	From        string
	CountryCode string
}

// OTPService sends verification codes.
type OTPService struct {
	sender  Sender
	cfg     Config
	metrics *metrics.Metrics
}

// NewOTPService creates an OTPService.
func NewOTPService(sender Sender, cfg Config, m *metrics.Metrics) *OTPService {
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	cfg.CountryCode = strings.TrimPrefix(cfg.CountryCode, "+")
	return &OTPService{sender: sender, cfg: cfg, metrics: m}
}

// SendCode texts code to phone. A provider rejection is reported in the
// Result with Success false; the error is reserved for transport failures.
func (s *OTPService) SendCode(ctx context.Context, phone, code string) (Result, error) {
	phone, code = strings.TrimSpace(phone), strings.TrimSpace(code)
	if phone == "" || code == "" {
		return Result{}, ErrMissingFields
	}

	msg := Message{
		To:   s.Destination(phone),
		From: s.cfg.From,
		Body: "Your verification code is: " + code,
	}
	receipt, err := s.sender.Send(ctx, msg)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			slog.Warn("sms rejected", "code", pe.Code, "error", pe.Message)
			s.metrics.RecordSMS("rejected")
			return Result{Success: false, Error: "Failed to send SMS", Details: pe}, nil
		}
		s.metrics.RecordSMS("error")
		return Result{}, fmt.Errorf("send sms: %w", err)
	}

	if receipt.ErrorCode != 0 || receipt.Status == "failed" || receipt.Status == "undelivered" {
		slog.Warn("sms not delivered", "status", receipt.Status, "code", receipt.ErrorCode)
		s.metrics.RecordSMS("rejected")
		return Result{Success: false, Error: "Failed to send SMS", Details: receipt}, nil
	}

	slog.Info("sms sent", "sid", receipt.SID)
	s.metrics.RecordSMS("sent")
	return Result{Success: true, Message: "Message sent successfully"}, nil
}

// Destination returns the E.164 number for phone. Numbers already carrying
// a "+" are kept as is.
func (s *OTPService) Destination(phone string) string {
	phone = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, phone)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + s.cfg.CountryCode + phone
}
