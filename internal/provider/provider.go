// Package provider holds the clients for external messaging and email
// providers and the credential shapes the connection manager persists.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/clinicware/comms-hub-go/internal/model"
)

// Credentials is the opaque secret blob stored on an integration row.
// Provider-specific fields stay empty for providers that don't use them.
type Credentials struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
}

func (c Credentials) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	return string(data), nil
}

func DecodeCredentials(blob string) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return c, nil
}

// ExchangeResult is the outcome of a completed OAuth code exchange.
type ExchangeResult struct {
	Credentials Credentials
	Metadata    json.RawMessage

	// ProviderAccountID identifies this connection on inbound webhooks
	// (e.g. the WhatsApp phone-number id). Empty for providers that never
	// deliver webhooks.
	ProviderAccountID string
}

// Connector is the OAuth connect lifecycle of one provider.
type Connector interface {
	Type() model.IntegrationProvider
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExchangeResult, error)
}

// Sender sends a free-form text message through a connected provider.
type Sender interface {
	SendText(ctx context.Context, creds Credentials, to, text string) (string, error)
}

// Error is a classified downstream provider failure. The message carries the
// provider's own description where safe; credentials never appear in it.
type Error struct {
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// Graph API error code for expired/revoked access tokens.
const codeOAuthException = 190

// AuthFailure reports whether the failure means the stored credentials can no
// longer be trusted, as opposed to a transient or request-level error.
func (e *Error) AuthFailure() bool {
	return e.Status == http.StatusUnauthorized ||
		e.Status == http.StatusForbidden ||
		e.Code == codeOAuthException
}

// IsAuthError reports whether err is a provider failure caused by invalid or
// revoked credentials.
func IsAuthError(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.AuthFailure()
	}
	return false
}
