package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicware/comms-hub-go/internal/model"
)

// EmailConfig carries the OAuth client registration for the email provider.
type EmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	Scopes       string
}

// EmailConnector handles the connect lifecycle for the OAuth email provider.
// Email connections do not participate in the messaging window flow; only
// the credential lifecycle lives here.
type EmailConnector struct {
	cfg    EmailConfig
	client *http.Client
}

func NewEmailConnector(cfg EmailConfig, timeout time.Duration) *EmailConnector {
	return &EmailConnector{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *EmailConnector) Type() model.IntegrationProvider {
	return model.ProviderEmail
}

func (c *EmailConnector) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURL)
	params.Set("response_type", "code")
	params.Set("scope", c.cfg.Scopes)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("state", state)
	return c.cfg.AuthURL + "?" + params.Encode()
}

func (c *EmailConnector) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "token exchange returned no access token"}
	}

	metadata, _ := json.Marshal(map[string]any{
		"scope":      tokenResp.Scope,
		"expires_in": tokenResp.ExpiresIn,
	})

	return &ExchangeResult{
		Credentials: Credentials{
			AccessToken:  tokenResp.AccessToken,
			RefreshToken: tokenResp.RefreshToken,
		},
		Metadata: metadata,
	}, nil
}

// Revoke invalidates the token upstream on disconnect. Best effort: the
// local scrub proceeds regardless.
func (c *EmailConnector) Revoke(ctx context.Context, creds Credentials) error {
	form := url.Values{}
	form.Set("token", creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}
