package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/model"
)

const whatsappScopes = "whatsapp_business_messaging,whatsapp_business_management"

// WhatsAppConfig carries the app registration for the business messaging API.
type WhatsAppConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string
	APIBase     string
	AuthBase    string
}

// WhatsAppClient talks to the Cloud-API style business messaging endpoints.
// It implements both Connector (OAuth lifecycle) and Sender (outbound text).
type WhatsAppClient struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig, timeout time.Duration) *WhatsAppClient {
	return &WhatsAppClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *WhatsAppClient) Type() model.IntegrationProvider {
	return model.ProviderWhatsApp
}

func (c *WhatsAppClient) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.cfg.AppID)
	params.Set("redirect_uri", c.cfg.RedirectURL)
	params.Set("response_type", "code")
	params.Set("scope", whatsappScopes)
	params.Set("state", state)
	return c.cfg.AuthBase + "?" + params.Encode()
}

// Exchange swaps the callback code for an access token, then resolves the
// phone-number registration the token grants access to. The phone-number id
// doubles as the webhook routing key.
func (c *WhatsAppClient) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	params := url.Values{}
	params.Set("client_id", c.cfg.AppID)
	params.Set("client_secret", c.cfg.AppSecret)
	params.Set("redirect_uri", c.cfg.RedirectURL)
	params.Set("code", code)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.getJSON(ctx, c.cfg.APIBase+"/oauth/access_token?"+params.Encode(), "", &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "token exchange returned no access token"}
	}

	var phoneResp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, c.cfg.APIBase+"/me/phone_numbers", tokenResp.AccessToken, &phoneResp); err != nil {
		return nil, err
	}
	if len(phoneResp.Data) == 0 {
		return nil, &Error{Status: http.StatusBadGateway, Message: "no phone number registered for this account"}
	}

	var phone struct {
		ID                 string `json:"id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
	}
	if err := json.Unmarshal(phoneResp.Data[0], &phone); err != nil {
		return nil, fmt.Errorf("decode phone number record: %w", err)
	}

	return &ExchangeResult{
		Credentials: Credentials{
			AccessToken:   tokenResp.AccessToken,
			PhoneNumberID: phone.ID,
		},
		Metadata:          phoneResp.Data[0],
		ProviderAccountID: phone.ID,
	}, nil
}

// SendText delivers a free-form text message. The returned id is the
// provider message id recorded on the outbound message row.
func (c *WhatsAppClient) SendText(ctx context.Context, creds Credentials, to, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
	if err != nil {
		return "", fmt.Errorf("marshal send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.cfg.APIBase, creds.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("whatsapp send request failed")
		return "", fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		provErr := decodeError(resp)
		log.Error().
			Int("status", resp.StatusCode).
			Int("code", provErr.Code).
			Dur("elapsed", elapsed).
			Msg("whatsapp send rejected")
		return "", provErr
	}

	var sendResp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(sendResp.Messages) == 0 {
		return "", &Error{Status: resp.StatusCode, Message: "send response carried no message id"}
	}

	log.Info().
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("whatsapp message sent")

	return sendResp.Messages[0].ID, nil
}

func (c *WhatsAppClient) getJSON(ctx context.Context, rawURL, bearer string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

func decodeError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &Error{
			Status:  resp.StatusCode,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
		}
	}

	return &Error{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}
}
