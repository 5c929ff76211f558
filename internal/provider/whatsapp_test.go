package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(apiBase string) *WhatsAppClient {
	return NewWhatsAppClient(WhatsAppConfig{
		AppID:       "app-1",
		AppSecret:   "app-secret",
		RedirectURL: "https://clinic.example.com/callback",
		APIBase:     apiBase,
		AuthBase:    "https://auth.example.com/dialog/oauth",
	}, 5*time.Second)
}

func TestWhatsAppClient_AuthorizeURL(t *testing.T) {
	client := newTestClient("https://graph.example.com")

	url := client.AuthorizeURL("signed-state")

	assert.True(t, strings.HasPrefix(url, "https://auth.example.com/dialog/oauth?"))
	assert.Contains(t, url, "client_id=app-1")
	assert.Contains(t, url, "state=signed-state")
	assert.Contains(t, url, "response_type=code")
}

func TestWhatsAppClient_SendText(t *testing.T) {
	t.Run("returns provider message id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/pn-123/messages", r.URL.Path)
			assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "whatsapp", payload["messaging_product"])
			assert.Equal(t, "5562996915034", payload["to"])

			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "wamid.out.1"}},
			})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		id, err := client.SendText(context.Background(), Credentials{
			AccessToken:   "access-token",
			PhoneNumberID: "pn-123",
		}, "5562996915034", "hello")

		require.NoError(t, err)
		assert.Equal(t, "wamid.out.1", id)
	})

	t.Run("classifies expired token as auth failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "Error validating access token", "code": 190},
			})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.SendText(context.Background(), Credentials{PhoneNumberID: "pn-123"}, "5562996915034", "hello")

		require.Error(t, err)
		assert.True(t, IsAuthError(err))
	})

	t.Run("classifies server error as non-auth failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream boom"))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.SendText(context.Background(), Credentials{PhoneNumberID: "pn-123"}, "5562996915034", "hello")

		require.Error(t, err)
		assert.False(t, IsAuthError(err))

		var provErr *Error
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusInternalServerError, provErr.Status)
	})
}

func TestWhatsAppClient_Exchange(t *testing.T) {
	t.Run("exchanges code and resolves phone number", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/access_token":
				assert.Equal(t, "auth-code", r.URL.Query().Get("code"))
				json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
			case "/me/phone_numbers":
				assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]string{{
						"id":                   "pn-9",
						"display_phone_number": "+55 62 3212-0000",
						"verified_name":        "Clinica Exemplo",
					}},
				})
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Exchange(context.Background(), "auth-code")

		require.NoError(t, err)
		assert.Equal(t, "fresh-token", result.Credentials.AccessToken)
		assert.Equal(t, "pn-9", result.Credentials.PhoneNumberID)
		assert.Equal(t, "pn-9", result.ProviderAccountID)
		assert.Contains(t, string(result.Metadata), "Clinica Exemplo")
	})

	t.Run("fails when no phone number is registered", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/access_token":
				json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
			case "/me/phone_numbers":
				json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.Exchange(context.Background(), "auth-code")

		assert.Error(t, err)
	})
}
