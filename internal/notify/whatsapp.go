package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// WhatsAppTransport sends template-free text messages through a WhatsApp
// Business API gateway.
type WhatsAppTransport struct {
	apiBase    string
	token      string
	sender     string
	httpClient *http.Client
}

func NewWhatsAppTransport(apiBase, token, sender string) *WhatsAppTransport {
	return &WhatsAppTransport{
		apiBase: apiBase,
		token:   token,
		sender:  sender,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (t *WhatsAppTransport) Channel() string {
	return entity.ChannelWhatsapp
}

// Send posts one text message. A user without a phone number cannot receive
// WhatsApp and the dispatcher falls through to the next channel.
func (t *WhatsAppTransport) Send(ctx context.Context, user *entity.User, subject, body string) error {
	if t.apiBase == "" || t.token == "" {
		return fmt.Errorf("whatsapp transport not configured")
	}
	if user.Phone == "" {
		return fmt.Errorf("user %s has no phone number", user.ID)
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                user.Phone,
		"type":              "text",
		"text": map[string]string{
			"body": subject + "\n\n" + body,
		},
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", t.apiBase, t.sender)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("whatsapp api status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return nil
}
