package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"groupnotify/internal/domain/dispatch"
)

// Method is the delivery method served by the email providers.
const Method = "email"

const resendEndpoint = "https://api.resend.com/emails"

var _ dispatch.Provider = (*ResendProvider)(nil)

// Renderer turns a composed subject and body into HTML and plain text.
type Renderer interface {
	Render(subject, body string) (html, text string, err error)
}

// ResendProvider sends emails using the Resend API.
type ResendProvider struct {
	apiKey      string
	fromAddress string
	fromName    string
	endpoint    string
	renderer    Renderer
	httpClient  *http.Client
}

// NewResendProvider creates a new Resend email provider.
func NewResendProvider(apiKey, fromAddress, fromName string, renderer Renderer) *ResendProvider {
	return &ResendProvider{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		endpoint:    resendEndpoint,
		renderer:    renderer,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint points the provider at a different API URL.
func (p *ResendProvider) WithEndpoint(endpoint string) *ResendProvider {
	p.endpoint = endpoint
	return p
}

// Method returns the email delivery method.
func (p *ResendProvider) Method() string {
	return Method
}

// Send delivers an email via the Resend API and returns the message ID.
func (p *ResendProvider) Send(ctx context.Context, msg *dispatch.Message) (string, error) {
	if msg.To == nil || msg.To.Email == "" {
		return "", fmt.Errorf("recipient has no email address")
	}

	payload := map[string]any{
		"from":    formatFrom(p.fromName, p.fromAddress),
		"to":      []string{msg.To.Email},
		"subject": msg.Subject,
		"text":    msg.Body,
	}
	if p.renderer != nil {
		html, text, err := p.renderer.Render(msg.Subject, msg.Body)
		if err != nil {
			return "", fmt.Errorf("rendering email: %w", err)
		}
		payload["html"] = html
		payload["text"] = text
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message    string `json:"message"`
			StatusCode int    `json:"statusCode"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Message
		if msg == "" {
			msg = fmt.Sprintf("resend API error: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("resend: %s", msg)
	}

	var successResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return "", fmt.Errorf("parsing resend response: %w", err)
	}

	return successResp.ID, nil
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}
