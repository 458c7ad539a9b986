package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/db"
)

// WhatsAppSender sends cadence messages through a WhatsApp Cloud-API
// compatible HTTP endpoint.
type WhatsAppSender struct {
	client  *http.Client
	baseURL string
	token   string
	from    string
	logger  *zap.Logger
}

type WhatsAppConfig struct {
	APIURL      string
	AccessToken string
	FromNumber  string
	Timeout     time.Duration
}

// NewWhatsAppSender creates a new WhatsApp sender
func NewWhatsAppSender(logger *zap.Logger, cfg WhatsAppConfig) *WhatsAppSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WhatsAppSender{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.APIURL,
		token:   cfg.AccessToken,
		from:    cfg.FromNumber,
		logger:  logger,
	}
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers a text message to the recipient's phone number and
// returns the provider message id from the API response.
func (s *WhatsAppSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Channel != db.ChannelWhatsApp {
		return nil, fmt.Errorf("whatsapp sender only supports whatsapp, got: %s", req.Channel)
	}

	if req.To == "" {
		return nil, fmt.Errorf("whatsapp request missing recipient phone")
	}
	if req.Body == "" {
		return nil, fmt.Errorf("whatsapp request missing body")
	}

	payload := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               req.To,
		Type:             "text",
		Text:             whatsAppText{Body: req.Body},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.from)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsapp request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("User-Agent", "Leadgrid/1.0.0")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp returned non-2xx status: %d, body: %s", resp.StatusCode, string(respBytes))
	}

	var parsed whatsAppResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("decode whatsapp response: %w", err)
	}

	providerID := ""
	if len(parsed.Messages) > 0 {
		providerID = parsed.Messages[0].ID
	}

	s.logger.Info("whatsapp message sent",
		zap.String("message_id", req.MessageID.String()),
		zap.String("to", req.To),
		zap.String("provider_message_id", providerID),
		zap.Int("status_code", resp.StatusCode),
	)

	return &SendResult{ProviderMessageID: providerID}, nil
}

// SupportsChannel checks if this sender supports the whatsapp channel
func (s *WhatsAppSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelWhatsApp
}
