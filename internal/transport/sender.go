package transport

import (
	"context"

	"github.com/google/uuid"
)

// SendRequest carries one outbound cadence message to a channel
// provider.
type SendRequest struct {
	MessageID uuid.UUID
	Channel   string
	To        string
	Subject   string
	Body      string
}

// SendResult is what the provider handed back on success.
type SendResult struct {
	ProviderMessageID string
}

// Sender is the unified contract for channel transports.
// Implementations: Email (SES), WhatsApp (Cloud API HTTP), Log (dev).
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	SupportsChannel(channel string) bool
}
