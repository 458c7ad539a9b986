package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/transport"
)

// ProtectedSender wraps a channel transport with a CircuitBreaker.
// When the downstream provider (SES, WhatsApp Cloud API) starts
// failing, the circuit opens and cadence sends fail fast instead of
// burning the tick's wall-clock budget on a dead service.
type ProtectedSender struct {
	sender  transport.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender transport.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts to send a message through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately.
func (p *ProtectedSender) Send(ctx context.Context, req transport.SendRequest) (*transport.SendResult, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("message_id", req.MessageID.String()),
			zap.String("channel", req.Channel),
			zap.String("state", p.breaker.GetState().String()),
		)
		return nil, fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	result, err := p.sender.Send(ctx, req)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return nil, err
	}

	p.breaker.RecordSuccess()
	return result, nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
