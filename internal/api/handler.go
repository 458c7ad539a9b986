package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/cadence"
	"github.com/leadgrid/leadgrid/internal/db"
	"github.com/leadgrid/leadgrid/internal/metrics"
)

// CadenceRunner is one channel's engine entry point.
type CadenceRunner interface {
	Run(ctx context.Context, userID uuid.UUID) (*cadence.RunResult, error)
}

// Repository defines the database operations the handlers need.
type Repository interface {
	CreateLead(ctx context.Context, lead *db.Lead) error
	CreateOutboundMessage(ctx context.Context, msg *db.OutboundMessage) error
	GetMessageByProviderID(ctx context.Context, providerMessageID string) (*db.OutboundMessage, error)
	UpdateMessageDelivery(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	MarkLeadTerminal(ctx context.Context, leadID uuid.UUID, status string, at time.Time) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger     *zap.Logger
	repo       Repository
	runners    map[string]CadenceRunner
	userID     uuid.UUID
	runTimeout time.Duration
}

// NewHandler creates a new API handler. runners maps channel name to
// that channel's cadence engine.
func NewHandler(logger *zap.Logger, repo Repository, runners map[string]CadenceRunner, userID uuid.UUID, runTimeout time.Duration) *Handler {
	if runTimeout == 0 {
		runTimeout = 300 * time.Second
	}
	return &Handler{
		logger:     logger,
		repo:       repo,
		runners:    runners,
		userID:     userID,
		runTimeout: runTimeout,
	}
}

// TriggerCadence handles POST /v1/cadence/{channel}/run — the external
// periodic trigger. Safe to call more often than needed: excess calls
// land on the engine's no-op outcomes. The run gets a wall-clock budget
// so a slow transport cannot wedge the trigger.
func (h *Handler) TriggerCadence(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	runner, ok := h.runners[channel]
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_channel", "Unknown channel", "channel must be email or whatsapp")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()

	result, err := runner.Run(ctx, h.userID)
	if err != nil {
		h.logger.Error("cadence run failed",
			zap.Error(err),
			zap.String("channel", channel),
		)
		h.writeError(w, http.StatusInternalServerError, "run_failed", "Cadence run failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// DeliveryEventRequest is an inbound provider delivery event.
type DeliveryEventRequest struct {
	ProviderMessageID string `json:"provider_message_id"`
	Event             string `json:"event"`
	Timestamp         int64  `json:"timestamp,omitempty"` // unix seconds; defaults to now
}

// deliveryEventStatus maps provider event names onto message statuses.
var deliveryEventStatus = map[string]string{
	"sent":       db.MessageStatusSent,
	"delivered":  db.MessageStatusDelivered,
	"opened":     db.MessageStatusRead,
	"read":       db.MessageStatusRead,
	"replied":    db.MessageStatusReplied,
	"bounced":    db.MessageStatusBounced,
	"complained": db.MessageStatusFailed,
}

// deliveryEventLeadStatus maps the reactive-stop events onto terminal
// lead statuses.
var deliveryEventLeadStatus = map[string]string{
	"replied":    db.LeadStatusReplied,
	"bounced":    db.LeadStatusBounced,
	"complained": db.LeadStatusOptedOut,
}

// HandleDeliveryEvent handles POST /v1/webhooks/delivery. Events are
// keyed by provider message id; updates are forward-only and the
// reactive-stop events also move the lead into its absorbing status.
func (h *Handler) HandleDeliveryEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DeliveryEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.ProviderMessageID == "" || req.Event == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "provider_message_id and event are required")
		return
	}

	newStatus, ok := deliveryEventStatus[req.Event]
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown event", "event must be one of sent, delivered, opened, read, replied, bounced, complained")
		return
	}

	msg, err := h.repo.GetMessageByProviderID(ctx, req.ProviderMessageID)
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Unknown provider message id", "")
			return
		}
		h.logger.Error("failed to look up message for delivery event", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process event", "")
		return
	}

	at := time.Now()
	if req.Timestamp > 0 {
		at = time.Unix(req.Timestamp, 0)
	}

	metrics.RecordDeliveryEvent(msg.Channel, req.Event)

	if !db.MessageStatusAdvances(msg.Status, newStatus) {
		// Stale or duplicate event; the record already moved past it.
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"applied":false}`))
		return
	}

	if err := h.repo.UpdateMessageDelivery(ctx, msg.ID, newStatus, at); err != nil {
		h.logger.Error("failed to apply delivery event", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process event", "")
		return
	}

	if leadStatus, stop := deliveryEventLeadStatus[req.Event]; stop {
		if err := h.repo.MarkLeadTerminal(ctx, msg.LeadID, leadStatus, at); err != nil {
			h.logger.Error("failed to mark lead terminal",
				zap.Error(err),
				zap.String("lead_id", msg.LeadID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process event", "")
			return
		}
	}

	h.logger.Info("delivery event applied",
		zap.String("message_id", msg.ID.String()),
		zap.String("event", req.Event),
		zap.String("channel", msg.Channel),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"applied":true}`))
}

// EnrichmentMessage is one generated cadence message from the
// enrichment pipeline.
type EnrichmentMessage struct {
	Channel        string `json:"channel"`
	SequenceNumber int    `json:"sequence_number"`
	Subject        string `json:"subject,omitempty"`
	Body           string `json:"body"`
}

// EnrichmentRequest is the callback body from the external
// extraction/enrichment pipeline: one lead plus its generated cadence
// content.
type EnrichmentRequest struct {
	LeadID      string              `json:"lead_id"`
	CampaignID  string              `json:"campaign_id"`
	Name        string              `json:"name"`
	Company     string              `json:"company"`
	Email       string              `json:"email"`
	Phone       string              `json:"phone"`
	CadenceType string              `json:"cadence_type"`
	Messages    []EnrichmentMessage `json:"messages"`
}

// HandleEnrichment handles POST /v1/webhooks/enrichment: upserts the
// enriched lead and creates its pending cadence messages. Replays are
// safe — the (lead, channel, sequence) unique index swallows duplicates.
func (h *Handler) HandleEnrichment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.CampaignID == "" || req.CadenceType == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "campaign_id and cadence_type are required")
		return
	}

	switch req.CadenceType {
	case db.CadenceEmailOnly, db.CadenceWhatsAppOnly, db.CadenceHybrid:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid cadence_type", "cadence_type must be email_only, whatsapp_only, or hybrid")
		return
	}

	campaignID, err := uuid.Parse(req.CampaignID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign_id", "campaign_id must be a valid UUID")
		return
	}

	leadID := uuid.New()
	if req.LeadID != "" {
		leadID, err = uuid.Parse(req.LeadID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid lead_id", "lead_id must be a valid UUID")
			return
		}
	}

	lead := &db.Lead{
		ID:          leadID,
		CampaignID:  campaignID,
		Name:        req.Name,
		Company:     req.Company,
		Email:       req.Email,
		Phone:       req.Phone,
		Status:      db.LeadStatusEnriched,
		CadenceType: req.CadenceType,
	}

	if err := h.repo.CreateLead(ctx, lead); err != nil {
		h.logger.Error("failed to upsert enriched lead", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to store lead", "")
		return
	}

	created := 0
	for _, m := range req.Messages {
		if m.SequenceNumber < 1 || m.SequenceNumber > 3 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid sequence_number", "sequence_number must be 1, 2, or 3")
			return
		}

		var recipient string
		switch m.Channel {
		case db.ChannelEmail:
			recipient = req.Email
		case db.ChannelWhatsApp:
			recipient = req.Phone
		default:
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "channel must be email or whatsapp")
			return
		}

		msg := &db.OutboundMessage{
			ID:             uuid.New(),
			LeadID:         leadID,
			Channel:        m.Channel,
			SequenceNumber: m.SequenceNumber,
			Status:         db.MessageStatusPending,
			Subject:        m.Subject,
			Body:           m.Body,
			Recipient:      recipient,
		}

		if err := h.repo.CreateOutboundMessage(ctx, msg); err != nil {
			h.logger.Error("failed to create cadence message", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to store messages", "")
			return
		}
		created++
	}

	h.logger.Info("enrichment callback processed",
		zap.String("lead_id", leadID.String()),
		zap.String("cadence_type", req.CadenceType),
		zap.Int("messages", created),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"lead_id":  leadID.String(),
		"messages": created,
	})
}

// writeError writes a problem+json error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
