package messaging

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/store"
	"github.com/wolfman30/booking-assistant/internal/tenancy"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const maxWebhookBody = 1 << 20

// Inbound identifies a stored customer message that needs processing.
type Inbound struct {
	TenantID       string
	Instance       string
	ConversationID string
	ContactPhone   string
	PushName       string
	MessageID      string
}

// InboundHandler receives stored inbound messages. It must return quickly.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in Inbound)
}

type tenantResolver interface {
	TenantByInstance(ctx context.Context, instance string) (store.Tenant, error)
}

type threadResolver interface {
	ResolveThread(ctx context.Context, tenantID, contactPhone string, now time.Time) (conversation.Thread, error)
}

type messageWriter interface {
	CreateMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
}

// WebhookHandler accepts Evolution webhooks on POST /webhooks/whatsapp/{instance}.
// Once the payload parses it always answers 200, so the gateway never
// retries a message the assistant already has.
type WebhookHandler struct {
	secret   string
	tenants  tenantResolver
	threads  threadResolver
	messages messageWriter
	inbound  InboundHandler
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewWebhookHandler(secret string, tenants tenantResolver, threads threadResolver, messages messageWriter, inbound InboundHandler, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if tenants == nil {
		panic("messaging: tenant resolver cannot be nil")
	}
	if threads == nil {
		panic("messaging: thread resolver cannot be nil")
	}
	if messages == nil {
		panic("messaging: message writer cannot be nil")
	}
	if inbound == nil {
		panic("messaging: inbound handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:   secret,
		tenants:  tenants,
		threads:  threads,
		messages: messages,
		inbound:  inbound,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx, span := tracer.Start(r.Context(), "messaging.evolution.webhook")
	defer span.End()

	if h.secret != "" && !h.authorized(r) {
		h.logger.Warn("invalid webhook secret")
		h.metrics.ObserveInbound("unknown", "unauthorized")
		span.RecordError(errors.New("invalid webhook secret"))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		h.logger.Warn("failed to parse webhook", "error", err)
		h.metrics.ObserveInbound("unknown", "bad_request")
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer func() {
		h.metrics.ObserveWebhookLatency(payload.Event, h.now().Sub(start).Seconds())
	}()

	status := h.accept(ctx, chi.URLParam(r, "instance"), payload)
	h.metrics.ObserveInbound(payload.Event, status)
	span.SetAttributes(attribute.String("messaging.status", status))
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	got := r.Header.Get("apikey")
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// accept stores the message and hands it on. The returned status labels the
// metric; every path still acknowledges the webhook.
func (h *WebhookHandler) accept(ctx context.Context, instance string, p WebhookPayload) string {
	if p.Event != "" && p.Event != EventMessagesUpsert {
		return "ignored_event"
	}
	if p.Data.Key.FromMe {
		return "ignored_from_me"
	}
	if instance == "" {
		instance = p.Instance
	}
	phone := p.Data.Phone()
	text, kind := p.Data.Text()
	if instance == "" || phone == "" || text == "" {
		return "ignored_empty"
	}

	tenant, err := h.tenants.TenantByInstance(ctx, instance)
	if err != nil {
		h.logger.Warn("unknown messaging instance", "instance", instance, "error", err)
		return "unknown_instance"
	}
	ctx = tenancy.WithTenantID(ctx, tenant.ID)

	now := h.now()
	thread, err := h.threads.ResolveThread(ctx, tenant.ID, phone, now)
	if err != nil {
		h.logger.Error("failed to resolve thread", "tenant_id", tenant.ID, "error", err)
		return "error"
	}
	log := h.logger.WithConversation(tenant.ID, thread.ID)

	msgID := p.Data.Key.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	_, err = h.messages.CreateMessage(ctx, conversation.Message{
		ID:        msgID,
		ThreadID:  thread.ID,
		Role:      conversation.RoleCustomer,
		Content:   text,
		Kind:      kind,
		CreatedAt: p.Data.SentAt(now),
	})
	if errors.Is(err, store.ErrDuplicate) {
		log.Debug("duplicate webhook delivery", "message_id", msgID)
		return "duplicate"
	}
	if err != nil {
		log.Error("failed to store inbound message", "message_id", msgID, "error", err)
		return "error"
	}

	h.inbound.HandleInbound(context.WithoutCancel(ctx), Inbound{
		TenantID:       tenant.ID,
		Instance:       instance,
		ConversationID: thread.ID,
		ContactPhone:   phone,
		PushName:       p.Data.PushName,
		MessageID:      msgID,
	})
	log.Info("inbound message accepted", "message_id", msgID, "kind", string(kind))
	return "accepted"
}
