package webhook_api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/ParcelDesk/internal/metrics"
	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxBodyBytes = 1 << 20

type EventProcessor interface {
	Process(ctx context.Context, ev models.InboundEvent) (string, error)
}

type Deduper interface {
	IsNew(ctx context.Context, deliveryID string) (bool, error)
	Forget(ctx context.Context, deliveryID string) error
}

type SenderRegistry interface {
	GetSenderOrg(ctx context.Context, phone string) (uint64, bool, error)
}

type OrderGetter interface {
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
}

type Responder interface {
	SendText(ctx context.Context, to, text string) error
}

type CooldownLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type WebhookAPI struct {
	engine    EventProcessor
	dedup     Deduper
	senders   SenderRegistry
	orders    OrderGetter
	responder Responder
	limiter   CooldownLimiter

	secret string

	unknownSenderCooldown time.Duration
}

func New(engine EventProcessor, dedup Deduper, senders SenderRegistry, orders OrderGetter, responder Responder) *WebhookAPI {
	return &WebhookAPI{
		engine:                engine,
		dedup:                 dedup,
		senders:               senders,
		orders:                orders,
		responder:             responder,
		unknownSenderCooldown: time.Hour,
	}
}

// WithSecret включает проверку подписи X-Signature (HMAC-SHA256 от тела).
func (a *WebhookAPI) WithSecret(secret string) *WebhookAPI {
	a.secret = secret
	return a
}

func (a *WebhookAPI) WithCooldownLimiter(l CooldownLimiter, cooldown time.Duration) *WebhookAPI {
	a.limiter = l
	if cooldown > 0 {
		a.unknownSenderCooldown = cooldown
	}
	return a
}

func (a *WebhookAPI) Router(swaggerPath string) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger.json"),
		))
	}

	r.Post("/v1/webhook", a.handleWebhook)
	r.Get("/v1/orders/{orderID}", a.handleGetOrder)

	return r
}

type webhookMedia struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
}

type webhookPayload struct {
	DeliveryID string         `json:"delivery_id"`
	Sender     string         `json:"sender"`
	Text       string         `json:"text"`
	Media      []webhookMedia `json:"media"`
	Timestamp  int64          `json:"timestamp"`
}

func (a *WebhookAPI) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	if a.secret != "" && !verifySignature(a.secret, body, r.Header.Get("X-Signature")) {
		metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.DeliveryID == "" || p.Sender == "" {
		writeError(w, http.StatusBadRequest, "delivery_id and sender are required")
		return
	}

	orgID, known, err := a.senders.GetSenderOrg(ctx, p.Sender)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "sender lookup")
		return
	}
	if !known {
		metrics.WebhookEvents.WithLabelValues("unknown_sender").Inc()
		a.notifyUnknownSender(ctx, p.Sender)
		// 200: перевозчику тут ретраить нечего.
		writeOK(w)
		return
	}

	isNew, err := a.dedup.IsNew(ctx, p.DeliveryID)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "dedup")
		return
	}
	if !isNew {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		writeOK(w)
		return
	}

	ev := models.InboundEvent{
		DeliveryID: p.DeliveryID,
		Sender:     p.Sender,
		OrgID:      orgID,
		Text:       p.Text,
		ReceivedAt: time.Unix(p.Timestamp, 0),
	}
	for _, m := range p.Media {
		ev.Media = append(ev.Media, models.MediaRef{ID: m.ID, ContentType: m.ContentType})
	}

	reply, perr := a.engine.Process(ctx, ev)

	if reply != "" {
		if serr := a.responder.SendText(ctx, p.Sender, reply); serr != nil {
			slog.Error("send reply", "sender", p.Sender, "error", serr.Error())
		}
	}

	if perr != nil {
		// Снимаем отметку дедупликации: повтор доставки должен пройти.
		if ferr := a.dedup.Forget(ctx, p.DeliveryID); ferr != nil {
			slog.Error("dedup forget", "delivery_id", p.DeliveryID, "error", ferr.Error())
		}
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		slog.Error("process event", "delivery_id", p.DeliveryID, "sender", p.Sender, "error", perr.Error())
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	metrics.WebhookEvents.WithLabelValues("processed").Inc()
	writeOK(w)
}

func (a *WebhookAPI) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := a.orders.GetOrderByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get order")
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o)
}

// notifyUnknownSender отвечает незнакомому номеру не чаще раза в cooldown.
func (a *WebhookAPI) notifyUnknownSender(ctx context.Context, sender string) {
	if a.responder == nil {
		return
	}
	if a.limiter != nil {
		ok, _, err := a.limiter.Allow(ctx, "unknown:"+sender, 1, a.unknownSenderCooldown)
		if err != nil || !ok {
			return
		}
	}
	if err := a.responder.SendText(ctx, sender, "Этот номер не подключён к приёму посылок. Обратитесь к оператору."); err != nil {
		slog.Warn("notify unknown sender", "sender", sender, "error", err.Error())
	}
}

func verifySignature(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), b)
}

// SignBody returns the lowercase-hex HMAC-SHA256 of the body (for senders
// of test traffic and for the fake carrier).
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
