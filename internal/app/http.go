package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// defaultPollTimeout ограничивает long-poll запросы без явного timeout.
const defaultPollTimeout = 30 * time.Second

// orderRequest — тело POST /agent/orders и /agent/orders/stream.
type orderRequest struct {
	Farm     string  `json:"farm"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// orderResponse — ответ агрегирующего режима.
type orderResponse struct {
	Summary string `json:"summary"`
}

// streamItem — одна NDJSON-строка потокового режима.
type streamItem struct {
	Event *domain.OrderEvent `json:"event,omitempty"`
	Text  string             `json:"text,omitempty"`
}

// eventsResponse — ответ long-poll чтения событий заказа.
type eventsResponse struct {
	Events []domain.OrderEvent `json:"events"`
	Next   int                 `json:"next"`
}

// updatesResponse — ответ long-poll чтения журнала создания заказов.
type updatesResponse struct {
	Orders  []domain.NewOrderEntry `json:"orders"`
	NextSeq int64                  `json:"next_seq"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// apiHandler связывает HTTP-маршруты с оркестратором и ledger.
type apiHandler struct {
	deps   *Dependencies
	logger *log.Entry
}

// NewAPIHandler строит маршрутизатор публичного HTTP API.
func NewAPIHandler(deps *Dependencies) http.Handler {
	h := &apiHandler{
		deps:   deps,
		logger: deps.Logger.WithField("layer", "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/orders", h.createOrder)
	mux.HandleFunc("POST /agent/orders/stream", h.createOrderStream)
	mux.HandleFunc("GET /orders/{id}/events", h.orderEvents)
	mux.HandleFunc("GET /orders/updates", h.orderUpdates)
	mux.HandleFunc("GET /orders/latest", h.latestOrder)
	mux.HandleFunc("DELETE /orders/{id}", h.deleteOrder)
	return mux
}

// createOrder — агрегирующий режим: блокируется до завершения беседы и
// возвращает сводку статусов одной строкой.
func (h *apiHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	summary, err := h.deps.Orchestrator.CreateOrder(r.Context(), req.Farm, req.Quantity, req.Price)
	if err != nil {
		h.logger.WithError(err).Warn("create order failed")
		writeJSON(w, statusForError(err), errorResponse{Error: messageForError(err)})
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{Summary: summary})
}

// createOrderStream — потоковый режим: события уходят клиенту по одной
// NDJSON-строке по мере поступления.
func (h *apiHandler) createOrderStream(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	updates, err := h.deps.Orchestrator.CreateOrderStream(r.Context(), req.Farm, req.Quantity, req.Price)
	if err != nil {
		h.logger.WithError(err).Warn("create order stream failed")
		writeJSON(w, statusForError(err), errorResponse{Error: messageForError(err)})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for update := range updates {
		item := streamItem{Event: update.Event, Text: update.Text}
		if err := encoder.Encode(item); err != nil {
			h.logger.WithError(err).Debug("stream client gone")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// orderEvents — long-poll чтение событий заказа начиная с индекса after.
func (h *apiHandler) orderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	after := queryInt(r, "after", 0)
	timeout := queryDuration(r, "timeout", defaultPollTimeout)

	events, next, err := h.deps.Store.WaitForEvents(r.Context(), orderID, after, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.WithError(err).Warn("order events poll failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: messageForError(err)})
		return
	}
	if events == nil {
		events = []domain.OrderEvent{}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Next: next})
}

// orderUpdates — long-poll чтение журнала создания заказов после after_seq.
func (h *apiHandler) orderUpdates(w http.ResponseWriter, r *http.Request) {
	afterSeq := int64(queryInt(r, "after_seq", 0))
	timeout := queryDuration(r, "timeout", defaultPollTimeout)

	orders, nextSeq, err := h.deps.Store.WaitForNewOrders(r.Context(), afterSeq, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.WithError(err).Warn("order updates poll failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: messageForError(err)})
		return
	}
	if orders == nil {
		orders = []domain.NewOrderEntry{}
	}

	writeJSON(w, http.StatusOK, updatesResponse{Orders: orders, NextSeq: nextSeq})
}

// latestOrder возвращает последнюю запись журнала создания заказов.
func (h *apiHandler) latestOrder(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.deps.Store.LatestOrder()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no orders yet"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// deleteOrder удаляет события заказа из ledger.
func (h *apiHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Delete(r.PathValue("id")); err != nil {
		h.logger.WithError(err).Warn("order delete failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: messageForError(err)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusForError(err error) int {
	switch {
	case domain.IsTransportUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRetriesExhausted), errors.Is(err, domain.ErrBroadcastFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageForError отображает класс ошибки в фиксированную фразу для клиента.
// Исходная ошибка с деталями транспорта остаётся только в логе.
func messageForError(err error) string {
	switch {
	case domain.IsTransportUnavailable(err):
		return "Service unavailable: message broker is unreachable."
	case errors.Is(err, domain.ErrRetriesExhausted), errors.Is(err, domain.ErrBroadcastFailed):
		return "Internal server error: failed to process order after retries."
	default:
		return "Internal server error."
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func queryDuration(r *http.Request, key string, fallback time.Duration) time.Duration {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
