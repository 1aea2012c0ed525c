// Package workflow управляет прохождением одного заказа по жизненному циклу
// через широковещательную групповую беседу с участниками (ферма, перевозчик,
// бухгалтер и опциональный наблюдатель).
package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/codec"
	"github.com/vladislavdragonenkov/lms/internal/domain"
	"github.com/vladislavdragonenkov/lms/internal/metrics"
)

// Фиксированный состав рассылки. Наблюдатель (helpdesk) добавляется
// опционально и никогда не влияет на условие завершения беседы.
const (
	TopicShipper    = "logistics.shipper"
	TopicFarm       = "logistics.farm"
	TopicAccountant = "logistics.accountant"
	TopicHelpdesk   = "logistics.helpdesk"
)

// endMarker завершает групповую беседу.
const endMarker = "DELIVERED"

// Тексты для восстановимых ошибок ввода. Возвращаются как обычные ответы,
// не как ошибки: пользователь может просто повторить запрос.
const (
	msgInvalidQuantityPrice = "Price and quantity must both be greater than zero."
	msgNoFarm               = "No farm provided. Please specify a farm."
	msgNoUpdates            = "No non-idle status updates received."
)

// Config задаёт параметры оркестратора.
type Config struct {
	// Timeout — общий лимит одной групповой беседы.
	Timeout time.Duration
	// Retry — политика повторов транзиентных ошибок broadcast.
	Retry RetryConfig
	// StreamPacing — косметическая пауза между событиями в потоковом
	// режиме; не влияет на корректность, в тестах обнуляется.
	StreamPacing time.Duration
	// ObserverEnabled добавляет helpdesk в состав рассылки.
	ObserverEnabled bool
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		Timeout:      60 * time.Second,
		Retry:        DefaultRetryConfig(),
		StreamPacing: time.Second,
	}
}

// Orchestrator ведёт заказ через групповую беседу в двух режимах:
// агрегирующем (блокирующем) и потоковом. Межзаказного разделяемого
// состояния не держит — каждый прогон независим.
type Orchestrator struct {
	dialer  domain.BroadcastDialer
	store   domain.OrderEventStore // опционально: запись событий для внешних подписчиков
	cfg     Config
	logger  *log.Entry
	metrics *metrics.WorkflowMetrics
	sleep   func(time.Duration)
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithStore включает запись декодированных событий в журнал для внешних
// подписчиков (long-poll / server-push).
func WithStore(store domain.OrderEventStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics подключает метрики workflow.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleeper подменяет функцию задержки (для тестов retry и pacing).
func WithSleeper(sleep func(time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New создаёт оркестратор. Dialer — единственная обязательная зависимость;
// он передаётся явно при конструировании, а не берётся из глобалов.
func New(dialer domain.BroadcastDialer, cfg Config, logger *log.Entry, options ...Option) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "workflow")
	}
	o := &Orchestrator{
		dialer: dialer,
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// roster возвращает состав рассылки с учётом флага наблюдателя.
func (o *Orchestrator) roster() []string {
	base := []string{TopicShipper, TopicFarm, TopicAccountant}
	if o.cfg.ObserverEnabled {
		return append(base, TopicHelpdesk)
	}
	return base
}

// validate проверяет вход и возвращает текст для пользователя при нарушении.
func validate(farm string, quantity int, price float64) (string, bool) {
	if price <= 0 || quantity <= 0 {
		return msgInvalidQuantityPrice, false
	}
	if strings.TrimSpace(farm) == "" {
		return msgNoFarm, false
	}
	return "", true
}

// CreateOrder проводит заказ через групповую беседу в блокирующем режиме и
// возвращает агрегированную сводку статусов. Нарушения ввода возвращаются
// обычным текстом; фатальны только недоступность транспорта и исчерпание
// retry попыток.
func (o *Orchestrator) CreateOrder(ctx context.Context, farm string, quantity int, price float64) (string, error) {
	if msg, ok := validate(farm, quantity, price); !ok {
		return msg, nil
	}
	farm = strings.ToLower(strings.TrimSpace(farm))

	orderID := strings.ReplaceAll(uuid.NewString(), "-", "")
	initMessage := codec.BuildOrderRequest(orderID, receiverFor(farm), quantity, price)
	recipients := o.roster()

	logger := o.logger.WithField("order_id", orderID)
	logger.WithFields(log.Fields{
		"farm":       farm,
		"quantity":   quantity,
		"price":      price,
		"recipients": recipients,
	}).Info("broadcasting order")

	if o.metrics != nil {
		o.metrics.RecordOrderStarted()
	}
	start := time.Now()

	session, err := o.dialer.Dial(ctx)
	if err != nil {
		// Невозможность установить сессию — отдельный класс ошибок,
		// не подлежащий retry.
		if o.metrics != nil {
			o.metrics.RecordOrderFailed()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("close broadcast session failed")
		}
	}()

	var replies []domain.Reply
	err = o.executeWithRetry(logger, func() error {
		var broadcastErr error
		replies, broadcastErr = session.Broadcast(ctx, initMessage, recipients, endMarker, o.cfg.Timeout)
		return broadcastErr
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordOrderFailed()
		}
		return "", err
	}

	summary := SummarizeReplies(replies)
	o.recordReplies(orderID, replies)

	if o.metrics != nil {
		o.metrics.RecordOrderDuration(time.Since(start))
		if strings.Contains(summary, "(final)") {
			o.metrics.RecordOrderDelivered()
		}
	}
	logger.WithField("replies", len(replies)).Info("order broadcast completed")
	return summary, nil
}

// Update — один элемент потокового ответа: либо декодированное событие,
// либо финальный (или сервисный) текст.
type Update struct {
	Event *domain.OrderEvent
	Text  string
}

// CreateOrderStream проводит заказ в потоковом режиме. Канал закрывается
// после завершения беседы; итоговое подтверждение доставки приходит
// последним элементом. Отмена ctx прекращает поток и детерминированно
// освобождает сессию.
func (o *Orchestrator) CreateOrderStream(ctx context.Context, farm string, quantity int, price float64) (<-chan Update, error) {
	out := make(chan Update)

	if msg, ok := validate(farm, quantity, price); !ok {
		go func() {
			defer close(out)
			select {
			case out <- Update{Text: msg}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}
	farm = strings.ToLower(strings.TrimSpace(farm))

	orderID := uuid.NewString()
	receiver := receiverFor(farm)
	initMessage := codec.BuildOrderRequest(orderID, receiver, quantity, price)
	recipients := o.roster()

	logger := o.logger.WithField("order_id", orderID)

	session, err := o.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}

	replies, err := session.BroadcastStream(ctx, initMessage, recipients, endMarker, o.cfg.Timeout)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBroadcastFailed, err)
	}

	if o.metrics != nil {
		o.metrics.RecordOrderStarted()
		o.metrics.StreamSessionOpened()
	}

	go func() {
		defer close(out)
		defer func() {
			if closeErr := session.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("close broadcast session failed")
			}
			if o.metrics != nil {
				o.metrics.StreamSessionClosed()
			}
		}()

		// Синтетическое стартовое событие: вызывающая сторона видит
		// прогресс до первого сетевого ответа.
		initial := domain.OrderEvent{
			OrderID:   orderID,
			Sender:    "Supervisor",
			Receiver:  receiver,
			Message:   fmt.Sprintf("Create an order %s with price %s and quantity %d.", orderID, strconv.FormatFloat(price, 'f', -1, 64), quantity),
			State:     domain.StateReceivedOrder,
			Timestamp: time.Now().UTC(),
		}
		if !o.emit(ctx, out, Update{Event: &initial}) {
			return
		}
		o.recordEvent(initial)

		delivered := false
		for reply := range replies {
			if reply.Failed() {
				logger.WithError(reply.Err).Warn("broadcast reply error")
				continue
			}
			if strings.Contains(strings.ToLower(reply.Text), "idle") {
				continue
			}
			event, ok := codec.ParseOrderEvent(reply)
			if !ok {
				// Не соответствует грамматике — молча отбрасываем.
				if o.metrics != nil {
					o.metrics.RecordReplyDropped()
				}
				continue
			}
			if event.State == domain.StateDelivered {
				delivered = true
			}
			if o.cfg.StreamPacing > 0 {
				o.sleep(o.cfg.StreamPacing)
			}
			if !o.emit(ctx, out, Update{Event: &event}) {
				return
			}
			o.recordEvent(event)
		}

		if delivered {
			if o.metrics != nil {
				o.metrics.RecordOrderDelivered()
			}
			final := fmt.Sprintf("Order %s from %s for %d units at $%.2f has been successfully delivered.",
				orderID, titleCase(farm), quantity, price)
			o.emit(ctx, out, Update{Text: final})
		}
	}()

	return out, nil
}

// emit отправляет update, прекращая работу при отмене контекста.
func (o *Orchestrator) emit(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// recordEvent пишет событие в журнал для внешних подписчиков.
func (o *Orchestrator) recordEvent(event domain.OrderEvent) {
	if o.store == nil {
		return
	}
	if _, err := o.store.Append(event.OrderID, event); err != nil {
		o.logger.WithError(err).WithField("order_id", event.OrderID).Warn("append order event failed")
	} else if o.metrics != nil {
		o.metrics.RecordStoreEvent()
	}
}

// recordReplies декодирует и записывает ответы агрегирующего режима.
func (o *Orchestrator) recordReplies(orderID string, replies []domain.Reply) {
	if o.store == nil {
		return
	}
	for _, reply := range replies {
		if reply.Failed() || strings.Contains(strings.ToLower(reply.Text), "idle") {
			continue
		}
		event, ok := codec.ParseOrderEvent(reply)
		if !ok {
			continue
		}
		if event.OrderID == "unknown" {
			event.OrderID = orderID
		}
		o.recordEvent(event)
	}
}

// receiverFor строит отображаемое имя фермы-получателя.
func receiverFor(farm string) string {
	return titleCase(farm) + " Farm"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
