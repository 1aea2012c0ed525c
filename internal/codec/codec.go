// Package codec строит канонические переходные сообщения жизненного цикла
// заказа и разбирает сырые ответы участников обратно в структурные события.
//
// Wire-грамматика (текстовая):
//
//	"<STATE> | <Sender> -> <Receiver>: <сообщение, содержащее 'Order <id>'>"
package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

var (
	orderIDRe    = regexp.MustCompile(`(?i)Order\s+([A-Za-z0-9-]+)`)
	dashedUUIDRe = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRunRe     = regexp.MustCompile(`[0-9a-f]{32}`)
)

// ExtractOrderID возвращает первый токен после литерала "Order" либо пустую
// строку, если его нет.
func ExtractOrderID(text string) string {
	m := orderIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// EnsureOrderID возвращает id заказа из текста, иначе fallback, иначе
// генерирует свежий 12-символьный hex-идентификатор.
func EnsureOrderID(text, fallback string) string {
	if id := ExtractOrderID(text); id != "" {
		return id
	}
	if fallback != "" {
		return fallback
	}
	return NewOrderID()
}

// NewOrderID генерирует короткий низкоколлизионный идентификатор заказа.
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// BuildTransitionMessage собирает однострочный нарратив перехода для пяти
// известных статусов; details добавляется завершающим предложением.
// Для статусов вне кураторского набора (включая STATUS_UNKNOWN) возвращается
// пустая строка: вызывающая сторона трактует её как «сообщения нет».
func BuildTransitionMessage(orderID, sender, receiver string, toState domain.LifecycleState, details string) string {
	var body string
	switch toState {
	case domain.StateReceivedOrder:
		body = fmt.Sprintf("Order %s intake acknowledged; initiating processing workflow.", orderID)
	case domain.StateHandoverToShipper:
		body = fmt.Sprintf("Order %s handed off for international transit.", orderID)
	case domain.StateCustomsClearance:
		body = fmt.Sprintf("Customs cleared for order %s; documents forwarded for payment processing.", orderID)
	case domain.StatePaymentComplete:
		body = fmt.Sprintf("Payment confirmed on order %s; preparing final delivery.", orderID)
	case domain.StateDelivered:
		body = fmt.Sprintf("Order %s delivered successfully; closing shipment cycle.", orderID)
	default:
		return ""
	}

	msg := fmt.Sprintf("%s | %s -> %s: %s", toState, sender, receiver, body)
	if details != "" {
		msg = strings.TrimRight(msg, ".!? ") + ". " + strings.TrimRight(strings.TrimSpace(details), ".!? ") + "."
	}
	return msg
}

// BuildOrderRequest собирает инициирующее RECEIVED_ORDER сообщение
// супервизора с параметрами заказа.
func BuildOrderRequest(orderID, receiver string, quantity int, price float64) string {
	return fmt.Sprintf("%s | Supervisor -> %s: Create an order %s with price %s and quantity %d.",
		domain.StateReceivedOrder, receiver, orderID,
		strconv.FormatFloat(price, 'f', -1, 64), quantity)
}

// NormalizeSender приводит отображаемое имя участника к каноническому виду:
// всё, что содержит "Shipping" или "Shipper", схлопывается в "Shipper",
// иначе отрезается хвостовой суффикс " agent".
func NormalizeSender(raw string) string {
	if raw == "" {
		return "Unknown"
	}
	if strings.Contains(raw, "Shipping") || strings.Contains(raw, "Shipper") {
		return "Shipper"
	}
	return strings.TrimSuffix(raw, " agent")
}

// ParseOrderEvent разбирает ответ участника по wire-грамматике. Ответы, не
// соответствующие грамматике (и ошибочные ответы транспорта), дают ok=false
// и молча отбрасываются вызывающей стороной — это не ошибка.
func ParseOrderEvent(reply domain.Reply) (domain.OrderEvent, bool) {
	if reply.Failed() {
		return domain.OrderEvent{}, false
	}

	text := strings.TrimSpace(reply.Text)
	stateAndRest := strings.SplitN(text, "|", 2)
	if len(stateAndRest) != 2 {
		return domain.OrderEvent{}, false
	}
	state := strings.TrimSpace(stateAndRest[0])

	arrowParts := strings.SplitN(strings.TrimSpace(stateAndRest[1]), "->", 2)
	if len(arrowParts) != 2 {
		return domain.OrderEvent{}, false
	}

	recvParts := strings.SplitN(strings.TrimSpace(arrowParts[1]), ":", 2)
	if len(recvParts) != 2 {
		return domain.OrderEvent{}, false
	}
	receiver := strings.TrimSpace(recvParts[0])
	message := strings.TrimSpace(recvParts[1])

	lower := strings.ToLower(message)
	orderID := dashedUUIDRe.FindString(lower)
	if orderID == "" {
		orderID = hexRunRe.FindString(lower)
	}
	if orderID == "" {
		orderID = "unknown"
	}

	return domain.OrderEvent{
		OrderID:   orderID,
		Sender:    NormalizeSender(reply.Sender),
		Receiver:  receiver,
		Message:   message,
		State:     domain.LifecycleState(state),
		Timestamp: time.Now().UTC(),
	}, true
}
