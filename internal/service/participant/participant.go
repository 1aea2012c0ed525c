// Package participant содержит детерминированные реализации участников
// логистической цепочки. Каждый участник реагирует на входящий статус по
// фиксированной таблице переходов; на всё остальное отвечает IDLE-репликой.
// Используется loopback-транспортом для разработки и тестов.
package participant

import (
	"github.com/vladislavdragonenkov/lms/internal/codec"
	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// Responder реагирует на одно сообщение групповой беседы.
type Responder interface {
	// Name — отображаемое имя участника (подсказка отправителя).
	Name() string
	// Respond возвращает ответ на входящий текст.
	Respond(text string) string
}

// transition — одна строка таблицы переходов участника.
type transition struct {
	to       domain.LifecycleState
	sender   string
	receiver string
	details  string
}

// ruleBased — участник с таблицей «входящий статус → переход».
type ruleBased struct {
	name        string
	idleMessage string
	rules       map[domain.LifecycleState]transition
}

func (p *ruleBased) Name() string { return p.name }

func (p *ruleBased) Respond(text string) string {
	status := domain.ExtractStatus(text)
	rule, ok := p.rules[status]
	if !ok {
		return p.idleMessage
	}
	orderID := codec.EnsureOrderID(text, "")
	return codec.BuildTransitionMessage(orderID, rule.sender, rule.receiver, rule.to, rule.details)
}

// NewFarm — ферма: подтверждённый заказ передаётся перевозчику.
func NewFarm(displayName string) Responder {
	return &ruleBased{
		name:        displayName + " agent",
		idleMessage: "Logistic Farm remains IDLE. No further action required.",
		rules: map[domain.LifecycleState]transition{
			domain.StateReceivedOrder: {
				to:       domain.StateHandoverToShipper,
				sender:   displayName,
				receiver: "Shipper",
				details:  "Prepared shipment and documentation",
			},
		},
	}
}

// NewShipper — перевозчик: принимает груз на таможню и закрывает доставку
// после подтверждения оплаты.
func NewShipper() Responder {
	return &ruleBased{
		name:        "Shipping agent",
		idleMessage: "Shipper remains IDLE. No further action required.",
		rules: map[domain.LifecycleState]transition{
			domain.StateHandoverToShipper: {
				to:       domain.StateCustomsClearance,
				sender:   "Shipper",
				receiver: "Accountant",
				details:  "Shipment tendered to customs broker",
			},
			domain.StatePaymentComplete: {
				to:       domain.StateDelivered,
				sender:   "Shipper",
				receiver: "Supervisor",
				details:  "Final mile completed",
			},
		},
	}
}

// NewAccountant — бухгалтер: после таможни подтверждает оплату.
func NewAccountant() Responder {
	return &ruleBased{
		name:        "Accountant agent",
		idleMessage: "Accountant remains IDLE. No further action required.",
		rules: map[domain.LifecycleState]transition{
			domain.StateCustomsClearance: {
				to:       domain.StatePaymentComplete,
				sender:   "Accountant",
				receiver: "Shipper",
				details:  "Payment verified and captured",
			},
		},
	}
}

// NewObserver — пассивный наблюдатель (helpdesk): пишет все сообщения в
// журнал событий и всегда остаётся IDLE, не влияя на завершение беседы.
func NewObserver(store domain.OrderEventStore) Responder {
	return &observer{store: store}
}

type observer struct {
	store domain.OrderEventStore
}

func (o *observer) Name() string { return "Helpdesk agent" }

func (o *observer) Respond(text string) string {
	if o.store != nil {
		if event, ok := codec.ParseOrderEvent(domain.Reply{Sender: "Helpdesk agent", Text: text}); ok {
			if id := codec.ExtractOrderID(text); id != "" {
				event.OrderID = id
			}
			_, _ = o.store.Append(event.OrderID, event)
		}
	}
	return "Helpdesk remains IDLE. No further action required."
}
