package domain

import "time"

// OrderEvent описывает одно наблюдаемое событие статуса заказа.
// После конструирования событие не мутируется.
type OrderEvent struct {
	OrderID   string         `json:"order_id"`
	Sender    string         `json:"sender"`
	Receiver  string         `json:"receiver"`
	Message   string         `json:"message"`
	State     LifecycleState `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewOrderEntry — запись журнала создания заказов: монотонный порядковый
// номер и идентификатор заказа, впервые получившего содержимое.
type NewOrderEntry struct {
	Seq     int64  `json:"seq"`
	OrderID string `json:"order_id"`
}
