package domain

import "strings"

// LifecycleState описывает жизненный цикл заказа в логистической цепочке.
type LifecycleState string

const (
	// StateReceivedOrder — заказ принят супервизором, обработка начата.
	StateReceivedOrder LifecycleState = "RECEIVED_ORDER"
	// StateHandoverToShipper — ферма передала заказ перевозчику.
	StateHandoverToShipper LifecycleState = "HANDOVER_TO_SHIPPER"
	// StateCustomsClearance — груз прошёл таможенное оформление.
	StateCustomsClearance LifecycleState = "CUSTOMS_CLEARANCE"
	// StatePaymentComplete — бухгалтер подтвердил оплату.
	StatePaymentComplete LifecycleState = "PAYMENT_COMPLETE"
	// StateDelivered — заказ доставлен, цикл завершён.
	StateDelivered LifecycleState = "DELIVERED"
	// StateUnknown — sentinel для нераспознанного текста.
	StateUnknown LifecycleState = "STATUS_UNKNOWN"
)

// statusPriority задаёт явный порядок сопоставления подстрок: более
// специфичные токены идут раньше, чтобы коллизии не зависели от порядка
// объявления констант.
var statusPriority = []LifecycleState{
	StateReceivedOrder,
	StateHandoverToShipper,
	StateCustomsClearance,
	StatePaymentComplete,
	StateDelivered,
}

// ExtractStatus возвращает первый статус из statusPriority, токен которого
// встречается в тексте как подстрока, либо StateUnknown. Никогда не падает.
func ExtractStatus(text string) LifecycleState {
	for _, state := range statusPriority {
		if strings.Contains(text, string(state)) {
			return state
		}
	}
	return StateUnknown
}

// KnownStates возвращает копию списка известных статусов в порядке приоритета.
func KnownStates() []LifecycleState {
	states := make([]LifecycleState, len(statusPriority))
	copy(states, statusPriority)
	return states
}

// IsTerminal сообщает, завершает ли статус жизненный цикл заказа.
func (s LifecycleState) IsTerminal() bool {
	return s == StateDelivered
}
