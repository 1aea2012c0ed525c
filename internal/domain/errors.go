package domain

import "errors"

var (
	// ErrTransportUnavailable — не удалось установить broadcast-сессию.
	// Фатальная ошибка, повторные попытки не предпринимаются.
	ErrTransportUnavailable = errors.New("broadcast transport unavailable")
	// ErrBroadcastFailed — транзиентная ошибка в ходе групповой беседы.
	ErrBroadcastFailed = errors.New("broadcast conversation failed")
	// ErrRetriesExhausted возвращается после исчерпания всех retry попыток.
	ErrRetriesExhausted = errors.New("broadcast retries exhausted")
	// ErrOrderNotFound возвращается, если для заказа нет событий.
	ErrOrderNotFound = errors.New("order not found")
)

// IsTransportUnavailable проверяет, относится ли ошибка к классу
// невозможности установить сессию (не подлежит retry).
func IsTransportUnavailable(err error) bool {
	return errors.Is(err, ErrTransportUnavailable)
}

// IsRetryable сообщает, имеет ли смысл повторять broadcast при данной ошибке.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTransportUnavailable)
}
