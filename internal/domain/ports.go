package domain

import (
	"context"
	"time"
)

// Reply — один ответ участника групповой беседы. Транспорт различает
// успешные и ошибочные ответы явно: у ошибочного заполнен Err, а Text пуст.
// Декодирующая сторона обязана проверять Failed() до разбора текста.
type Reply struct {
	// Sender — подсказка транспорта об имени отправителя (может быть пустой).
	Sender string
	// Text — полезная нагрузка ответа в wire-грамматике.
	Text string
	// Err описывает ошибочный ответ транспорта.
	Err error
}

// Failed сообщает, является ли ответ ошибочным.
func (r Reply) Failed() bool { return r.Err != nil }

// BroadcastSession — одна установленная сессия широковещательного транспорта.
// Сессия обязана освобождаться вызовом Close на каждом пути выхода.
type BroadcastSession interface {
	// Broadcast отправляет инициирующее сообщение участникам и блокируется,
	// пока не собраны ответы вплоть до endMarker либо не истёк timeout.
	Broadcast(ctx context.Context, initMessage string, participants []string, endMarker string, timeout time.Duration) ([]Reply, error)
	// BroadcastStream — потоковый вариант: ответы доставляются по мере
	// поступления; канал закрывается после endMarker, timeout или ошибки.
	BroadcastStream(ctx context.Context, initMessage string, participants []string, endMarker string, timeout time.Duration) (<-chan Reply, error)
	// Close освобождает ресурсы сессии. Повторный вызов безопасен.
	Close() error
}

// BroadcastDialer устанавливает broadcast-сессию. Ошибка Dial относится к
// классу ErrTransportUnavailable и не подлежит retry.
type BroadcastDialer interface {
	Dial(ctx context.Context) (BroadcastSession, error)
}

// OrderEventStore — конкурентный журнал событий заказов с блокирующими
// примитивами подписки. Индекс — количество уже наблюдённых событий.
type OrderEventStore interface {
	// Append добавляет одно событие и возвращает новую длину списка.
	// Для ранее не встречавшегося order_id выделяется следующий номер
	// в журнале создания заказов.
	Append(orderID string, event OrderEvent) (int, error)
	// Set заменяет весь список событий заказа. Если новый список — чистое
	// расширение старого, уведомление охватывает только новый хвост.
	Set(orderID string, events []OrderEvent) error
	// Get возвращает защитную копию списка событий (пустой для неизвестного id).
	Get(orderID string) ([]OrderEvent, error)
	// Delete удаляет список событий; номер в журнале создания не
	// освобождается и историческая запись не вычищается.
	Delete(orderID string) error
	// WaitForEvents блокируется, пока длина списка не превысит lastIndex
	// либо не истечёт timeout (timeout <= 0 — без ограничения). По timeout
	// возвращается ([], lastIndex) — именно переданный индекс, не текущая
	// длина.
	WaitForEvents(ctx context.Context, orderID string, lastIndex int, timeout time.Duration) ([]OrderEvent, int, error)
	// WaitForNewOrders — симметричный примитив над журналом создания:
	// блокируется до появления заказов с номером > lastSeq.
	WaitForNewOrders(ctx context.Context, lastSeq int64, timeout time.Duration) ([]NewOrderEntry, int64, error)
	// LatestOrder возвращает последнюю запись журнала создания, если есть.
	LatestOrder() (NewOrderEntry, bool)
}
