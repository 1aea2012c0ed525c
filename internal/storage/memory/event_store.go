package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// eventStoreInMemory — in-process журнал событий заказов с блокирующими
// примитивами подписки. Вся синхронизация идёт через одну пару
// mutex + broadcast-канал: мутация захватывает mutex, изменяет данные,
// будит всех ожидающих и отпускает; ожидание атомарно отпускает mutex
// вокруг точки блокировки и перепроверяет предикат после каждого
// пробуждения (устойчиво к ложным пробуждениям и конкурентным waiter'ам).
type eventStoreInMemory struct {
	mu        sync.Mutex
	data      map[string][]domain.OrderEvent
	orderSeq  int64
	newOrders []domain.NewOrderEntry
	// changed закрывается и заменяется при каждой мутации — аналог
	// notify-all у условной переменной, но с поддержкой timeout и context.
	changed chan struct{}
}

// NewEventStore создаёт in-memory реализацию OrderEventStore.
func NewEventStore() domain.OrderEventStore {
	return &eventStoreInMemory{
		data:    make(map[string][]domain.OrderEvent),
		changed: make(chan struct{}),
	}
}

// notifyAllLocked будит всех ожидающих. Вызывается строго под mu.
func (s *eventStoreInMemory) notifyAllLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Append добавляет одно событие и возвращает новую длину списка.
func (s *eventStoreInMemory) Append(orderID string, event domain.OrderEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.data[orderID]
	s.data[orderID] = append(s.data[orderID], event)
	if !seen {
		s.orderSeq++
		s.newOrders = append(s.newOrders, domain.NewOrderEntry{Seq: s.orderSeq, OrderID: orderID})
	}
	s.notifyAllLocked()
	return len(s.data[orderID]), nil
}

// Set заменяет весь список событий заказа. Если входящий список — чистое
// расширение прежнего (идентичный префикс, длина не меньше), уведомление
// охватывает только новый хвост; иначе весь список считается новым
// содержимым. Номер создания выделяется только для ранее не встречавшегося
// order_id при непустом списке: Set(id, nil) резервирует пустой список,
// не объявляя новый заказ подписчикам журнала.
func (s *eventStoreInMemory) Set(orderID string, events []domain.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.data[orderID]
	existing := s.data[orderID]

	var newTail []domain.OrderEvent
	if len(existing) > 0 && len(events) >= len(existing) && equalEvents(events[:len(existing)], existing) {
		newTail = events[len(existing):]
	} else {
		newTail = events
	}

	s.data[orderID] = append([]domain.OrderEvent(nil), events...)

	if !seen && len(events) > 0 {
		s.orderSeq++
		s.newOrders = append(s.newOrders, domain.NewOrderEntry{Seq: s.orderSeq, OrderID: orderID})
	}

	if !seen || len(newTail) > 0 {
		s.notifyAllLocked()
	}
	return nil
}

// Get возвращает защитную копию списка событий (пустую для неизвестного id).
func (s *eventStoreInMemory) Get(orderID string) ([]domain.OrderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.OrderEvent(nil), s.data[orderID]...), nil
}

// Delete удаляет список событий заказа. Номер в журнале создания не
// освобождается, историческая запись остаётся — LatestOrder может ссылаться
// на удалённый заказ.
func (s *eventStoreInMemory) Delete(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[orderID]; ok {
		delete(s.data, orderID)
		s.notifyAllLocked()
	}
	return nil
}

// WaitForEvents блокируется, пока len(stream) > lastIndex либо не истечёт
// timeout. По timeout возвращается ([], lastIndex) — дословно переданный
// индекс, а не фактическая длина: вызывающая сторона обязана трактовать
// timeout как «наблюдаемых изменений нет», а не как сигнал ресинхронизации.
// Отрицательный lastIndex эквивалентен нулю.
func (s *eventStoreInMemory) WaitForEvents(ctx context.Context, orderID string, lastIndex int, timeout time.Duration) ([]domain.OrderEvent, int, error) {
	if lastIndex < 0 {
		lastIndex = 0
	}

	deadline := newDeadline(timeout)
	defer deadline.stop()

	s.mu.Lock()
	for len(s.data[orderID]) <= lastIndex {
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-deadline.expired:
			return nil, lastIndex, nil
		case <-ctx.Done():
			return nil, lastIndex, ctx.Err()
		}
		s.mu.Lock()
	}

	full := s.data[orderID]
	events := append([]domain.OrderEvent(nil), full[lastIndex:]...)
	length := len(full)
	s.mu.Unlock()
	return events, length, nil
}

// WaitForNewOrders блокируется до появления заказов с номером создания
// > lastSeq либо до истечения timeout. По timeout — ([], lastSeq).
func (s *eventStoreInMemory) WaitForNewOrders(ctx context.Context, lastSeq int64, timeout time.Duration) ([]domain.NewOrderEntry, int64, error) {
	deadline := newDeadline(timeout)
	defer deadline.stop()

	s.mu.Lock()
	for s.orderSeq <= lastSeq {
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-deadline.expired:
			return nil, lastSeq, nil
		case <-ctx.Done():
			return nil, lastSeq, ctx.Err()
		}
		s.mu.Lock()
	}

	var entries []domain.NewOrderEntry
	for _, entry := range s.newOrders {
		if entry.Seq > lastSeq {
			entries = append(entries, entry)
		}
	}
	seq := s.orderSeq
	s.mu.Unlock()
	return entries, seq, nil
}

// LatestOrder возвращает последнюю запись журнала создания заказов.
func (s *eventStoreInMemory) LatestOrder() (domain.NewOrderEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.newOrders) == 0 {
		return domain.NewOrderEntry{}, false
	}
	return s.newOrders[len(s.newOrders)-1], true
}

// KnownOrders возвращает копию всего журнала создания, включая записи
// уже удалённых заказов. Не входит в порт OrderEventStore; используется
// sweeper'ом и тестами через type assertion.
func (s *eventStoreInMemory) KnownOrders() []domain.NewOrderEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.NewOrderEntry(nil), s.newOrders...)
}

func equalEvents(a, b []domain.OrderEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
		ax, bx := a[i], b[i]
		ax.Timestamp, bx.Timestamp = time.Time{}, time.Time{}
		if ax != bx {
			return false
		}
	}
	return true
}

// deadline оборачивает опциональный timeout: при timeout <= 0 канал expired
// никогда не срабатывает (ожидание без ограничения).
type deadline struct {
	expired <-chan time.Time
	timer   *time.Timer
}

func newDeadline(timeout time.Duration) deadline {
	if timeout <= 0 {
		return deadline{}
	}
	t := time.NewTimer(timeout)
	return deadline{expired: t.C, timer: t}
}

func (d deadline) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

var _ domain.OrderEventStore = (*eventStoreInMemory)(nil)
