package participant

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// LoopbackDialer гоняет групповую беседу по участникам внутри процесса,
// без внешнего брокера. Транспорт по умолчанию для разработки и тестов.
type LoopbackDialer struct {
	mu     sync.Mutex
	byName map[string]Responder
	logger *log.Entry
}

// NewLoopbackDialer создаёт loopback-транспорт. Ключи byTopic — адреса
// участников рассылки (см. workflow.Topic*).
func NewLoopbackDialer(byTopic map[string]Responder, logger *log.Entry) *LoopbackDialer {
	if logger == nil {
		logger = log.WithField("component", "loopback-dialer")
	}
	return &LoopbackDialer{byName: byTopic, logger: logger}
}

// Dial устанавливает loopback-сессию. Никогда не падает: локальный
// транспорт всегда доступен.
func (d *LoopbackDialer) Dial(ctx context.Context) (domain.BroadcastSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	participants := make(map[string]Responder, len(d.byName))
	for topic, r := range d.byName {
		participants[topic] = r
	}
	return &loopbackSession{participants: participants, logger: d.logger}, nil
}

type loopbackSession struct {
	participants map[string]Responder
	logger       *log.Entry
	closed       bool
	mu           sync.Mutex
}

// maxRounds ограничивает беседу на случай, если участники зациклятся.
const maxRounds = 16

// Broadcast доставляет каждое сообщение всем адресатам раунда и собирает
// ответы, пока не встретится endMarker, участники не замолчат (одни IDLE)
// или не истечёт timeout.
func (s *loopbackSession) Broadcast(ctx context.Context, initMessage string, recipients []string, endMarker string, timeout time.Duration) ([]domain.Reply, error) {
	var replies []domain.Reply
	stream, err := s.BroadcastStream(ctx, initMessage, recipients, endMarker, timeout)
	if err != nil {
		return nil, err
	}
	for reply := range stream {
		if reply.Failed() {
			return nil, reply.Err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// BroadcastStream — потоковый вариант той же беседы.
func (s *loopbackSession) BroadcastStream(ctx context.Context, initMessage string, recipients []string, endMarker string, timeout time.Duration) (<-chan domain.Reply, error) {
	out := make(chan domain.Reply)
	deadline := time.Now().Add(timeout)

	go func() {
		defer close(out)

		pending := []string{initMessage}
		for round := 0; round < maxRounds && len(pending) > 0; round++ {
			if timeout > 0 && time.Now().After(deadline) {
				return
			}
			var next []string
			for _, message := range pending {
				for _, topic := range recipients {
					responder, ok := s.participants[topic]
					if !ok {
						continue
					}
					text := responder.Respond(message)
					reply := domain.Reply{Sender: responder.Name(), Text: text}
					select {
					case out <- reply:
					case <-ctx.Done():
						return
					}
					if strings.Contains(text, endMarker) {
						return
					}
					if !strings.Contains(strings.ToLower(text), "idle") {
						next = append(next, text)
					}
				}
			}
			pending = next
		}
	}()

	return out, nil
}

func (s *loopbackSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ domain.BroadcastDialer = (*LoopbackDialer)(nil)
var _ domain.BroadcastSession = (*loopbackSession)(nil)
