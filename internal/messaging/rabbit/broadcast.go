// Package rabbit реализует широковещательный транспорт поверх RabbitMQ:
// fanout-обменник доносит инициирующее сообщение до всех участников,
// ответы собираются из эксклюзивной reply-очереди.
package rabbit

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// Топология групповой беседы.
const (
	ExchangeBroadcast = "lms.orders.broadcast"
	ExchangeReplies   = "lms.orders.replies"
)

// HeaderSender — заголовок с именем отправителя ответа.
const HeaderSender = "x-sender"

// Dialer устанавливает AMQP-сессии групповой беседы.
type Dialer struct {
	url    string
	logger *log.Entry
}

// NewDialer создаёт AMQP dialer.
func NewDialer(url string, logger *log.Entry) *Dialer {
	if logger == nil {
		logger = log.WithField("component", "rabbit-broadcast")
	}
	return &Dialer{url: url, logger: logger}
}

// Dial открывает соединение, канал и объявляет топологию. Ошибка означает
// недоступность транспорта.
func (d *Dialer) Dial(_ context.Context) (domain.BroadcastSession, error) {
	conn, err := amqp.Dial(d.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, exchange := range []string{ExchangeBroadcast, ExchangeReplies} {
		if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	return &session{conn: conn, ch: ch, logger: d.logger}, nil
}

type session struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *log.Entry
}

// Broadcast — блокирующий вариант: собирает ответы потокового режима.
func (s *session) Broadcast(ctx context.Context, initMessage string, participants []string, endMarker string, timeout time.Duration) ([]domain.Reply, error) {
	stream, err := s.BroadcastStream(ctx, initMessage, participants, endMarker, timeout)
	if err != nil {
		return nil, err
	}
	var replies []domain.Reply
	for reply := range stream {
		if reply.Failed() {
			return nil, reply.Err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// BroadcastStream объявляет эксклюзивную reply-очередь, публикует
// инициирующее сообщение в fanout-обменник и транслирует ответы до
// endMarker, таймаута или отмены ctx.
func (s *session) BroadcastStream(ctx context.Context, initMessage string, participants []string, endMarker string, timeout time.Duration) (<-chan domain.Reply, error) {
	// Эксклюзивная авто-удаляемая очередь: живёт ровно столько, сколько
	// одна беседа.
	queue, err := s.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}
	if err := s.ch.QueueBind(queue.Name, "", ExchangeReplies, false, nil); err != nil {
		return nil, fmt.Errorf("bind reply queue: %w", err)
	}

	deliveries, err := s.ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = s.ch.PublishWithContext(publishCtx, ExchangeBroadcast, "", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(initMessage),
		Timestamp:   time.Now(),
		Headers:     amqp.Table{"x-participants": strings.Join(participants, ",")},
	})
	if err != nil {
		return nil, fmt.Errorf("publish broadcast message: %w", err)
	}

	out := make(chan domain.Reply)
	go func() {
		defer close(out)

		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		for {
			select {
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				reply := domain.Reply{
					Sender: tableString(delivery.Headers, HeaderSender),
					Text:   string(delivery.Body),
				}
				select {
				case out <- reply:
				case <-ctx.Done():
					return
				}
				if strings.Contains(reply.Text, endMarker) {
					return
				}
			case <-expired:
				s.logger.WithField("timeout", timeout).Debug("broadcast timed out waiting for end marker")
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *session) Close() error {
	var firstErr error
	if err := s.ch.Close(); err != nil {
		firstErr = fmt.Errorf("close channel: %w", err)
	}
	if err := s.conn.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close connection: %w", err)
	}
	return firstErr
}

func tableString(table amqp.Table, key string) string {
	if table == nil {
		return ""
	}
	if v, ok := table[key].(string); ok {
		return v
	}
	return ""
}

var _ domain.BroadcastDialer = (*Dialer)(nil)
var _ domain.BroadcastSession = (*session)(nil)
