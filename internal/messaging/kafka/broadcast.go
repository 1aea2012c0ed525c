// Package kafka реализует широковещательный транспорт поверх Apache Kafka:
// инициирующее сообщение публикуется в broadcast-топик, ответы участников
// читаются из reply-топика до терминального маркера или таймаута.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// Топики групповой беседы.
const (
	TopicOrderBroadcast = "lms.orders.broadcast"
	TopicOrderReplies   = "lms.orders.replies"
)

// Заголовки сообщений.
const (
	HeaderSender       = "x-sender"
	HeaderParticipants = "x-participants"
)

// Dialer устанавливает Kafka-сессии групповой беседы.
type Dialer struct {
	brokers []string
	logger  *log.Entry
}

// NewDialer создаёт Kafka dialer для указанных брокеров.
func NewDialer(brokers []string, logger *log.Entry) *Dialer {
	if logger == nil {
		logger = log.WithField("component", "kafka-broadcast")
	}
	return &Dialer{brokers: brokers, logger: logger}
}

// Dial создаёт producer и consumer. Ошибка здесь означает недоступность
// транспорта и не подлежит retry на стороне вызывающего.
func (d *Dialer) Dial(_ context.Context) (domain.BroadcastSession, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // требование идемпотентного producer'а
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(d.brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	consumer, err := sarama.NewConsumer(d.brokers, config)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &session{
		producer: producer,
		consumer: consumer,
		logger:   d.logger,
	}, nil
}

type session struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	logger   *log.Entry
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

// BroadcastStream подписывается на reply-топик, публикует инициирующее
// сообщение и транслирует ответы до endMarker, таймаута или отмены ctx.
func (s *session) BroadcastStream(ctx context.Context, initMessage string, participants []string, endMarker string, timeout time.Duration) (<-chan domain.Reply, error) {
	// Подписка до публикации: ответы, пришедшие сразу после инициирующего
	// сообщения, не должны теряться.
	pc, err := s.consumer.ConsumePartition(TopicOrderReplies, 0, sarama.OffsetNewest)
	if err != nil {
		return nil, fmt.Errorf("consume replies: %w", err)
	}

	if err := s.publish(initMessage, participants); err != nil {
		_ = pc.Close()
		return nil, err
	}

	out := make(chan domain.Reply)
	go func() {
		defer close(out)
		defer func() { _ = pc.Close() }()

		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		for {
			select {
			case msg, ok := <-pc.Messages():
				if !ok {
					return
				}
				reply := domain.Reply{
					Sender: headerValue(msg.Headers, HeaderSender),
					Text:   string(msg.Value),
				}
				select {
				case out <- reply:
				case <-ctx.Done():
					return
				}
				if strings.Contains(reply.Text, endMarker) {
					return
				}
			case consumeErr := <-pc.Errors():
				select {
				case out <- domain.Reply{Err: consumeErr}:
				case <-ctx.Done():
				}
				return
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

// publish отправляет инициирующее сообщение в broadcast-топик.
func (s *session) publish(text string, participants []string) error {
	msg := &sarama.ProducerMessage{
		Topic: TopicOrderBroadcast,
		Value: sarama.StringEncoder(text),
		Headers: []sarama.RecordHeader{{
			Key:   []byte(HeaderParticipants),
			Value: []byte(strings.Join(participants, ",")),
		}},
		Timestamp: time.Now(),
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send broadcast message: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"topic":     TopicOrderBroadcast,
		"partition": partition,
		"offset":    offset,
	}).Debug("broadcast message sent")
	return nil
}

func (s *session) Close() error {
	var firstErr error
	if err := s.producer.Close(); err != nil {
		firstErr = fmt.Errorf("close kafka producer: %w", err)
	}
	if err := s.consumer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close kafka consumer: %w", err)
	}
	return firstErr
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, h := range headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

var _ domain.BroadcastDialer = (*Dialer)(nil)
var _ domain.BroadcastSession = (*session)(nil)
