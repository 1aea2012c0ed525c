// Command reply-audit сканирует Kafka-топик ответов участников и печатает
// распознанные события жизненного цикла заказов. Инструмент для разбора
// инцидентов: позволяет понять, какие статусы реально прошли через брокер.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/codec"
	"github.com/vladislavdragonenkov/lms/internal/domain"
	"github.com/vladislavdragonenkov/lms/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	topic       string
	orderID     string
	limit       int
	fromNewest  bool
	jsonOut     bool
	idleTimeout time.Duration
}

// auditRecord — одна распознанная запись для вывода.
type auditRecord struct {
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	OrderID   string    `json:"order_id"`
	State     string    `json:"state"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newAuditDependencies = func(cfg config) (offsetClient, partitionConsumerSource, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return client, saramaConsumerAdapter{consumer: rawConsumer}, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("reply audit failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: LMS_KAFKA_BROKERS)")
	flag.StringVar(&cfg.topic, "topic", kafka.TopicOrderReplies, "reply topic to scan")
	flag.StringVar(&cfg.orderID, "order", "", "optional order id filter")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.BoolVar(&cfg.jsonOut, "json", false, "print records as JSON lines")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("LMS_KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or LMS_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.topic) == "" {
		return config{}, fmt.Errorf("topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"topic":       cfg.topic,
		"order":       cfg.orderID,
		"limit":       cfg.limit,
		"from_newest": cfg.fromNewest,
	}).Info("starting reply audit")

	client, consumer, err := newAuditDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return runAudit(ctx, cfg, client, consumer)
}

func runAudit(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource) error {
	if client == nil || consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}

	partitions, err := client.Partitions(cfg.topic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.topic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.topic).Warn("topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total partitionStats
	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}

		remaining := cfg.limit - total.processed
		stats, err := processPartition(ctx, consumer, client, cfg, partition, remaining)
		if err != nil {
			return err
		}

		total.processed += stats.processed
		total.matched += stats.matched
		total.skipped += stats.skipped
	}

	log.WithFields(log.Fields{
		"processed": total.processed,
		"matched":   total.matched,
		"skipped":   total.skipped,
	}).Info("reply audit finished")

	return nil
}

type partitionStats struct {
	processed int
	matched   int
	skipped   int
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	cfg config,
	partition int32,
	limit int,
) (partitionStats, error) {
	var stats partitionStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := client.GetOffset(cfg.topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = newest - int64(limit)
		if startOffset < oldest {
			startOffset = oldest
		}
	}

	pc, err := consumer.ConsumePartition(cfg.topic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	endOffset := newest
	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= endOffset {
				return stats, nil
			}

			stats.processed++
			record, matched := extractRecord(msg, cfg.orderID)
			if !matched {
				stats.skipped++
			} else {
				stats.matched++
				printRecord(record, cfg.jsonOut)
			}

			if msg.Offset+1 >= endOffset {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

// extractRecord разбирает одно сообщение топика ответов. Нераспознанные и
// отфильтрованные по order id сообщения пропускаются.
func extractRecord(msg *sarama.ConsumerMessage, orderFilter string) (auditRecord, bool) {
	text := string(msg.Value)
	reply := domain.Reply{Sender: headerValue(msg.Headers, kafka.HeaderSender), Text: text}

	event, ok := codec.ParseOrderEvent(reply)
	if !ok {
		return auditRecord{}, false
	}
	if id := codec.ExtractOrderID(text); id != "" {
		event.OrderID = id
	}
	if orderFilter != "" && event.OrderID != orderFilter {
		return auditRecord{}, false
	}

	return auditRecord{
		Partition: msg.Partition,
		Offset:    msg.Offset,
		OrderID:   event.OrderID,
		State:     string(event.State),
		Sender:    event.Sender,
		Timestamp: msg.Timestamp,
		Text:      text,
	}, true
}

func printRecord(record auditRecord, jsonOut bool) {
	if jsonOut {
		encoded, err := json.Marshal(record)
		if err != nil {
			log.WithError(err).Warn("encode audit record")
			return
		}
		fmt.Println(string(encoded))
		return
	}

	log.WithFields(log.Fields{
		"partition": record.Partition,
		"offset":    record.Offset,
		"order_id":  record.OrderID,
		"state":     record.State,
		"sender":    record.Sender,
	}).Info(record.Text)
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, header := range headers {
		if header == nil {
			continue
		}
		if string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
