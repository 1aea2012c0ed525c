package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
	"github.com/vladislavdragonenkov/lms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/lms/internal/messaging/rabbit"
	"github.com/vladislavdragonenkov/lms/internal/metrics"
	"github.com/vladislavdragonenkov/lms/internal/service/participant"
	"github.com/vladislavdragonenkov/lms/internal/service/workflow"
	"github.com/vladislavdragonenkov/lms/internal/storage/memory"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Store        domain.OrderEventStore
	Dialer       domain.BroadcastDialer
	Metrics      *metrics.WorkflowMetrics
	Orchestrator *workflow.Orchestrator
	Logger       *log.Entry
}

// NewDependencies создаёт и инициализирует все зависимости приложения.
func NewDependencies(cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store := memory.NewEventStore()

	dialer, err := newDialer(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	workflowCfg := workflow.DefaultConfig()
	workflowCfg.Timeout = cfg.BroadcastTimeout
	workflowCfg.StreamPacing = cfg.StreamPacing
	workflowCfg.ObserverEnabled = cfg.ObserverEnabled

	workflowMetrics := metrics.NewWorkflowMetrics()
	orchestrator := workflow.New(
		dialer,
		workflowCfg,
		logger.WithField("layer", "workflow"),
		workflow.WithStore(store),
		workflow.WithMetrics(workflowMetrics),
	)

	return &Dependencies{
		Store:        store,
		Dialer:       dialer,
		Metrics:      workflowMetrics,
		Orchestrator: orchestrator,
		Logger:       logger,
	}, nil
}

// newDialer выбирает широковещательный транспорт по конфигурации.
func newDialer(cfg Config, store domain.OrderEventStore, logger *log.Entry) (domain.BroadcastDialer, error) {
	switch cfg.Broker {
	case BrokerLocal, "":
		byTopic := map[string]participant.Responder{
			workflow.TopicFarm:       participant.NewFarm(cfg.FarmName),
			workflow.TopicShipper:    participant.NewShipper(),
			workflow.TopicAccountant: participant.NewAccountant(),
		}
		if cfg.ObserverEnabled {
			byTopic[workflow.TopicHelpdesk] = participant.NewObserver(store)
		}
		logger.Info("using loopback broadcast transport")
		return participant.NewLoopbackDialer(byTopic, logger.WithField("layer", "transport")), nil
	case BrokerKafka:
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		logger.WithField("brokers", brokers).Info("using kafka broadcast transport")
		return kafka.NewDialer(brokers, logger.WithField("layer", "transport")), nil
	case BrokerRabbit:
		logger.Info("using rabbitmq broadcast transport")
		return rabbit.NewDialer(cfg.RabbitURL, logger.WithField("layer", "transport")), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
