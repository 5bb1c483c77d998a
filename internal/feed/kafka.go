package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	mirrorQueueSize    = 1024
	mirrorBatchSize    = 100
	mirrorWriteTimeout = 10 * time.Second
)

// MessageWriter is the part of *kafka.Writer the mirror uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror writes change events to a Kafka topic from a background
// goroutine. Events are keyed by table so each table stays ordered within a
// partition.
type KafkaMirror struct {
	writer  MessageWriter
	logger  *logger.Logger
	onError func()

	queue     chan models.ChangeEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafkaMirror starts the mirror. onError may be nil.
func NewKafkaMirror(writer MessageWriter, onError func(), log *logger.Logger) *KafkaMirror {
	if log == nil {
		log = logger.NewNop()
	}
	m := &KafkaMirror{
		writer:  writer,
		logger:  log.Named("kafka"),
		onError: onError,
		queue:   make(chan models.ChangeEvent, mirrorQueueSize),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *KafkaMirror) Enqueue(ev models.ChangeEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		m.logger.Warn("Kafka mirror queue full, dropping change event", "table", ev.Table)
		m.failed()
	}
}

func (m *KafkaMirror) run() {
	defer m.wg.Done()

	batch := make([]kafka.Message, 0, mirrorBatchSize)
	for ev := range m.queue {
		batch = append(batch[:0], m.message(ev))
	drain:
		for len(batch) < mirrorBatchSize {
			select {
			case next, ok := <-m.queue:
				if !ok {
					break drain
				}
				batch = append(batch, m.message(next))
			default:
				break drain
			}
		}
		m.write(batch)
	}
}

func (m *KafkaMirror) message(ev models.ChangeEvent) kafka.Message {
	// ChangeEvent has only plain fields, Marshal cannot fail.
	value, _ := json.Marshal(ev)
	return kafka.Message{Key: []byte(ev.Table), Value: value, Time: ev.At}
}

func (m *KafkaMirror) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()
	if err := m.writer.WriteMessages(ctx, batch...); err != nil {
		m.logger.Error("Failed to mirror change events", "count", len(batch), "error", err)
		for range batch {
			m.failed()
		}
	}
}

func (m *KafkaMirror) failed() {
	if m.onError != nil {
		m.onError()
	}
}

// Close flushes queued events and closes the writer.
func (m *KafkaMirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.queue)
		m.mu.Unlock()

		m.wg.Wait()
		err = m.writer.Close()
	})
	return err
}
