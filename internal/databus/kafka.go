package databus

import (
	"context"
	"strings"

	"github.com/Shopify/sarama"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
}

type DataBus struct {
	producer sarama.SyncProducer
}

var producer *DataBus

func InitDataBus(host string) {
	hosts := strings.Split(host, ",")
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	if p, err := sarama.NewSyncProducer(hosts, conf); err != nil {
		log.Fatalf("Failed to create producer: %s", err)
	} else {
		producer = NewDataBus(p)
	}
	log.Info("Kafka producer initialized...")
}

func NewDataBus(p sarama.SyncProducer) *DataBus {
	return &DataBus{producer: p}
}

func GetDataBus() *DataBus {
	return producer
}

func (db *DataBus) PublishRaw(topic string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	_, _, err := db.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw)})
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	return nil
}

func (db *DataBus) Publish(e Event) (err error) {
	return db.PublishRaw(e.Topic(), e.Serialize())
}

func (db *DataBus) Close() error {
	return db.producer.Close()
}

type sessionEvent struct {
	*walletconnect.SessionEvent
	topic string
}

func (e sessionEvent) Topic() string {
	return e.topic
}

// SessionEventPublisher streams wallet connect session events to one kafka topic.
type SessionEventPublisher struct {
	bus   *DataBus
	topic string
}

func NewSessionEventPublisher(bus *DataBus, topic string) *SessionEventPublisher {
	return &SessionEventPublisher{bus: bus, topic: topic}
}

func (p *SessionEventPublisher) Publish(ctx context.Context, e *walletconnect.SessionEvent) error {
	return p.bus.Publish(sessionEvent{SessionEvent: e, topic: p.topic})
}
