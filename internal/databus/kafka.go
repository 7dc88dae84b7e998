// Package databus publishes verification events to Kafka.
package databus

import (
	"strings"

	"gopkg.in/Shopify/sarama.v1"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
}

// Publisher is implemented by DataBus.
type Publisher interface {
	Publish(e Event) error
}

type DataBus struct {
	producer sarama.SyncProducer
}

func NewDataBus(producer sarama.SyncProducer) *DataBus {
	return &DataBus{producer: producer}
}

// InitDataBus connects a synchronous producer to the comma separated brokers in host.
func InitDataBus(host string) (*DataBus, error) {
	hosts := strings.Split(host, ",")
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.WrapAndReport(err, "create kafka producer")
	}
	log.Info("Kafka producer initialized...")
	return NewDataBus(p), nil
}

func (db *DataBus) PublishRaw(topic string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	partition, offset, err := db.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw)})
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	log.Debugf("produce message success-partition: %d, offset: %d", partition, offset)
	return nil
}

func (db *DataBus) Publish(e Event) (err error) {
	return db.PublishRaw(e.Topic(), e.Serialize())
}

func (db *DataBus) Close() error {
	return db.producer.Close()
}
