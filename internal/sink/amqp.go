package sink

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
)

// AMQPSink publishes finalized decisions to an AMQP exchange.
type AMQPSink struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink dials the broker and declares the target exchange.
func NewAMQPSink(cfg config.AMQPSinkConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("AMQP dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("AMQP channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // noWait
		nil,          // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("AMQP exchange declare: %w", err)
	}

	log.Printf("Connected to AMQP broker, publishing to exchange %q", cfg.Exchange)
	return &AMQPSink{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Name identifies the sink in logs.
func (s *AMQPSink) Name() string { return "amqp" }

// Write publishes the payload as a persistent JSON message.
func (s *AMQPSink) Write(p *model.DecisionPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.channel.Publish(
		s.exchange,
		s.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
		},
	)
}

// Close shuts down the channel and connection.
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
