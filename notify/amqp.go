package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
)

const Exchange = "rental.events"

// AMQPNotifier publishes events to a topic exchange with routing key
// "<recipient>.<event type>" so consumers can bind per rider or per event.
type AMQPNotifier struct {
	ch *amqp091.Channel
}

// DialAMQP connects and declares the event exchange.
func DialAMQP(url string) (*AMQPNotifier, func(), error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	closeFn := func() {
		ch.Close()
		conn.Close()
	}
	return &AMQPNotifier{ch: ch}, closeFn, nil
}

func (a *AMQPNotifier) Notify(ctx context.Context, recipient string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = a.ch.PublishWithContext(ctx,
		Exchange,
		recipient+"."+string(ev.Type),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.At,
		})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
