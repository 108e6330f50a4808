package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func init() {
	Register("amqp", Factory{Connect: connectAMQP, Bind: bindAMQP})
}

// amqp URLs address host:port/vhost/queue. Request/reply is carried over
// the default exchange: clients publish to the named queue with their own
// exclusive reply queue in ReplyTo, servers answer to that queue.
func splitAMQPPath(u *url.URL) (vhost, queue string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("amqp url %q must name a vhost and a queue", u.String())
	}
	return parts[0], parts[1], nil
}

func dialAMQP(u *url.URL, vhost string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial("amqp://" + u.Host + "/" + vhost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker at %s: %w", u.Host, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open broker channel: %w", err)
	}
	return conn, ch, nil
}

type amqpChannel struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	timeout    time.Duration

	// queue this side publishes replies or requests to
	sendTo string
	// queue peers should answer to; empty on the server side until a
	// request arrives
	replyTo string

	server bool
}

func connectAMQP(u *url.URL, identity string) (Channel, error) {
	vhost, queue, err := splitAMQPPath(u)
	if err != nil {
		return nil, err
	}

	conn, ch, err := dialAMQP(u, vhost)
	if err != nil {
		return nil, err
	}

	replyQueue, err := ch.QueueDeclare(identity, false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare reply queue %q: %w", identity, err)
	}

	deliveries, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to consume reply queue %q: %w", replyQueue.Name, err)
	}

	return &amqpChannel{
		conn:       conn,
		ch:         ch,
		deliveries: deliveries,
		sendTo:     queue,
		replyTo:    replyQueue.Name,
	}, nil
}

func bindAMQP(u *url.URL, identity string) (Channel, error) {
	vhost, queue, err := splitAMQPPath(u)
	if err != nil {
		return nil, err
	}

	conn, ch, err := dialAMQP(u, vhost)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(queue, false, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	deliveries, err := ch.Consume(q.Name, identity, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to consume queue %q: %w", q.Name, err)
	}

	return &amqpChannel{
		conn:       conn,
		ch:         ch,
		deliveries: deliveries,
		server:     true,
	}, nil
}

func (c *amqpChannel) SetTimeout(d time.Duration) { c.timeout = d }

func (c *amqpChannel) SendBytes(p []byte) error {
	if c.sendTo == "" {
		return errors.New("amqp: no peer to reply to")
	}
	return c.ch.PublishWithContext(context.Background(), "", c.sendTo, false, false, amqp.Publishing{
		Body:    p,
		ReplyTo: c.replyTo,
	})
}

func (c *amqpChannel) RecvBytes() ([]byte, bool, error) {
	var expired <-chan time.Time
	if c.timeout > 0 {
		t := time.NewTimer(c.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case d, ok := <-c.deliveries:
		if !ok {
			return nil, false, errors.New("amqp: delivery channel closed")
		}
		if c.server {
			c.sendTo = d.ReplyTo
		}
		return d.Body, true, nil
	case <-expired:
		return nil, false, nil
	}
}

func (c *amqpChannel) Close() error {
	return c.conn.Close()
}
