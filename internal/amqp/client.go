// Package amqp carries report requests and finished reports over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"txnstats/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Config names the broker and the topology the client declares.
type Config struct {
	URL          string
	Exchange     string
	RequestQueue string
	ReportQueue  string
}

type Client struct {
	url          string
	exchangeName string
	requestQueue string
	reportQueue  string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time

	logger *log.Logger
}

func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		requestQueue: cfg.RequestQueue,
		reportQueue:  cfg.ReportQueue,
		conn:         conn,
		channel:      channel,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

// NewClientWithRetry keeps dialing while the failure looks transient, up to
// maxAttempts tries. A non-positive maxAttempts retries until ctx is done.
func NewClientWithRetry(ctx context.Context, cfg Config, maxAttempts int, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAMQP)

	for attempt := 0; ; attempt++ {
		client, err := NewClient(cfg, logger)
		if err == nil {
			if attempt > 0 {
				logger.InfoContext(ctx, "Connected to AMQP broker after retry", "attempts", attempt+1)
			}
			return client, nil
		}
		if !isConnectionError(err) {
			return nil, err
		}
		if maxAttempts > 0 && attempt+1 >= maxAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		wait := exponentialBackoff(attempt)
		logger.WarnContext(ctx, "AMQP connection failed, retrying",
			log.FieldError, err.Error(),
			"attempt", attempt+1,
			"retry_in", wait.String())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.requestQueue, c.reportQueue} {
		if _, err := c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key equals the queue name on the direct exchange.
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open: AMQP publishing suspended")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		c.recordFailure()
		return errors.New("AMQP channel not open")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// PublishReportRequest enqueues a report request and returns its id.
func (c *Client) PublishReportRequest(ctx context.Context, client string) (string, error) {
	msg := NewReportRequestMessage(client)
	body, err := msg.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.requestQueue, msg.ID, body); err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "Published report request",
		log.FieldMessageID, msg.ID,
		log.FieldClient, msg.Client,
		"exchange", c.exchangeName,
		"queue", c.requestQueue)
	return msg.ID, nil
}

// PublishReport sends a finished report to the report queue.
func (c *Client) PublishReport(ctx context.Context, msg *ReportMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.reportQueue, msg.ID, body); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Published report",
		log.FieldMessageID, msg.ID,
		"request_id", msg.RequestID,
		log.FieldClient, msg.Report.Client,
		"queue", c.reportQueue)
	return nil
}

// ReportRequestHandler processes one decoded request.
type ReportRequestHandler func(ctx context.Context, msg *ReportRequestMessage) error

// ConsumeReportRequests delivers requests to handler until ctx is done.
// Undecodable messages are dropped; handler failures are requeued.
func (c *Client) ConsumeReportRequests(ctx context.Context, handler ReportRequestHandler) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.requestQueue, // queue
		"",             // consumer
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming report requests", "queue", c.requestQueue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.processDelivery(ctx, delivery, handler)
		}
	}
}

// processDelivery acks, drops or requeues one delivery.
func (c *Client) processDelivery(ctx context.Context, delivery amqp091.Delivery, handler ReportRequestHandler) {
	msg, err := ReportRequestMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.LogError(ctx, "Failed to unmarshal message", err, log.OpParse, nil)
		delivery.Nack(false, false)
		return
	}

	c.logger.InfoContext(ctx, "Processing report request",
		log.FieldMessageID, msg.ID,
		log.FieldClient, msg.Client)

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err.Error(),
			log.FieldMessageID, msg.ID)
		delivery.Nack(false, !delivery.Redelivered)
		return
	}

	delivery.Ack(false)
	c.logger.InfoContext(ctx, "Successfully processed report request", log.FieldMessageID, msg.ID)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
