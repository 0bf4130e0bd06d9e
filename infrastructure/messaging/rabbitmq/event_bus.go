package rabbitmq

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/infrastructure/config"
	"bibliotek/pkg/errors"
)

// EventBus is the RabbitMQ implementation of the messaging port. One
// instance per process; it owns a single connection, a single channel and
// the service's durable queue.
type EventBus struct {
	cfg      *config.Config
	topo     topology
	logger   *zap.Logger
	metrics  *Metrics
	upcaster *events.UpcasterRegistry

	mu                sync.Mutex
	flowCond          *sync.Cond
	conn              *amqp.Connection
	channel           *amqp.Channel
	initialized       bool
	consuming         bool
	shuttingDown      bool
	flowPaused        bool
	reconnectAttempts int
	consumeCtx        context.Context

	handlersMu   sync.RWMutex
	handlers     map[string][]ports.EventHandler
	pendingBinds []string

	salvager *salvager

	// fatal and reconnectFn let tests intercept the fail-fast exit and the
	// reconnection loop without a live broker.
	fatal       func(msg string)
	reconnectFn func()
}

// NewEventBus creates the bus. Init must be called before publishing.
func NewEventBus(cfg *config.Config, upcaster *events.UpcasterRegistry, metrics *Metrics, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if upcaster == nil {
		upcaster = events.NewUpcasterRegistry()
	}
	if metrics == nil {
		metrics = NewMetrics(nil, cfg.ServiceName)
	}

	b := &EventBus{
		cfg:      cfg,
		topo:     newTopology(cfg.RabbitMQEventsExchange, cfg.ServiceName, cfg.Environment),
		logger:   logger,
		metrics:  metrics,
		upcaster: upcaster,
		handlers: make(map[string][]ports.EventHandler),
	}
	b.flowCond = sync.NewCond(&b.mu)
	b.fatal = func(msg string) { logger.Fatal(msg) }
	b.reconnectFn = b.reconnect
	b.salvager = newSalvager(b)
	return b
}

// Init declares the broker topology. Idempotent; concurrent callers block on
// the initialization lock until the first one finishes.
func (b *EventBus) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shuttingDown {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "event bus is shutting down", nil)
	}
	if b.initialized {
		return nil
	}
	if err := b.connectLocked(); err != nil {
		return err
	}
	b.initialized = true
	return nil
}

// connectLocked dials and declares the full topology. Held under b.mu.
func (b *EventBus) connectLocked() error {
	conn, err := amqp.Dial(b.cfg.AMQPAddress())
	if err != nil {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to connect to broker", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to open channel", err)
	}

	if err := b.declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to declare topology", err)
	}
	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to set prefetch", err)
	}

	b.conn = conn
	b.channel = channel
	b.flowPaused = false

	// Bind everything subscribed before the topology existed, plus the
	// currently registered handler keys after a reconnect.
	b.handlersMu.Lock()
	keys := make(map[string]struct{}, len(b.handlers)+len(b.pendingBinds))
	for key := range b.handlers {
		keys[key] = struct{}{}
	}
	for _, key := range b.pendingBinds {
		keys[key] = struct{}{}
	}
	b.pendingBinds = nil
	b.handlersMu.Unlock()
	for key := range keys {
		if err := channel.QueueBind(b.topo.queue, bindingKey(key), b.topo.exchange, false, nil); err != nil {
			channel.Close()
			conn.Close()
			return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to bind queue", err)
		}
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := channel.NotifyClose(make(chan *amqp.Error, 1))
	go b.watchClose(connClosed, chanClosed)
	go b.watchFlow(channel.NotifyFlow(make(chan bool, 1)))

	if b.consuming {
		if err := b.startConsumeLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (b *EventBus) declareTopology(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(b.topo.exchange, "topic", true, false, false, false, amqp.Table{
		"alternate-exchange": b.topo.alternateExchange,
	}); err != nil {
		return err
	}
	if err := channel.ExchangeDeclare(b.topo.alternateExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if err := channel.ExchangeDeclare(b.topo.deadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := channel.QueueDeclare(b.topo.queue, true, false, false, false, b.topo.queueArgs()); err != nil {
		return err
	}
	if _, err := channel.QueueDeclare(b.topo.deadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := channel.QueueBind(b.topo.deadLetterQueue, "#", b.topo.deadLetterExchange, false, nil); err != nil {
		return err
	}
	if _, err := channel.QueueDeclare(b.topo.unroutableQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return channel.QueueBind(b.topo.unroutableQueue, "", b.topo.alternateExchange, false, nil)
}

// Publish routes the event by its type. Mandatory publishing means messages
// with no matching binding bounce into the alternate exchange and get picked
// up by the salvager.
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.Lock()
	for b.flowPaused && b.initialized && !b.shuttingDown {
		b.flowCond.Wait()
	}
	if !b.initialized || b.shuttingDown {
		b.mu.Unlock()
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "event bus not initialized", nil)
	}
	channel := b.channel
	b.mu.Unlock()

	event.EnsureCorrelationID()
	body, err := event.Marshal()
	if err != nil {
		return errors.NewInternalError("failed to encode event").WithCause(err)
	}

	messageID := event.AggregateID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	err = channel.PublishWithContext(ctx, b.topo.exchange, event.EventType, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		AppId:        b.cfg.ServiceName,
		Headers: amqp.Table{
			"x-source-service": b.cfg.ServiceName,
			"x-environment":    b.cfg.Environment,
			"x-correlation-id": event.CorrelationID(),
			"x-event-version":  int32(event.SchemaVersion),
		},
		Body: body,
	})
	if err != nil {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to publish event", err)
	}
	b.metrics.Published.WithLabelValues(event.EventType).Inc()
	return nil
}

// Subscribe registers a handler and binds the queue. Before Init the binding
// is queued and applied during topology declaration.
func (b *EventBus) Subscribe(eventType string, handler ports.EventHandler) error {
	if eventType == "" || handler == nil {
		return errors.NewValidationError("eventType and handler are required")
	}

	b.handlersMu.Lock()
	firstForKey := len(b.handlers[eventType]) == 0
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMu.Unlock()

	if !firstForKey {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		b.handlersMu.Lock()
		b.pendingBinds = append(b.pendingBinds, eventType)
		b.handlersMu.Unlock()
		return nil
	}
	if err := b.channel.QueueBind(b.topo.queue, bindingKey(eventType), b.topo.exchange, false, nil); err != nil {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to bind queue", err)
	}
	return nil
}

// SubscribeToAll registers a wildcard handler.
func (b *EventBus) SubscribeToAll(handler ports.EventHandler) error {
	return b.Subscribe(ports.WildcardEventType, handler)
}

// Unsubscribe removes one registration of the handler; removing the last
// one for a key unbinds it. Handlers are func values, whose only comparable
// identity is the code pointer — the same method registered for several
// receivers looks identical — so only the most recent matching registration
// is removed, never all of them.
func (b *EventBus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	target := reflect.ValueOf(handler).Pointer()

	b.handlersMu.Lock()
	list := b.handlers[eventType]
	for i := len(list) - 1; i >= 0; i-- {
		if reflect.ValueOf(list[i]).Pointer() == target {
			list = append(append([]ports.EventHandler{}, list[:i]...), list[i+1:]...)
			break
		}
	}
	lastRemoved := len(list) == 0
	if lastRemoved {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = list
	}
	b.handlersMu.Unlock()

	if !lastRemoved {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	if err := b.channel.QueueUnbind(b.topo.queue, bindingKey(eventType), b.topo.exchange, nil); err != nil {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to unbind queue", err)
	}
	return nil
}

// BindEventTypes bulk-binds routing keys during wiring.
func (b *EventBus) BindEventTypes(eventTypes []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		b.handlersMu.Lock()
		b.pendingBinds = append(b.pendingBinds, eventTypes...)
		b.handlersMu.Unlock()
		return nil
	}
	for _, eventType := range eventTypes {
		if err := b.channel.QueueBind(b.topo.queue, bindingKey(eventType), b.topo.exchange, false, nil); err != nil {
			return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to bind queue", err)
		}
	}
	return nil
}

// StartConsuming begins delivery to registered handlers and starts the
// unroutable salvager.
func (b *EventBus) StartConsuming(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "event bus not initialized", nil)
	}
	if b.consuming {
		return nil
	}
	b.consuming = true
	b.consumeCtx = ctx
	return b.startConsumeLocked()
}

func (b *EventBus) startConsumeLocked() error {
	deliveries, err := b.channel.Consume(b.topo.queue, b.cfg.ServiceName, false, false, false, false, nil)
	if err != nil {
		return errors.NewInfrastructureError(errors.CodeEventBusUnavailable, "failed to start consumer", err)
	}
	ctx := b.consumeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go b.consumeLoop(ctx, deliveries)
	go b.salvager.run(ctx)
	return nil
}

// Shutdown suppresses reconnection, wakes blocked publishers and closes the
// channel before the connection.
func (b *EventBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shuttingDown {
		return nil
	}
	b.shuttingDown = true
	b.initialized = false
	b.flowCond.Broadcast()

	if b.channel != nil {
		b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

// CheckHealth reports broker reachability and queue counters.
func (b *EventBus) CheckHealth(ctx context.Context) ports.HealthStatus {
	b.mu.Lock()
	channel := b.channel
	ok := b.initialized && !b.shuttingDown
	b.mu.Unlock()

	if !ok || channel == nil {
		return ports.HealthStatus{Status: ports.HealthDown, Details: map[string]interface{}{
			"reason": "not connected",
		}}
	}
	queue, err := channel.QueueInspect(b.topo.queue)
	if err != nil {
		return ports.HealthStatus{Status: ports.HealthDown, Details: map[string]interface{}{
			"reason": err.Error(),
		}}
	}
	return ports.HealthStatus{Status: ports.HealthUp, Details: map[string]interface{}{
		"messageCount":  queue.Messages,
		"consumerCount": queue.Consumers,
	}}
}

func (b *EventBus) isShuttingDown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shuttingDown
}

func (b *EventBus) currentChannel() *amqp.Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	return b.channel
}

func (b *EventBus) watchFlow(flow chan bool) {
	for active := range flow {
		b.mu.Lock()
		b.flowPaused = !active
		if active {
			b.flowCond.Broadcast()
		}
		b.mu.Unlock()
	}
}

// watchClose waits for the first connection- or channel-level close. A
// server-forced channel close (failed declare, vanished queue) leaves the
// connection open, so the channel needs its own watch; one goroutine per
// connect generation returning after the first notification means a
// cascading pair of closes triggers a single reconnect.
func (b *EventBus) watchClose(connClosed, chanClosed chan *amqp.Error) {
	var err *amqp.Error
	var ok bool
	select {
	case err, ok = <-connClosed:
	case err, ok = <-chanClosed:
	}
	if !ok || err == nil {
		// Deliberate close during shutdown.
		return
	}
	b.logger.Warn("broker connection or channel lost", zap.Error(err))
	b.reconnectFn()
}

// reconnect re-runs initialization with exponential backoff, giving up and
// terminating the process after maxReconnectAttempts consecutive failures.
func (b *EventBus) reconnect() {
	for {
		b.mu.Lock()
		if b.shuttingDown {
			b.mu.Unlock()
			return
		}
		b.initialized = false
		if b.channel != nil {
			b.channel.Close()
			b.channel = nil
		}
		if b.conn != nil {
			b.conn.Close()
			b.conn = nil
		}
		b.reconnectAttempts++
		attempts := b.reconnectAttempts
		b.mu.Unlock()

		if attempts > maxReconnectAttempts {
			b.fatal("giving up on broker reconnection")
			return
		}

		b.metrics.Reconnects.Inc()
		time.Sleep(reconnectDelay(attempts))

		b.mu.Lock()
		if b.shuttingDown {
			b.mu.Unlock()
			return
		}
		err := b.connectLocked()
		if err == nil {
			b.initialized = true
			b.reconnectAttempts = 0
			b.flowCond.Broadcast()
			b.mu.Unlock()
			b.logger.Info("broker connection restored")
			return
		}
		b.mu.Unlock()
		b.logger.Warn("broker reconnection failed",
			zap.Int("attempt", attempts),
			zap.Error(err))
	}
}
