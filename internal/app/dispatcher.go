package app

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/metrics"
	"github.com/example/escalator/internal/ports/secondary"
)

// DeliveryRecorder stores gateway results on notification records.
type DeliveryRecorder interface {
	UpdateNotificationDelivery(ctx context.Context, update secondary.DeliveryUpdate) error
}

// DispatcherConfig tunes the notification dispatcher.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration // Per gateway call

	// Inline delivers on the caller's goroutine instead of queueing.
	// Used by one-shot CLI commands that exit before a worker would run.
	Inline bool

	BreakerMaxRequests  uint32        // Probes allowed while half-open
	BreakerInterval     time.Duration // Closed-state counter reset period
	BreakerOpenTimeout  time.Duration // Time spent open before probing
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// DefaultDispatcherConfig returns the settings used when config omits them.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:           1024,
		Workers:             4,
		Timeout:             5 * time.Second,
		BreakerMaxRequests:  3,
		BreakerInterval:     time.Minute,
		BreakerOpenTimeout:  30 * time.Second,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.6,
	}
}

// Dispatcher is the fire-and-forget boundary between committed transitions and
// the notification gateway. Requests go through a bounded queue to worker
// goroutines; every gateway call runs behind a circuit breaker and its result
// is written back onto the notification record.
type Dispatcher struct {
	gateway  secondary.NotificationGateway
	recorder DeliveryRecorder
	breaker  *gobreaker.CircuitBreaker
	queue    chan secondary.NotificationRequest
	cfg      DispatcherConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. Call Run to start the workers unless cfg.Inline is set.
func NewDispatcher(gateway secondary.NotificationGateway, recorder DeliveryRecorder, cfg DispatcherConfig, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = defaults.BreakerFailureRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		gateway:  gateway,
		recorder: recorder,
		queue:    make(chan secondary.NotificationRequest, cfg.QueueSize),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-gateway",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return d
}

// Enqueue hands req to a worker without blocking. When the queue is full the
// record is marked dropped and Enqueue returns false.
func (d *Dispatcher) Enqueue(ctx context.Context, req secondary.NotificationRequest) bool {
	if d.cfg.Inline {
		d.deliver(ctx, req)
		return true
	}
	select {
	case d.queue <- req:
		return true
	default:
		d.logger.Warn("notification queue full, dropping request",
			zap.String("notification_id", req.NotificationID),
			zap.String("case_id", req.CaseID),
		)
		d.record(ctx, req.NotificationID, secondary.DeliveryUpdate{
			TenantID:       req.TenantID,
			NotificationID: req.NotificationID,
			Status:         incident.DeliveryDropped,
			Error:          "dispatch queue full",
		})
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Pending returns the number of queued requests.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// BreakerState reports the gateway circuit breaker state.
func (d *Dispatcher) BreakerState() gobreaker.State {
	return d.breaker.State()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req secondary.NotificationRequest) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.gateway.Send(sendCtx, req)
	})

	update := secondary.DeliveryUpdate{TenantID: req.TenantID, NotificationID: req.NotificationID}
	if err != nil {
		update.Status = incident.DeliveryFailed
		update.Error = err.Error()
		d.logger.Warn("notification delivery failed",
			zap.String("notification_id", req.NotificationID),
			zap.String("case_id", req.CaseID),
			zap.String("tenant_id", req.TenantID),
			zap.Error(err),
		)
	} else {
		// The gateway only took the request; the final result is reported later.
		update.Status = incident.DeliveryAccepted
		update.AttemptID, _ = result.(string)
	}
	d.record(ctx, req.NotificationID, update)
}

// record writes the result even if ctx was cancelled mid-delivery.
func (d *Dispatcher) record(ctx context.Context, notificationID string, update secondary.DeliveryUpdate) {
	d.metrics.Notification(update.Status)
	if d.recorder == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.recorder.UpdateNotificationDelivery(writeCtx, update); err != nil {
		d.logger.Error("failed to record notification delivery",
			zap.String("notification_id", notificationID),
			zap.Error(err),
		)
	}
}
