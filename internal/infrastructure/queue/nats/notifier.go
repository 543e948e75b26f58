package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/dokeep/internal/infrastructure/resilience"
)

// Notifier publishes "document queued" wake-ups on one subject. Messages carry
// only the document id; the payload itself stays in the work queue.
type Notifier struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
	executor     *resilience.Executor
	logger       *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	FlushTimeout         time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Notifier, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Notifier, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	flushTimeout := options.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 2 * time.Second
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("dokeep"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Notifier{
		conn:         conn,
		subject:      subject,
		flushTimeout: flushTimeout,
		executor:     options.ResilienceExecutor,
		logger:       logger,
	}, nil
}

func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *Notifier) NotifyQueued(ctx context.Context, documentID int64) error {
	payload := []byte(strconv.FormatInt(documentID, 10))
	call := func(_ context.Context) error {
		if err := n.conn.Publish(n.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if n.executor != nil {
		err = n.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

// SubscribeQueued blocks until ctx is done, calling handler for every wake-up.
// Malformed ids are logged and dropped. An unreachable server only delays
// wake-ups: the subscription is kept and replayed on reconnect.
func (n *Notifier) SubscribeQueued(ctx context.Context, handler func(documentID int64)) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		documentID, err := parseDocumentID(msg.Data)
		if err != nil {
			n.logger.Warn("nats_wakeup_malformed", "payload", string(msg.Data), "error", err)
			return
		}
		handler(documentID)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := n.conn.FlushTimeout(n.flushTimeout); err != nil {
		n.logger.Warn("nats_subscribe_pending", "subject", n.subject, "error", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		n.logger.Warn("nats_drain_failed", "subject", n.subject, "error", err)
	}
	return nil
}

func parseDocumentID(data []byte) (int64, error) {
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse document id: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("document id must be positive, got %d", id)
	}
	return id, nil
}
