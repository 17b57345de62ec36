package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/resilience"
)

const DefaultSubjectPrefix = "evidence.signals"

// Bus carries signals between processes. Each signal is published to
// "<prefix>.<name>.<session>"; a subscription covers every session.
type Bus struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	SubjectPrefix        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Bus, error) {
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
		nats.Name("evidence-panel"),
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
	return NewWithConn(conn, options.SubjectPrefix, options.ResilienceExecutor, logger), nil
}

// NewWithConn wraps an established connection.
func NewWithConn(conn *nats.Conn, prefix string, executor *resilience.Executor, logger *slog.Logger) *Bus {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		conn:     conn,
		prefix:   strings.TrimSuffix(prefix, "."),
		executor: executor,
		logger:   logger,
	}
}

func (b *Bus) Close() {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
}

func (b *Bus) subject(name domain.SignalName, sessionID string) string {
	if sessionID == "" {
		sessionID = "_"
	}
	return b.prefix + "." + string(name) + "." + sessionID
}

func (b *Bus) Publish(ctx context.Context, sig domain.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal %s: %w", sig.Name, err)
	}
	subject := b.subject(sig.Name, sig.SessionID)
	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Subscribe delivers every matching signal to handler. NATS invokes the
// handler serially per subscription, preserving publish order.
func (b *Bus) Subscribe(name domain.SignalName, handler ports.SignalHandler) (func(), error) {
	sub, err := b.conn.Subscribe(b.prefix+"."+string(name)+".>", func(msg *nats.Msg) {
		var sig domain.Signal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			b.logger.Warn("nats_signal_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(context.Background(), sig)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Debug("nats_unsubscribe_failed", "subject", sub.Subject, "error", err)
			}
		})
	}, nil
}
