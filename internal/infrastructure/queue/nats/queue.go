package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/infrastructure/resilience"
)

const traceIDHeader = "Trace-Id"

// Queue carries finished ask traces from the API to the audit worker.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
}

type Options struct {
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "trace-writers"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("legal-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishTrace(ctx context.Context, event domain.TraceEvent) error {
	msg, err := encodeTrace(q.subject, event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish_trace", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeTraces delivers events to handler until ctx is done, then drains.
func (q *Queue) SubscribeTraces(ctx context.Context, handler func(context.Context, domain.TraceEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handleTraceMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeTrace(subject string, event domain.TraceEvent) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal trace event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(traceIDHeader, event.ID)
	return msg, nil
}

func handleTraceMessage(ctx context.Context, data []byte, handler func(context.Context, domain.TraceEvent) error) {
	var event domain.TraceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Warn("trace_event_malformed", "error", err, "bytes", len(data))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		slog.Error("trace_handler_failed", "trace_id", event.ID, "error", err)
	}
}
