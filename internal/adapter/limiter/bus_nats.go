package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/exportguard/internal/config"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSTransport subscribes to the limit subject on a NATS server.
type NATSTransport struct {
	cfg     config.NATSConfig
	subject string
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *zap.Logger
}

func NewNATSTransport(cfg config.NATSConfig, subject string, logger *zap.Logger) *NATSTransport {
	return &NATSTransport{cfg: cfg, subject: subject, logger: logger}
}

func (t *NATSTransport) Name() string {
	return config.BUS_TRANSPORT_NATS
}

func (t *NATSTransport) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("nats limit transport: disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info("nats limit transport: reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(t.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sub, err := conn.Subscribe(t.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", t.subject, err)
	}
	t.conn = conn
	t.sub = sub
	t.logger.Info("nats limit transport: subscribed", zap.String("subject", t.subject))
	return nil
}

func (t *NATSTransport) Close() {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	if t.conn != nil {
		t.conn.Close()
	}
}
