package limiter

import (
	"context"
	"time"

	"github.com/berfenger/exportguard/internal/config"
	"github.com/berfenger/exportguard/internal/mqtt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTTransport subscribes to the limit topic with a dedicated client, so
// the limit feed survives restarts of the publishing actor.
type MQTTTransport struct {
	cfg    *config.Config
	topic  string
	client *mqtt.MQTTClient
	logger *zap.Logger
}

func NewMQTTTransport(cfg *config.Config, topic string, logger *zap.Logger) *MQTTTransport {
	return &MQTTTransport{cfg: cfg, topic: topic, logger: logger}
}

func (t *MQTTTransport) Name() string {
	return config.BUS_TRANSPORT_MQTT
}

func (t *MQTTTransport) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	opts := mqtt.OptsFromConfig(t.cfg)
	opts.SetClientID(mqtt.ClientId("exportguard_limits"))
	opts.WillEnabled = false
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	onMessage := func(_ pahomqtt.Client, m pahomqtt.Message) {
		handler(m.Payload())
	}
	// subscriptions are not persisted by the broker, so subscribe on every (re)connect
	t.client = mqtt.CreateMQTTClient(t.cfg, opts, func(_ pahomqtt.Client) {
		t.client.Subscribe(t.topic, 1, onMessage, func(err error) {
			if err != nil {
				t.logger.Error("mqtt limit transport: subscribe failed", zap.String("topic", t.topic), zap.Error(err))
			} else {
				t.logger.Info("mqtt limit transport: subscribed", zap.String("topic", t.topic))
			}
		}, 5*time.Second)
	}, func(_ pahomqtt.Client, err error) {
		t.logger.Warn("mqtt limit transport: connection lost", zap.Error(err))
	})

	if err := ctx.Err(); err != nil {
		return err
	}
	t.client.Connect(func(err error) {
		if err != nil {
			t.logger.Warn("mqtt limit transport: not connected yet", zap.Error(err))
		}
	}, 10*time.Second)
	return nil
}

func (t *MQTTTransport) Close() {
	if t.client != nil {
		t.client.Disconnect(500 * time.Millisecond)
	}
}
