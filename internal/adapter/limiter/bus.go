package limiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/berfenger/exportguard/internal/core/domain"

	"go.uber.org/zap"
)

// BusTransport delivers raw limit payloads from a message bus.
type BusTransport interface {
	Name() string
	Subscribe(ctx context.Context, handler func(payload []byte)) error
	Close()
}

// BusPayload is the JSON body accepted on the limit bus.
type BusPayload struct {
	OpModConnect  *bool    `json:"opModConnect,omitempty"`
	OpModEnergize *bool    `json:"opModEnergize,omitempty"`
	OpModExpLimW  *float64 `json:"opModExpLimW,omitempty"`
	OpModGenLimW  *float64 `json:"opModGenLimW,omitempty"`
}

// DecodeBusPayload parses and validates a bus message. Watt values must be
// finite and non negative.
func DecodeBusPayload(data []byte) (domain.ControlDirective, error) {
	var p BusPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return domain.ControlDirective{}, fmt.Errorf("decode bus payload: %w: %w", domain.ErrInvalidInput, err)
	}
	for name, v := range map[string]*float64{"opModExpLimW": p.OpModExpLimW, "opModGenLimW": p.OpModGenLimW} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return domain.ControlDirective{}, fmt.Errorf("bus payload %s=%v: %w", name, *v, domain.ErrInvalidInput)
		}
	}
	return domain.ControlDirective{
		Source:               SOURCE_BUS,
		Connect:              p.OpModConnect,
		Energize:             p.OpModEnergize,
		ExportLimitWatts:     p.OpModExpLimW,
		GenerationLimitWatts: p.OpModGenLimW,
	}, nil
}

// BusLimiter keeps the last valid directive received over the bus.
type BusLimiter struct {
	transport BusTransport
	current   atomic.Pointer[domain.ControlDirective]
	logger    *zap.Logger
}

func NewBusLimiter(transport BusTransport, logger *zap.Logger) *BusLimiter {
	return &BusLimiter{
		transport: transport,
		logger:    logger.With(zap.String("limiter", SOURCE_BUS), zap.String("transport", transport.Name())),
	}
}

func (l *BusLimiter) Name() string {
	return SOURCE_BUS
}

func (l *BusLimiter) CurrentDirective() domain.ControlDirective {
	if d := l.current.Load(); d != nil {
		return *d
	}
	return domain.ControlDirective{Source: SOURCE_BUS}
}

func (l *BusLimiter) Start(ctx context.Context) error {
	return l.transport.Subscribe(ctx, l.OnMessage)
}

func (l *BusLimiter) Stop() {
	l.transport.Close()
}

// OnMessage replaces the snapshot. Invalid payloads are dropped and the
// previous snapshot is kept.
func (l *BusLimiter) OnMessage(payload []byte) {
	d, err := DecodeBusPayload(payload)
	if err != nil {
		l.logger.Error("bus limiter: invalid message", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	l.logger.Info("bus limiter: directive updated", zap.Stringer("directive", d))
	l.current.Store(&d)
}
