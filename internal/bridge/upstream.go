package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/bhyve-bridge/internal/command"
	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/metrics"
)

// CommandSink is the cloud-facing collaborator that carries validated
// commands and refresh requests upstream.
type CommandSink interface {
	// SendCommand forwards a change_mode event.
	SendCommand(ctx context.Context, ev command.ChangeMode) error
	// RequestRefresh asks for device state to be re-fetched.
	RequestRefresh(ctx context.Context) error
}

const (
	upstreamTimeout = 10 * time.Second

	// breakerTripThreshold is the consecutive failure count that opens
	// the breaker.
	breakerTripThreshold = 5

	// breakerCooldown is how long the breaker stays open before probing
	// the sink again.
	breakerCooldown = 30 * time.Second
)

// NewSinkHandler adapts a CommandSink into a bridge event handler, with a
// circuit breaker between the two. While the breaker is open, forwards
// fail fast without touching the sink; validation error events are
// consumed without a sink call.
func NewSinkHandler(sink CommandSink, m *metrics.Metrics, log Logger) Handler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "upstream",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("upstream breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	forward := func(op func(context.Context) error) error {
		_, err := cb.Execute(func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), upstreamTimeout)
			defer cancel()
			return nil, op(ctx)
		})
		if err != nil {
			m.UpstreamErrors.Inc()
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil
	}

	return func(subject string, data any) {
		switch subject {
		case EventZoneCommand:
			zc, ok := data.(*ZoneCommand)
			if !ok {
				return
			}
			if err := forward(func(ctx context.Context) error {
				return sink.SendCommand(ctx, zc.Event)
			}); err != nil {
				log.Error("zone command forward failed",
					"device_id", zc.DeviceID,
					"station", zc.Station,
					"error", err)
				return
			}
			log.Info("zone command forwarded",
				"device_id", zc.DeviceID,
				"station", zc.Station,
				"state", string(zc.Command.State))
		case EventDeviceRefresh:
			if err := forward(sink.RequestRefresh); err != nil {
				log.Error("device refresh forward failed", "error", err)
				return
			}
			log.Info("device refresh forwarded")
		case EventValidationError:
			// Already counted and logged by the router. Nothing goes
			// upstream.
		}
	}
}
