// Package events fans engine lifecycle events out to the Redis event bus
// and operator notifiers. The monitor and the opportunity manager publish
// here without knowing which sinks are wired; downstream consumers (the
// WebSocket hub included) subscribe to the bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/notify"
)

const (
	// AuditStream is the durable stream terminal events are appended to.
	AuditStream = "events:audit"

	// channelPrefix namespaces pub/sub channels, e.g. "events:opportunity_found".
	channelPrefix = "events:"

	// notifyTimeout bounds a single notifier dispatch. Notifications run on
	// detached contexts so a slow webhook never stalls the engine.
	notifyTimeout = 10 * time.Second
)

// Channel returns the pub/sub channel events of the given type are
// published on.
func Channel(t domain.EventType) string {
	return channelPrefix + string(t)
}

// Publisher is the concrete event sink handed to the monitor and the
// opportunity manager. Every sink is optional; an unwired sink is skipped.
type Publisher struct {
	logger   *slog.Logger
	bus      domain.EventBus
	notifier *notify.Notifier
}

// NewPublisher creates a Publisher with no sinks attached.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		logger: logger.With(slog.String("component", "events")),
	}
}

// SetBus attaches the shared event bus.
func (p *Publisher) SetBus(bus domain.EventBus) { p.bus = bus }

// SetNotifier attaches operator notifications.
func (p *Publisher) SetNotifier(n *notify.Notifier) { p.notifier = n }

// Publish serialises the event once and delivers it to every attached sink.
// Sink failures are logged and never propagate to the publishing component.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) {
	env := Envelope{
		Type:   string(ev.Type),
		At:     ev.At,
		Detail: ev.Detail,
	}
	if ev.Opportunity != nil {
		o := EncodeOpportunity(*ev.Opportunity)
		env.Opportunity = &o
	}

	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Warn("event marshal failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
		return
	}

	if p.bus != nil {
		channel := Channel(ev.Type)
		if err := p.bus.Publish(ctx, channel, payload); err != nil {
			p.logger.Warn("event publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()))
		}
		// Price ticks are too chatty for the audit stream.
		if ev.Type != domain.EventPriceTick {
			if err := p.bus.StreamAppend(ctx, AuditStream, payload); err != nil {
				p.logger.Warn("audit append failed", slog.String("error", err.Error()))
			}
		}
	}

	if p.notifier != nil {
		if title, message, ok := renderEvent(ev); ok {
			// Detached so a slow webhook cannot stall the caller.
			go func() {
				nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				if err := p.notifier.Notify(nctx, string(ev.Type), title, message); err != nil {
					p.logger.Warn("notification failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// renderEvent formats an event for operator notification channels. Price
// ticks are never forwarded.
func renderEvent(ev domain.Event) (title, message string, ok bool) {
	opp := ev.Opportunity

	switch ev.Type {
	case domain.EventOpportunityFound:
		if opp == nil {
			return "", "", false
		}
		return "Arbitrage opportunity detected",
			fmt.Sprintf("%s/%s %.2f%% (%s -> %s), estimated profit %.4f %s",
				opp.TokenIn.String(), opp.TokenOut.String(),
				opp.ProfitPercentage, opp.SourceVenue, opp.TargetVenue,
				opp.EstimatedProfit, opp.TokenIn.String()),
			true

	case domain.EventExecutionStarted:
		if opp == nil {
			return "", "", false
		}
		return "Execution started",
			fmt.Sprintf("%s/%s %.2f%% on %s -> %s, size %.4f",
				opp.TokenIn.String(), opp.TokenOut.String(),
				opp.ProfitPercentage, opp.SourceVenue, opp.TargetVenue, opp.TradeSize),
			true

	case domain.EventExecutionCompleted:
		msg := "Trade settled"
		if opp != nil {
			msg = fmt.Sprintf("%s/%s settled", opp.TokenIn.String(), opp.TokenOut.String())
		}
		if tx, found := ev.Detail["txRef"]; found {
			msg += fmt.Sprintf(", tx %v", tx)
		}
		if profit, found := ev.Detail["realizedProfit"]; found {
			msg += fmt.Sprintf(", realized %v", profit)
		}
		return "Execution completed", msg, true

	case domain.EventExecutionFailed:
		msg := "Execution failed"
		if opp != nil {
			msg = fmt.Sprintf("%s/%s failed", opp.TokenIn.String(), opp.TokenOut.String())
		}
		if reason, found := ev.Detail["reason"]; found {
			msg += fmt.Sprintf(": %v", reason)
		}
		return "Execution failed", msg, true

	case domain.EventCircuitOpen:
		msg := "Auto-execution halted until manually reset"
		if n, found := ev.Detail["threshold"]; found {
			msg = fmt.Sprintf("Auto-execution halted after %v consecutive failures; reset required", n)
		}
		return "Circuit breaker open", msg, true

	case domain.EventMonitorStarted:
		return "Monitoring started", "The polling loop is running", true

	case domain.EventMonitorStopped:
		return "Monitoring stopped", "The polling loop has been stopped", true

	default:
		return "", "", false
	}
}
