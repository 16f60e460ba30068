package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/status"
	"github.com/matheus3301/wphook/internal/store"
	"go.uber.org/zap"
)

// Outcome is the result of applying one status update.
type Outcome int

const (
	OutcomeApplied Outcome = iota + 1
	// OutcomeStale means the message is already at or past the target status.
	OutcomeStale
	// OutcomeUnresolved means no message carries the correlation id.
	OutcomeUnresolved
	// OutcomeRejected means the target is an inbound message, whose status
	// only changes when its conversation is opened.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Status sources recorded on message.status_changed events.
const (
	SourceProvider  = "provider"
	SourceSimulator = "simulator"
)

// maxSwapAttempts bounds the compare-and-swap loop. A status can move forward
// at most twice, so more attempts than that means something else is wrong.
const maxSwapAttempts = 4

// Applier moves a message's status forward. It is shared by the webhook path
// and the status simulator so both go through the same monotonic check.
type Applier struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewApplier creates an applier. A nil logger disables logging.
func NewApplier(db *store.DB, b *bus.Bus, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{db: db, bus: b, logger: logger}
}

// Apply resolves correlationID to a message and advances it to the target
// status if that is forward progress. Unresolved and stale updates are not
// errors; only persistence failures are returned.
func (a *Applier) Apply(ctx context.Context, correlationID string, to status.Status, source string) (Outcome, error) {
	msg, err := a.db.GetMessageByCorrelationID(ctx, correlationID)
	if errors.Is(err, store.ErrNotFound) {
		a.logger.Info("status for unknown message",
			zap.String("correlation_id", correlationID),
			zap.String("status", string(to)),
			zap.String("source", source))
		return OutcomeUnresolved, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", correlationID, err)
	}
	if msg.Direction != store.Outbound {
		a.logger.Warn("status for inbound message ignored",
			zap.String("external_id", msg.ExternalID),
			zap.String("status", string(to)))
		return OutcomeRejected, nil
	}

	current := msg.Status
	for range maxSwapAttempts {
		if !status.IsForward(current, to) {
			a.logger.Debug("stale status update",
				zap.String("external_id", msg.ExternalID),
				zap.String("current", string(current)),
				zap.String("status", string(to)),
				zap.String("source", source))
			return OutcomeStale, nil
		}

		swapped, err := a.db.CompareAndSwapStatus(ctx, msg.ID, current, to)
		if err != nil {
			return 0, fmt.Errorf("update status of %s: %w", msg.ExternalID, err)
		}
		if swapped {
			a.publish(msg, current, to, source)
			return OutcomeApplied, nil
		}

		// Lost the race; reload and re-check against the new status.
		latest, err := a.db.GetMessageByExternalID(ctx, msg.ExternalID)
		if errors.Is(err, store.ErrNotFound) {
			return OutcomeUnresolved, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reload %s: %w", msg.ExternalID, err)
		}
		current = latest.Status
	}
	return 0, fmt.Errorf("update status of %s: gave up after %d attempts", msg.ExternalID, maxSwapAttempts)
}

func (a *Applier) publish(msg *store.Message, from, to status.Status, source string) {
	a.logger.Debug("status applied",
		zap.String("external_id", msg.ExternalID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("source", source))

	if a.bus == nil {
		return
	}
	a.bus.Publish(bus.Event{
		Kind:      bus.KindMessageStatusChanged,
		Timestamp: time.Now(),
		Payload: bus.StatusChanged{
			ExternalID:      msg.ExternalID,
			CorrelationID:   msg.CorrelationID,
			ConversationKey: msg.ConversationKey,
			From:            string(from),
			To:              string(to),
			Source:          source,
		},
	})
}
