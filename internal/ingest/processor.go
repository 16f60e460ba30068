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

// Processor handles idempotent ingestion of webhook batches into the store.
type Processor struct {
	db      *store.DB
	bus     *bus.Bus
	applier *Applier
	logger  *zap.Logger
}

// NewProcessor creates a new ingestion processor.
func NewProcessor(db *store.DB, b *bus.Bus, applier *Applier, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		db:      db,
		bus:     b,
		applier: applier,
		logger:  logger,
	}
}

// Ingest applies message events, then status events, each in payload order.
// Every event is handled on its own: a failure is counted and the rest of the
// batch still runs. Invalid events are logged and dropped. Persistence errors
// are joined and returned once the whole batch has been attempted, so the
// caller can ask the provider to redeliver.
func (p *Processor) Ingest(ctx context.Context, batch Batch) (Result, error) {
	var (
		res  Result
		errs []error
	)

	for _, ev := range batch.Messages {
		created, err := p.IngestMessage(ctx, ev)
		switch {
		case errors.Is(err, ErrInvalidEvent):
			res.Rejected++
			p.logger.Warn("message event rejected", zap.Error(err))
		case err != nil:
			res.Failed++
			errs = append(errs, err)
			p.logger.Error("failed to ingest message", zap.Error(err), zap.String("external_id", ev.ExternalID))
		case created:
			res.Created++
		default:
			res.Duplicates++
		}
	}

	for _, ev := range batch.Statuses {
		outcome, err := p.ApplyStatus(ctx, ev)
		switch {
		case errors.Is(err, ErrInvalidEvent):
			res.Rejected++
			p.logger.Warn("status event rejected", zap.Error(err))
		case err != nil:
			res.Failed++
			errs = append(errs, err)
			p.logger.Error("failed to apply status", zap.Error(err), zap.String("correlation_id", ev.CorrelationID))
		default:
			switch outcome {
			case OutcomeApplied:
				res.Applied++
			case OutcomeStale:
				res.Stale++
			case OutcomeUnresolved:
				res.Unresolved++
			case OutcomeRejected:
				res.Rejected++
			}
		}
	}

	p.logger.Info("batch ingested",
		zap.Int("created", res.Created),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("applied", res.Applied),
		zap.Int("stale", res.Stale),
		zap.Int("unresolved", res.Unresolved),
		zap.Int("rejected", res.Rejected),
		zap.Int("failed", res.Failed))

	return res, errors.Join(errs...)
}

// IngestMessage stores one inbound message. It reports false without error
// when the external id was already recorded.
func (p *Processor) IngestMessage(ctx context.Context, ev MessageEvent) (bool, error) {
	if ev.ExternalID == "" {
		return false, fmt.Errorf("%w: message without id", ErrInvalidEvent)
	}
	if ev.SenderID == "" {
		return false, fmt.Errorf("%w: message %s without sender", ErrInvalidEvent, ev.ExternalID)
	}

	if err := p.db.EnsureContact(ctx, ev.SenderID, ev.SenderName); err != nil {
		return false, fmt.Errorf("ensure contact %s: %w", ev.SenderID, err)
	}

	msg := &store.Message{
		ExternalID:      ev.ExternalID,
		CorrelationID:   ev.ExternalID,
		ConversationKey: ev.SenderID,
		SenderName:      firstNonEmpty(ev.SenderName, ev.SenderID),
		Body:            firstNonEmpty(ev.Body, PlaceholderBody),
		MessageType:     firstNonEmpty(ev.Type, "text"),
		Direction:       store.Inbound,
		Status:          status.Delivered,
		Timestamp:       eventTime(ev.Timestamp),
	}
	created, err := p.db.InsertMessage(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", ev.ExternalID, err)
	}
	if !created {
		p.logger.Debug("duplicate message skipped", zap.String("external_id", ev.ExternalID))
		return false, nil
	}

	if p.bus != nil {
		p.bus.Publish(bus.Event{
			Kind:      bus.KindMessageCreated,
			Timestamp: time.Now(),
			Payload: bus.MessageCreated{
				ExternalID:      msg.ExternalID,
				CorrelationID:   msg.CorrelationID,
				ConversationKey: msg.ConversationKey,
				Direction:       string(msg.Direction),
				Status:          string(msg.Status),
			},
		})
	}
	return true, nil
}

// ApplyStatus validates a provider status event and hands it to the applier.
func (p *Processor) ApplyStatus(ctx context.Context, ev StatusEvent) (Outcome, error) {
	if ev.CorrelationID == "" {
		return 0, fmt.Errorf("%w: status without message id", ErrInvalidEvent)
	}
	to, err := status.Parse(ev.Status)
	if err != nil {
		return 0, fmt.Errorf("%w: message %s: %w", ErrInvalidEvent, ev.CorrelationID, err)
	}
	return p.applier.Apply(ctx, ev.CorrelationID, to, SourceProvider)
}

func eventTime(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
