// Package simulator advances locally sent messages through delivered and read
// on timers, standing in for the provider's status callbacks.
package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wphook/internal/bus"
	"github.com/matheus3301/wphook/internal/config"
	"github.com/matheus3301/wphook/internal/ingest"
	"github.com/matheus3301/wphook/internal/status"
	"github.com/matheus3301/wphook/internal/store"
	"go.uber.org/zap"
)

// StatusApplier is implemented by *ingest.Applier.
type StatusApplier interface {
	Apply(ctx context.Context, correlationID string, to status.Status, source string) (ingest.Outcome, error)
}

type task struct {
	conversationKey string
	delivered       *time.Timer
	read            *time.Timer
}

func (t *task) stop() {
	t.delivered.Stop()
	t.read.Stop()
}

// Simulator schedules deferred status transitions. Schedules live in memory
// only and are lost on restart.
type Simulator struct {
	applier StatusApplier
	bus     *bus.Bus
	cfg     config.SimulatorConfig
	logger  *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates a simulator. It can schedule immediately; Start additionally
// ties it to a parent context and to contact deletions on the bus.
func New(applier StatusApplier, b *bus.Bus, cfg config.SimulatorConfig, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		applier: applier,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
		tasks:   make(map[string]*task),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enabled reports whether Schedule arms anything.
func (s *Simulator) Enabled() bool {
	return s.cfg.Enabled
}

// Start derives the simulator's context from ctx and cancels pending tasks of
// a conversation when its contact is deleted.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if s.bus == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(bus.KindContactDeleted, 64)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if p, ok := evt.Payload.(bus.ContactChanged); ok {
					if n := s.CancelConversation(p.WaID); n > 0 {
						s.logger.Debug("simulated statuses cancelled", zap.String("wa_id", p.WaID), zap.Int("tasks", n))
					}
				}
			case <-runCtx.Done():
				return
			}
		}
	}()
}

// Stop cancels every pending task and any transition in flight.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.cancel()
	for key, t := range s.tasks {
		t.stop()
		delete(s.tasks, key)
	}
}

// Schedule arms sent -> delivered after DeliveredAfter and delivered -> read
// ReadAfter later for msg. Scheduling a correlation id again replaces its
// previous task.
func (s *Simulator) Schedule(msg store.Message) {
	if !s.cfg.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	key := msg.CorrelationID
	if old, ok := s.tasks[key]; ok {
		old.stop()
	}

	t := &task{conversationKey: msg.ConversationKey}
	t.delivered = time.AfterFunc(s.cfg.DeliveredAfter, func() { s.fire(key, t, status.Delivered) })
	t.read = time.AfterFunc(s.cfg.DeliveredAfter+s.cfg.ReadAfter, func() { s.fire(key, t, status.Read) })
	s.tasks[key] = t

	s.logger.Debug("status simulation scheduled",
		zap.String("correlation_id", key),
		zap.Duration("delivered_after", s.cfg.DeliveredAfter),
		zap.Duration("read_after", s.cfg.ReadAfter))
}

// Cancel drops the task for a correlation id. It reports whether one existed.
func (s *Simulator) Cancel(correlationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[correlationID]
	if !ok {
		return false
	}
	t.stop()
	delete(s.tasks, correlationID)
	return true
}

// CancelConversation drops every task of a conversation and returns how many
// were cancelled.
func (s *Simulator) CancelConversation(conversationKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, t := range s.tasks {
		if t.conversationKey == conversationKey {
			t.stop()
			delete(s.tasks, key)
			n++
		}
	}
	return n
}

// Pending returns the number of tasks that have not finished.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Simulator) fire(key string, t *task, to status.Status) {
	s.mu.Lock()
	if s.tasks[key] != t {
		// Replaced or cancelled after the timer fired.
		s.mu.Unlock()
		return
	}
	if to == status.Read {
		delete(s.tasks, key)
	}
	ctx := s.ctx
	s.mu.Unlock()

	outcome, err := s.applier.Apply(ctx, key, to, ingest.SourceSimulator)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("simulated status failed", zap.Error(err), zap.String("correlation_id", key), zap.String("status", string(to)))
		}
		return
	}
	if outcome == ingest.OutcomeUnresolved {
		// The message is gone; there is nothing left to advance.
		s.mu.Lock()
		if s.tasks[key] == t {
			t.stop()
			delete(s.tasks, key)
		}
		s.mu.Unlock()
		s.logger.Debug("simulated status target vanished", zap.String("correlation_id", key))
	}
}
