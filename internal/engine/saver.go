package engine

import (
	"context"
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// WriteFunc performs one persistence write for a card.
type WriteFunc func(context.Context) error

// pendingWrite is one debounce slot: the latest write for a card plus the
// timer that will fire it.
type pendingWrite struct {
	timer *time.Timer
	write WriteFunc
	gen   uint64
}

// Saver coalesces debounced persistence writes per card. Scheduling a new
// write supersedes any pending one for the same card, which gives the
// per-card write-ordering guarantee: a later geometry change can never be
// overwritten by an earlier, slower-completing write.
type Saver struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]*pendingWrite
	gen      uint64
	logger   *charmLog.Logger
	onError  func(cardID string, err error)
	wg       sync.WaitGroup
}

// NewSaver constructs a saver firing writes after interval of quiet time per
// card. A nil logger discards log output.
func NewSaver(interval time.Duration, logger *charmLog.Logger) *Saver {
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &Saver{
		interval: interval,
		pending:  map[string]*pendingWrite{},
		logger:   logger,
	}
}

// SetErrorHandler installs a callback surfaced on write failure, in addition
// to logging. Used for the non-blocking user notification.
func (s *Saver) SetErrorHandler(fn func(cardID string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Schedule registers write as the pending write for cardID, replacing and
// disarming any earlier pending write for the same card.
func (s *Saver) Schedule(cardID string, write WriteFunc) {
	if write == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[cardID]; ok {
		prev.timer.Stop()
	}
	s.gen++
	slot := &pendingWrite{write: write, gen: s.gen}
	slot.timer = time.AfterFunc(s.interval, func() {
		s.fire(cardID, slot.gen)
	})
	s.pending[cardID] = slot
}

// Cancel discards the pending write for cardID, used when the card is deleted
// mid-edit.
func (s *Saver) Cancel(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.pending[cardID]; ok {
		slot.timer.Stop()
		delete(s.pending, cardID)
	}
}

// Flush forces the pending write for cardID to run immediately, used before
// the owning surface goes away.
func (s *Saver) Flush(cardID string) {
	s.mu.Lock()
	slot, ok := s.pending[cardID]
	if ok {
		slot.timer.Stop()
		delete(s.pending, cardID)
	}
	s.mu.Unlock()
	if ok {
		s.run(cardID, slot.write)
	}
}

// FlushAll forces every pending write to run immediately.
func (s *Saver) FlushAll() {
	s.mu.Lock()
	slots := make(map[string]WriteFunc, len(s.pending))
	for id, slot := range s.pending {
		slot.timer.Stop()
		slots[id] = slot.write
	}
	s.pending = map[string]*pendingWrite{}
	s.mu.Unlock()

	for id, write := range slots {
		s.run(id, write)
	}
}

// PendingCount returns the number of armed debounce slots.
func (s *Saver) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Wait blocks until all in-flight writes complete. Test helper.
func (s *Saver) Wait() {
	s.wg.Wait()
}

// fire runs the slot write when it is still the current one for cardID.
func (s *Saver) fire(cardID string, gen uint64) {
	s.mu.Lock()
	slot, ok := s.pending[cardID]
	if !ok || slot.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, cardID)
	s.mu.Unlock()
	s.run(cardID, slot.write)
}

// run executes one write, logging and surfacing failures without rolling back
// local state.
func (s *Saver) run(cardID string, write WriteFunc) {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := write(context.Background()); err != nil {
		s.logger.Error("debounced save failed", "card_id", cardID, "err", err)
		s.mu.Lock()
		handler := s.onError
		s.mu.Unlock()
		if handler != nil {
			handler(cardID, err)
		}
	}
}
