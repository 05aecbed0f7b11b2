package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loopgrid/loopgrid/internal/core"
	"github.com/loopgrid/loopgrid/internal/domain"
)

// DefaultSlots is the number of loop slots in the grid.
const DefaultSlots = 6

var ErrSlotOutOfRange = errors.New("slot out of range")

// NoDetail marks an empty detail selection.
const NoDetail = -1

// Pool is the fixed-size ordered collection of loop sessions. Slots
// are independently addressable; there is no cross-slot locking, the
// pool only guards its own detail-selection bookkeeping.
type Pool struct {
	sessions []*core.Session

	mu     sync.Mutex
	detail int
}

func NewPool(slots int, deps core.SessionDeps) *Pool {
	if slots <= 0 {
		slots = DefaultSlots
	}
	p := &Pool{
		sessions: make([]*core.Session, slots),
		detail:   NoDetail,
	}
	for i := range p.sessions {
		p.sessions[i] = core.NewSession(i, deps)
	}
	return p
}

func (p *Pool) Size() int { return len(p.sessions) }

// Sessions returns the slot sequence, for reconciliation sweeps.
func (p *Pool) Sessions() []*core.Session { return p.sessions }

func (p *Pool) session(slot int) (*core.Session, error) {
	if slot < 0 || slot >= len(p.sessions) {
		return nil, fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	return p.sessions[slot], nil
}

func (p *Pool) Join(ctx context.Context, slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	return s.Join(ctx)
}

func (p *Pool) Leave(slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	s.Leave()
	return nil
}

func (p *Pool) ToggleMic(ctx context.Context, slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	return s.ToggleMic(ctx)
}

func (p *Pool) ToggleVideo(ctx context.Context, slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	return s.ToggleVideo(ctx)
}

func (p *Pool) ToggleAudioOutput(slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	s.ToggleAudioOutput()
	return nil
}

func (p *Pool) SendChat(ctx context.Context, slot int, text string) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	return s.SendChat(ctx, text)
}

// SelectDetail marks the single slot shown in the detail view. A
// purely presentational selector; at most one slot is selected.
func (p *Pool) SelectDetail(slot int) error {
	s, err := p.session(slot)
	if err != nil {
		return err
	}
	p.mu.Lock()
	prev := p.detail
	p.detail = slot
	p.mu.Unlock()

	if prev != NoDetail && prev != slot {
		p.sessions[prev].SetDetailSelected(false)
	}
	s.SetDetailSelected(true)
	return nil
}

// ClearDetail drops the detail selection, if any.
func (p *Pool) ClearDetail() {
	p.mu.Lock()
	prev := p.detail
	p.detail = NoDetail
	p.mu.Unlock()

	if prev != NoDetail {
		p.sessions[prev].SetDetailSelected(false)
	}
}

func (p *Pool) DetailSlot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detail
}

// Snapshots returns the per-slot views in slot order.
func (p *Pool) Snapshots() []domain.LoopSnapshot {
	out := make([]domain.LoopSnapshot, len(p.sessions))
	for i, s := range p.sessions {
		out[i] = s.Snapshot()
	}
	return out
}
