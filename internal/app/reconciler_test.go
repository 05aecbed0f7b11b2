package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loopgrid/loopgrid/internal/core"
	"github.com/loopgrid/loopgrid/internal/domain"
)

func joinedPool(t *testing.T, dialer *fakeDialer, slots int, join ...int) *Pool {
	t.Helper()
	pool := NewPool(slots, testDeps(dialer))
	for _, i := range join {
		if err := pool.Join(context.Background(), i); err != nil {
			t.Fatalf("join slot %d: %v", i, err)
		}
	}
	return pool
}

func TestReconcileMicHitsOnlyJoined(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 3, 0, 2)
	controls := NewGlobalControls()
	NewReconciler(context.Background(), pool, controls)

	controls.SetMicMuted(true)

	for _, i := range []int{0, 2} {
		if !pool.Sessions()[i].MicMuted() {
			t.Errorf("slot %d mic not muted", i)
		}
	}
	if pool.Sessions()[1].MicMuted() {
		t.Error("idle slot mutated by reconciliation")
	}

	// Exactly one backend call per joined session.
	for i := 0; i < 2; i++ {
		if got := dialer.conn(i).pubOf(core.TrackAudio).calls(); got != 1 {
			t.Errorf("conn %d backend mute calls = %d, want 1", i, got)
		}
	}
}

func TestReconcileMicSkipsSessionsAlreadyAtTarget(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 2, 0, 1)
	controls := NewGlobalControls()
	NewReconciler(context.Background(), pool, controls)

	// Slot 0 was muted individually before the global change.
	if err := pool.ToggleMic(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	pub0 := dialer.conn(0).pubOf(core.TrackAudio)
	callsBefore := pub0.calls()

	controls.SetMicMuted(true)

	if got := pub0.calls(); got != callsBefore {
		t.Errorf("redundant backend call issued for session already at target: %d -> %d", callsBefore, got)
	}
	if got := dialer.conn(1).pubOf(core.TrackAudio).calls(); got != 1 {
		t.Errorf("slot 1 backend calls = %d, want 1", got)
	}
}

func TestReconcileSpeakerLocalOnly(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 2, 0)
	controls := NewGlobalControls()
	NewReconciler(context.Background(), pool, controls)

	controls.SetSpeakerMuted(true)

	if !pool.Sessions()[0].AudioOutputMuted() {
		t.Error("speaker target not applied")
	}
	if got := dialer.conn(0).pubOf(core.TrackAudio).calls(); got != 0 {
		t.Error("speaker toggle reached the backend")
	}
}

func TestReconcileVideoSelfHealsExactlyOnce(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 1, 0)
	controls := NewGlobalControls()
	NewReconciler(context.Background(), pool, controls)

	conn := dialer.conn(0)

	controls.SetVideoEnabled(false)
	if pool.Sessions()[0].VideoEnabled() {
		t.Fatal("video still enabled after global off")
	}

	// Degrade the held track, then flip the global back on: one
	// re-acquire, and repeated ON signals add nothing.
	vid := conn.pubOf(core.TrackVideo)
	vid.mu.Lock()
	vid.live = false
	vid.mu.Unlock()

	controls.SetVideoEnabled(true)
	if !pool.Sessions()[0].VideoEnabled() {
		t.Fatal("video not enabled after global on")
	}
	conn.mu.Lock()
	videoN := conn.videoN
	conn.mu.Unlock()
	if videoN != 2 {
		t.Fatalf("video publishes = %d, want 2", videoN)
	}

	controls.SetVideoEnabled(false)
	controls.SetVideoEnabled(true)
	conn.mu.Lock()
	videoN = conn.videoN
	conn.mu.Unlock()
	if videoN != 2 {
		t.Errorf("healthy track re-acquired on repeated ON: publishes = %d", videoN)
	}
}

func TestDropAllAcrossPhases(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 3, 2)
	controls := NewGlobalControls()
	r := NewReconciler(context.Background(), pool, controls)

	if err := pool.SelectDetail(2); err != nil {
		t.Fatal(err)
	}

	// Slot 1 is stuck Joining behind a blocked dial; slot 0 stays Idle.
	dialer.block = make(chan struct{})
	joinDone := make(chan struct{})
	go func() {
		defer close(joinDone)
		_ = pool.Join(context.Background(), 1)
	}()
	deadline := time.Now().Add(time.Second)
	for pool.Sessions()[1].Phase() != domain.PhaseJoining {
		if time.Now().After(deadline) {
			t.Fatal("slot 1 never reached joining")
		}
		time.Sleep(time.Millisecond)
	}

	r.DropAll()

	for i, s := range pool.Sessions() {
		if s.Phase() != domain.PhaseIdle {
			t.Errorf("slot %d phase = %v, want idle", i, s.Phase())
		}
	}
	if pool.DetailSlot() != NoDetail {
		t.Error("detail selection not cleared")
	}
	if got := dialer.conn(0).disconnected(); got != 1 {
		t.Errorf("joined slot disconnects = %d, want 1", got)
	}

	// The in-flight join resolves stale and releases its connection.
	close(dialer.block)
	<-joinDone
	if pool.Sessions()[1].Phase() != domain.PhaseIdle {
		t.Error("stale join revived a dropped slot")
	}
	if got := dialer.conn(1).disconnected(); got != 1 {
		t.Errorf("joining slot's connection disconnects = %d, want 1", got)
	}
}

func TestDropAllFailureDoesNotBlockOthers(t *testing.T) {
	dialer := &fakeDialer{prepare: func(c *fakeConn) {
		c.disconnectErr = errors.New("teardown rejected")
	}}
	pool := joinedPool(t, dialer, 3, 0, 1, 2)
	controls := NewGlobalControls()
	r := NewReconciler(context.Background(), pool, controls)

	r.DropAll()

	for i, s := range pool.Sessions() {
		if s.Phase() != domain.PhaseIdle {
			t.Errorf("slot %d phase = %v, want idle despite disconnect failures", i, s.Phase())
		}
	}
	for i := 0; i < 3; i++ {
		if got := dialer.conn(i).disconnected(); got != 1 {
			t.Errorf("conn %d disconnect attempts = %d, want 1", i, got)
		}
	}
}

func TestDropTriggeredThroughControls(t *testing.T) {
	dialer := &fakeDialer{}
	pool := joinedPool(t, dialer, 2, 0, 1)
	controls := NewGlobalControls()
	NewReconciler(context.Background(), pool, controls)

	controls.Drop()

	if got := controls.DropGeneration(); got != 1 {
		t.Errorf("drop generation = %d, want 1", got)
	}
	for i, s := range pool.Sessions() {
		if s.Phase() != domain.PhaseIdle {
			t.Errorf("slot %d not idle after drop", i)
		}
	}

	// Generations are strictly increasing; a second drop reruns the sweep.
	controls.Drop()
	if got := controls.DropGeneration(); got != 2 {
		t.Errorf("drop generation = %d, want 2", got)
	}
}
