package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/loopgrid/loopgrid/internal/domain"
)

// Reconciler pushes global control changes onto every currently-joined
// session, one-way. It compares each session against the target and
// issues at most one backend call per session per change; sessions
// already at the target are skipped. Per-session failures are logged
// and never abort the sweep.
type Reconciler struct {
	ctx      context.Context
	pool     *Pool
	controls *GlobalControls
}

// NewReconciler wires the reconciler as the controls observer. ctx
// bounds the backend calls issued by sweeps for the app's lifetime.
func NewReconciler(ctx context.Context, pool *Pool, controls *GlobalControls) *Reconciler {
	r := &Reconciler{ctx: ctx, pool: pool, controls: controls}
	controls.Observe(r.apply)
	return r
}

func (r *Reconciler) apply(change ControlChange) {
	switch change {
	case ControlMic:
		r.reconcileMic()
	case ControlSpeaker:
		r.reconcileSpeaker()
	case ControlVideo:
		r.reconcileVideo()
	case ControlDrop:
		r.DropAll()
	}
}

func (r *Reconciler) reconcileMic() {
	target := r.controls.MicMuted()
	for _, s := range r.pool.Sessions() {
		if s.Phase() != domain.PhaseJoined {
			continue
		}
		if err := s.SetMicMuted(r.ctx, target); err != nil {
			log.Warn().Err(err).Str("module", "app.reconciler").Int("slot", s.Slot()).Msg("reconcile mic")
		}
	}
}

func (r *Reconciler) reconcileSpeaker() {
	target := r.controls.SpeakerMuted()
	for _, s := range r.pool.Sessions() {
		if s.Phase() != domain.PhaseJoined {
			continue
		}
		s.SetAudioOutputMuted(target)
	}
}

func (r *Reconciler) reconcileVideo() {
	target := r.controls.VideoEnabled()
	for _, s := range r.pool.Sessions() {
		if s.Phase() != domain.PhaseJoined {
			continue
		}
		if err := s.SetVideoEnabled(r.ctx, target); err != nil {
			log.Warn().Err(err).Str("module", "app.reconciler").Int("slot", s.Slot()).Msg("reconcile video")
		}
	}
}

// DropAll tears every session down regardless of phase, concurrently.
// Leave is best-effort per session and never fails the others; after
// all attempts complete every slot is at Idle defaults and the detail
// selection is cleared. This is the only operation that mutates
// sessions the user did not individually address.
func (r *Reconciler) DropAll() {
	var g errgroup.Group
	for _, s := range r.pool.Sessions() {
		g.Go(func() error {
			s.Leave()
			return nil
		})
	}
	_ = g.Wait()
	r.pool.ClearDetail()
	log.Info().Str("module", "app.reconciler").Uint64("generation", r.controls.DropGeneration()).Msg("all loops dropped")
}
