package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/domain"
)

// DefaultSettleDelay is how long a join waits after publishing before
// declaring readiness; the router acknowledges publications with some
// latency and a fixed delay rides it out.
const DefaultSettleDelay = 500 * time.Millisecond

// SessionDeps are the collaborators a Session talks to. Sleep may be
// overridden in tests; nil means time.Sleep.
type SessionDeps struct {
	Creds       CredentialClient
	Dialer      MediaDialer
	Opts        ConnectOptions
	SettleDelay time.Duration
	Sleep       func(time.Duration)
}

// Session wraps one connection to the media router: its published
// tracks, mute flags and the message log of its data side-channel.
// One instance per loop slot, safe for concurrent use.
//
// Every join bumps a monotonic epoch; async continuations and backend
// events re-check it before touching state, so a completion that lands
// after an intervening leave or drop is discarded instead of reviving
// a slot that was already reset.
type Session struct {
	slot int
	deps SessionDeps

	mu               sync.Mutex
	phase            domain.Phase
	epoch            uint64
	identity         string
	room             domain.RoomName
	micMuted         bool
	audioOutputMuted bool
	videoEnabled     bool
	conn             MediaConn
	audioPub         TrackPublication
	videoPub         TrackPublication
	messages         []domain.ChatMessage
	remotes          map[string]struct{}

	thumb          VideoSurface
	detail         VideoSurface
	detailSelected bool
}

func NewSession(slot int, deps SessionDeps) *Session {
	if deps.SettleDelay == 0 {
		deps.SettleDelay = DefaultSettleDelay
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	return &Session{
		slot:  slot,
		deps:  deps,
		phase: domain.PhaseIdle,
	}
}

func (s *Session) Slot() int { return s.slot }

// AttachSurfaces registers the rendering sinks for this loop's video.
// Presentation-owned; the session only binds streams into them.
func (s *Session) AttachSurfaces(thumb, detail VideoSurface) {
	s.mu.Lock()
	s.thumb = thumb
	s.detail = detail
	s.mu.Unlock()
}

// Join connects the slot to its room: credential, dial, publish one
// audio and one video track, settle, then flip to Joined. A call while
// the slot is not Idle is a no-op, which also guards against a second
// join racing one already in flight. On any failure everything acquired
// so far is released and the slot reverts to Idle.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != domain.PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		log.Debug().Str("module", "core.session").Int("slot", s.slot).Stringer("phase", phase).Msg("join ignored, slot not idle")
		return nil
	}
	s.epoch++
	epoch := s.epoch
	s.phase = domain.PhaseJoining
	s.identity = domain.NewIdentity()
	s.room = domain.RoomForSlot(s.slot)
	s.messages = nil
	s.remotes = make(map[string]struct{})
	identity, room := s.identity, s.room
	s.mu.Unlock()

	logger := log.With().Str("module", "core.session").Int("slot", s.slot).Str("room", string(room)).Logger()

	fail := func(step string, err error) error {
		s.mu.Lock()
		if s.epoch == epoch {
			s.resetLocked()
		}
		s.mu.Unlock()
		logger.Error().Err(err).Str("step", step).Msg("join failed")
		return fmt.Errorf("join slot %d: %s: %w", s.slot, step, err)
	}

	token, err := s.deps.Creds.Credential(ctx, room, identity)
	if err != nil {
		return fail("credential", err)
	}

	ev := ConnEvents{
		OnData:              func(payload []byte, senderID string) { s.handleData(epoch, payload, senderID) },
		OnParticipantJoined: func(id string) { s.handleParticipant(epoch, id, true) },
		OnParticipantLeft:   func(id string) { s.handleParticipant(epoch, id, false) },
	}
	conn, err := s.deps.Dialer.Dial(ctx, room, token, s.deps.Opts, ev)
	if err != nil {
		return fail("dial", err)
	}

	audio, err := conn.PublishAudio(ctx)
	if err != nil {
		s.disconnect(conn)
		return fail("publish audio", err)
	}
	video, err := conn.PublishVideo(ctx)
	if err != nil {
		s.closePub(audio)
		s.disconnect(conn)
		return fail("publish video", err)
	}

	// Router acks publications with some latency; settle before Joined.
	s.deps.Sleep(s.deps.SettleDelay)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		logger.Info().Msg("join completed for a reset slot, releasing")
		s.closePub(audio)
		s.closePub(video)
		s.disconnect(conn)
		return nil
	}
	s.phase = domain.PhaseJoined
	s.conn = conn
	s.audioPub = audio
	s.videoPub = video
	s.micMuted = false
	s.audioOutputMuted = false
	s.videoEnabled = true
	thumb := s.thumb
	s.mu.Unlock()

	if thumb != nil {
		thumb.Bind(video)
	}
	logger.Info().Str("identity", identity).Msg("joined")
	return nil
}

// Leave tears the slot down. Best-effort: disconnect failures are
// logged and swallowed, state is reset regardless. A leave while a
// join is in flight bumps the epoch so the join's continuation
// releases its resources instead of applying Joined state.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.phase == domain.PhaseIdle {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	thumb, detail := s.thumb, s.detail
	s.resetLocked()
	s.mu.Unlock()

	if thumb != nil {
		thumb.Clear()
	}
	if detail != nil {
		detail.Clear()
	}
	s.disconnect(conn)
	log.Info().Str("module", "core.session").Int("slot", s.slot).Msg("left")
}

// resetLocked restores Idle defaults and invalidates in-flight work.
func (s *Session) resetLocked() {
	s.epoch++
	s.phase = domain.PhaseIdle
	s.identity = ""
	s.conn = nil
	s.audioPub = nil
	s.videoPub = nil
	s.micMuted = false
	s.audioOutputMuted = false
	s.videoEnabled = false
	s.messages = nil
	s.remotes = nil
	s.detailSelected = false
}

func (s *Session) disconnect(conn MediaConn) {
	if conn == nil {
		return
	}
	if err := conn.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("disconnect")
	}
}

func (s *Session) closePub(pub TrackPublication) {
	if pub == nil {
		return
	}
	if err := pub.Close(); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("close publication")
	}
}

// ToggleMic flips the published audio track's mute bit. The track is
// looked up through the resolver rather than the held handle so a
// handle lost to backend shape drift still resolves. No audio track
// is a logged no-op.
func (s *Session) ToggleMic(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != domain.PhaseJoined {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	epoch := s.epoch
	s.mu.Unlock()

	pub, ok := resolveTrack(conn, TrackAudio)
	if !ok {
		log.Warn().Str("module", "core.session").Int("slot", s.slot).Msg("toggle mic: no audio track resolvable")
		return nil
	}
	target := !pub.IsMuted()
	if err := pub.SetMuted(ctx, target); err != nil {
		log.Error().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("toggle mic")
		return fmt.Errorf("toggle mic slot %d: %w", s.slot, err)
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.micMuted = target
	}
	s.mu.Unlock()
	return nil
}

// SetMicMuted drives the mic to an explicit target; already-there is a
// no-op so reconciliation never issues redundant backend calls.
func (s *Session) SetMicMuted(ctx context.Context, muted bool) error {
	s.mu.Lock()
	if s.phase != domain.PhaseJoined || s.micMuted == muted {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	epoch := s.epoch
	s.mu.Unlock()

	pub, ok := resolveTrack(conn, TrackAudio)
	if !ok {
		log.Warn().Str("module", "core.session").Int("slot", s.slot).Msg("set mic: no audio track resolvable")
		return nil
	}
	if err := pub.SetMuted(ctx, muted); err != nil {
		return fmt.Errorf("set mic slot %d: %w", s.slot, err)
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.micMuted = muted
	}
	s.mu.Unlock()
	return nil
}

// ToggleVideo flips the video track's mute bit, resolving a handle
// from the backend if none is held. Unmuting re-binds the live stream
// to the attached surfaces: a muted-then-unmuted handle does not
// refresh consumer-side bindings on its own.
func (s *Session) ToggleVideo(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != domain.PhaseJoined {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	epoch := s.epoch
	pub := s.videoPub
	s.mu.Unlock()

	if pub == nil {
		var ok bool
		pub, ok = resolveTrack(conn, TrackVideo)
		if !ok {
			log.Warn().Str("module", "core.session").Int("slot", s.slot).Msg("toggle video: no video track resolvable")
			return nil
		}
	}
	target := !pub.IsMuted()
	if err := pub.SetMuted(ctx, target); err != nil {
		return fmt.Errorf("toggle video slot %d: %w", s.slot, err)
	}

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		s.videoPub = pub
		s.videoEnabled = !target
	}
	thumb, detail := s.thumb, s.detail
	selected := s.detailSelected
	s.mu.Unlock()
	if stale {
		return nil
	}

	if !target {
		s.rebind(pub, thumb, detail, selected)
	}
	return nil
}

// SetVideoEnabled drives video to an explicit target, re-acquiring a
// fresh track when enabling and the held one is absent or carries no
// live stream. Video acquisition degrades silently, so enabling is
// self-healing. Enabling an already-enabled, healthy track is a no-op.
func (s *Session) SetVideoEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	if s.phase != domain.PhaseJoined {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	epoch := s.epoch
	pub := s.videoPub
	if pub == nil {
		pub, _ = resolveTrack(conn, TrackVideo)
	}
	usable := pub != nil && pub.HasLiveStream()
	if enabled && usable && s.videoEnabled && !pub.IsMuted() {
		s.mu.Unlock()
		return nil
	}
	if !enabled && !s.videoEnabled {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if enabled && !usable {
		if pub != nil {
			s.closePub(pub)
		}
		fresh, err := conn.PublishVideo(ctx)
		if err != nil {
			log.Error().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("republish video")
			return fmt.Errorf("republish video slot %d: %w", s.slot, err)
		}
		pub = fresh
		log.Info().Str("module", "core.session").Int("slot", s.slot).Msg("video track re-acquired")
	}
	if pub == nil {
		log.Warn().Str("module", "core.session").Int("slot", s.slot).Msg("set video: no track")
		return nil
	}

	if pub.IsMuted() == enabled {
		if err := pub.SetMuted(ctx, !enabled); err != nil {
			return fmt.Errorf("set video slot %d: %w", s.slot, err)
		}
	}

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		s.videoPub = pub
		s.videoEnabled = enabled
	}
	thumb, detail := s.thumb, s.detail
	selected := s.detailSelected
	s.mu.Unlock()
	if stale {
		s.closePub(pub)
		return nil
	}

	if enabled {
		s.rebind(pub, thumb, detail, selected)
	}
	return nil
}

func (s *Session) rebind(pub TrackPublication, thumb, detail VideoSurface, selected bool) {
	if thumb != nil {
		thumb.Bind(pub)
	}
	if selected && detail != nil {
		detail.Bind(pub)
	}
}

// ToggleAudioOutput flips local playback suppression. Purely a local
// rendering intent, never propagated to the router.
func (s *Session) ToggleAudioOutput() {
	s.mu.Lock()
	if s.phase == domain.PhaseJoined {
		s.audioOutputMuted = !s.audioOutputMuted
	}
	s.mu.Unlock()
}

// SetAudioOutputMuted drives the local playback flag to a target.
func (s *Session) SetAudioOutputMuted(muted bool) {
	s.mu.Lock()
	if s.phase == domain.PhaseJoined {
		s.audioOutputMuted = muted
	}
	s.mu.Unlock()
}

// SendChat appends the message to the local log synchronously, then
// transmits it over the data side-channel. Local echo is therefore
// always ordered before any remote copy. Whitespace-only text is
// rejected before anything is appended.
func (s *Session) SendChat(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.phase != domain.PhaseJoined {
		s.mu.Unlock()
		return nil
	}
	msg, err := domain.NewChatMessage(s.identity, fmt.Sprintf("loop-%d", s.slot+1), text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.messages = append(s.messages, msg)
	conn := s.conn
	s.mu.Unlock()

	payload, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("encode chat")
		return fmt.Errorf("encode chat slot %d: %w", s.slot, err)
	}
	if err := conn.SendData(ctx, payload); err != nil {
		// Local echo stays; delivery has no guarantee anyway.
		log.Warn().Err(err).Str("module", "core.session").Int("slot", s.slot).Msg("send chat")
	}
	return nil
}

func (s *Session) handleData(epoch uint64, payload []byte, senderID string) {
	msg, err := domain.DecodeChatMessage(payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.session").Int("slot", s.slot).Str("sender", senderID).Msg("malformed chat payload dropped")
		return
	}
	s.mu.Lock()
	if s.epoch == epoch && s.phase == domain.PhaseJoined {
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()
}

func (s *Session) handleParticipant(epoch uint64, identity string, joined bool) {
	s.mu.Lock()
	if s.epoch == epoch && s.remotes != nil {
		if joined {
			s.remotes[identity] = struct{}{}
		} else {
			delete(s.remotes, identity)
		}
	}
	s.mu.Unlock()
}

func (s *Session) setDetailSelected(selected bool) {
	s.mu.Lock()
	s.detailSelected = selected
	pub := s.videoPub
	detail := s.detail
	enabled := s.videoEnabled
	s.mu.Unlock()

	if detail == nil {
		return
	}
	if selected && enabled && pub != nil {
		detail.Bind(pub)
	} else if !selected {
		detail.Clear()
	}
}

// SetDetailSelected marks whether this loop is shown in the detail
// view, re-binding or clearing the detail surface accordingly.
func (s *Session) SetDetailSelected(selected bool) { s.setDetailSelected(selected) }

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) MicMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micMuted
}

func (s *Session) AudioOutputMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOutputMuted
}

func (s *Session) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

// Messages returns a copy of the ordered message log.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Snapshot is the read-only view the presentation layer renders.
func (s *Session) Snapshot() domain.LoopSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := domain.LoopSnapshot{
		Slot:             s.slot,
		Phase:            s.phase.String(),
		Room:             string(domain.RoomForSlot(s.slot)),
		Identity:         s.identity,
		MicMuted:         s.micMuted,
		AudioOutputMuted: s.audioOutputMuted,
		VideoEnabled:     s.videoEnabled,
	}
	if len(s.remotes) > 0 {
		snap.Participants = make([]string, 0, len(s.remotes))
		for id := range s.remotes {
			snap.Participants = append(snap.Participants, id)
		}
	}
	if len(s.messages) > 0 {
		snap.Messages = make([]domain.ChatMessage, len(s.messages))
		copy(snap.Messages, s.messages)
	}
	return snap
}
