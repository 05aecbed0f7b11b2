package app

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ControlChange identifies which global control moved.
type ControlChange int

const (
	ControlMic ControlChange = iota
	ControlSpeaker
	ControlVideo
	ControlDrop
)

func (c ControlChange) String() string {
	switch c {
	case ControlMic:
		return "mic"
	case ControlSpeaker:
		return "speaker"
	case ControlVideo:
		return "video"
	case ControlDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// GlobalControls is the process-wide control surface: three independent
// toggles plus a strictly increasing drop generation. The only writers
// are user actions; observers react, they never write back.
type GlobalControls struct {
	mu           sync.Mutex
	micMuted     bool
	speakerMuted bool
	videoEnabled bool
	dropGen      uint64
	observer     func(ControlChange)
}

func NewGlobalControls() *GlobalControls {
	return &GlobalControls{videoEnabled: true}
}

// Observe registers the single reconciliation observer. Changes before
// registration are not replayed.
func (g *GlobalControls) Observe(fn func(ControlChange)) {
	g.mu.Lock()
	g.observer = fn
	g.mu.Unlock()
}

func (g *GlobalControls) notify(c ControlChange) {
	g.mu.Lock()
	fn := g.observer
	g.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (g *GlobalControls) SetMicMuted(muted bool) {
	g.mu.Lock()
	changed := g.micMuted != muted
	g.micMuted = muted
	g.mu.Unlock()
	if changed {
		log.Info().Str("module", "app.controls").Bool("muted", muted).Msg("global mic")
		g.notify(ControlMic)
	}
}

func (g *GlobalControls) SetSpeakerMuted(muted bool) {
	g.mu.Lock()
	changed := g.speakerMuted != muted
	g.speakerMuted = muted
	g.mu.Unlock()
	if changed {
		log.Info().Str("module", "app.controls").Bool("muted", muted).Msg("global speaker")
		g.notify(ControlSpeaker)
	}
}

func (g *GlobalControls) SetVideoEnabled(enabled bool) {
	g.mu.Lock()
	changed := g.videoEnabled != enabled
	g.videoEnabled = enabled
	g.mu.Unlock()
	if changed {
		log.Info().Str("module", "app.controls").Bool("enabled", enabled).Msg("global video")
		g.notify(ControlVideo)
	}
}

// Drop bumps the drop generation. Every increment triggers a full-pool
// teardown, even back to back.
func (g *GlobalControls) Drop() {
	g.mu.Lock()
	g.dropGen++
	gen := g.dropGen
	g.mu.Unlock()
	log.Info().Str("module", "app.controls").Uint64("generation", gen).Msg("drop all")
	g.notify(ControlDrop)
}

func (g *GlobalControls) MicMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.micMuted
}

func (g *GlobalControls) SpeakerMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speakerMuted
}

func (g *GlobalControls) VideoEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.videoEnabled
}

func (g *GlobalControls) DropGeneration() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropGen
}
