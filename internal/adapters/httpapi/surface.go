package httpapi

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/core"
)

// Surface is a rendering sink placeholder for a headless deployment:
// actual pixels are drawn browser-side, the surface only tracks which
// publication is currently bound so re-binds after unmute are visible
// in logs and state.
type Surface struct {
	name string

	mu    sync.Mutex
	bound core.TrackPublication
}

func NewSurface(name string) *Surface {
	return &Surface{name: name}
}

func (s *Surface) Bind(pub core.TrackPublication) {
	s.mu.Lock()
	rebind := s.bound == pub
	s.bound = pub
	s.mu.Unlock()
	log.Debug().Str("module", "httpapi.surface").Str("surface", s.name).Bool("rebind", rebind).Msg("stream bound")
}

func (s *Surface) Clear() {
	s.mu.Lock()
	s.bound = nil
	s.mu.Unlock()
	log.Debug().Str("module", "httpapi.surface").Str("surface", s.name).Msg("stream cleared")
}

// Bound reports whether a stream is currently attached.
func (s *Surface) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound != nil
}
