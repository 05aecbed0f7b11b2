package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/loopgrid/loopgrid/internal/core"
)

// publication is the backend handle of one published local track. The
// mute bit lives router-side; flipping it sends a mute signal and the
// local flag mirrors the last acknowledged intent.
type publication struct {
	conn   *conn
	kind   core.TrackKind
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender

	mu     sync.Mutex
	muted  bool
	closed bool
}

func newPublication(c *conn, kind core.TrackKind, track *webrtc.TrackLocalStaticSample, sender *webrtc.RTPSender) *publication {
	return &publication{conn: c, kind: kind, track: track, sender: sender}
}

func (p *publication) Kind() core.TrackKind { return p.kind }

func (p *publication) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *publication) SetMuted(_ context.Context, muted bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return webrtc.ErrConnectionClosed
	}
	p.mu.Unlock()

	// The local flag follows only a queued envelope; a dropped mute must
	// not leave state claiming an intent the router never saw.
	if err := p.conn.sendJSON(envelope{Type: "mute", Kind: string(p.kind), TrackID: p.track.ID(), Muted: muted}); err != nil {
		return fmt.Errorf("send mute: %w", err)
	}

	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	return nil
}

// HasLiveStream reports whether media can still flow behind the
// handle: the sender must be attached and the peer connected.
func (p *publication) HasLiveStream() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	return p.sender.Track() != nil && p.conn.connected()
}

func (p *publication) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.conn.removePublication(p)
	if p.conn.isClosed() {
		return nil
	}
	return p.conn.pc.RemoveTrack(p.sender)
}
