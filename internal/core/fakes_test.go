package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopgrid/loopgrid/internal/domain"
)

type fakeCreds struct {
	err   error
	calls int32
	// block, when set, holds Credential until released.
	block chan struct{}
}

func (f *fakeCreds) Credential(ctx context.Context, room domain.RoomName, identity string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	return "tok-" + string(room), nil
}

type fakePub struct {
	kind TrackKind

	mu          sync.Mutex
	muted       bool
	live        bool
	closed      bool
	setMutedErr error
	muteCalls   int
}

func newFakePub(kind TrackKind) *fakePub {
	return &fakePub{kind: kind, live: true}
}

func (p *fakePub) Kind() TrackKind { return p.kind }

func (p *fakePub) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *fakePub) SetMuted(ctx context.Context, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muteCalls++
	if p.setMutedErr != nil {
		return p.setMutedErr
	}
	p.muted = muted
	return nil
}

func (p *fakePub) HasLiveStream() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live && !p.closed
}

func (p *fakePub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePub) setLive(live bool) {
	p.mu.Lock()
	p.live = live
	p.mu.Unlock()
}

func (p *fakePub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConn struct {
	ev ConnEvents

	mu            sync.Mutex
	pubs          []*fakePub
	publishAudioN int
	publishVideoN int
	audioErr      error
	videoErr      error
	disconnects   int
	disconnectErr error
	sent          [][]byte
	sendErr       error
	hideTracks    bool
}

func (c *fakeConn) PublishAudio(ctx context.Context) (TrackPublication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishAudioN++
	if c.audioErr != nil {
		return nil, c.audioErr
	}
	pub := newFakePub(TrackAudio)
	c.pubs = append(c.pubs, pub)
	return pub, nil
}

func (c *fakeConn) PublishVideo(ctx context.Context) (TrackPublication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishVideoN++
	if c.videoErr != nil {
		return nil, c.videoErr
	}
	pub := newFakePub(TrackVideo)
	c.pubs = append(c.pubs, pub)
	return pub, nil
}

func (c *fakeConn) all() []TrackPublication {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hideTracks {
		return nil
	}
	out := make([]TrackPublication, len(c.pubs))
	for i, p := range c.pubs {
		out[i] = p
	}
	return out
}

func (c *fakeConn) AudioPublications() []TrackPublication { return nil }
func (c *fakeConn) PublishedTracks() []TrackPublication   { return nil }
func (c *fakeConn) TrackPublications() []TrackPublication { return c.all() }

func (c *fakeConn) SendData(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.disconnectErr
}

func (c *fakeConn) disconnected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeConn) audioPub() *fakePub { return c.pubOf(TrackAudio) }
func (c *fakeConn) videoPub() *fakePub { return c.pubOf(TrackVideo) }

func (c *fakeConn) pubOf(kind TrackKind) *fakePub {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pubs {
		if p.kind == kind {
			return p
		}
	}
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dialErr error
	// block, when set, holds Dial until released.
	block   chan struct{}
	prepare func(*fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, room domain.RoomName, credential string, opts ConnectOptions, ev ConnEvents) (MediaConn, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	conn := &fakeConn{ev: ev}
	if d.prepare != nil {
		d.prepare(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeSurface struct {
	mu     sync.Mutex
	binds  int
	clears int
	bound  TrackPublication
}

func (s *fakeSurface) Bind(pub TrackPublication) {
	s.mu.Lock()
	s.binds++
	s.bound = pub
	s.mu.Unlock()
}

func (s *fakeSurface) Clear() {
	s.mu.Lock()
	s.clears++
	s.bound = nil
	s.mu.Unlock()
}

func testDeps(creds *fakeCreds, dialer *fakeDialer) SessionDeps {
	return SessionDeps{
		Creds:       creds,
		Dialer:      dialer,
		SettleDelay: 1,
		Sleep:       func(d time.Duration) {},
	}
}
