package app

import (
	"context"
	"sync"
	"time"

	"github.com/loopgrid/loopgrid/internal/core"
	"github.com/loopgrid/loopgrid/internal/domain"
)

type fakeCreds struct{}

func (fakeCreds) Credential(ctx context.Context, room domain.RoomName, identity string) (string, error) {
	return "tok", nil
}

type fakePub struct {
	kind core.TrackKind

	mu        sync.Mutex
	muted     bool
	live      bool
	muteCalls int
}

func (p *fakePub) Kind() core.TrackKind { return p.kind }

func (p *fakePub) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *fakePub) SetMuted(ctx context.Context, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muteCalls++
	p.muted = muted
	return nil
}

func (p *fakePub) HasLiveStream() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *fakePub) Close() error { return nil }

func (p *fakePub) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muteCalls
}

type fakeConn struct {
	mu            sync.Mutex
	pubs          []*fakePub
	videoN        int
	disconnects   int
	disconnectErr error
}

func (c *fakeConn) PublishAudio(ctx context.Context) (core.TrackPublication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pub := &fakePub{kind: core.TrackAudio, live: true}
	c.pubs = append(c.pubs, pub)
	return pub, nil
}

func (c *fakeConn) PublishVideo(ctx context.Context) (core.TrackPublication, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoN++
	pub := &fakePub{kind: core.TrackVideo, live: true}
	c.pubs = append(c.pubs, pub)
	return pub, nil
}

func (c *fakeConn) AudioPublications() []core.TrackPublication { return c.ofKind(core.TrackAudio) }
func (c *fakeConn) PublishedTracks() []core.TrackPublication   { return c.ofKind("") }
func (c *fakeConn) TrackPublications() []core.TrackPublication { return c.ofKind("") }

func (c *fakeConn) ofKind(kind core.TrackKind) []core.TrackPublication {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.TrackPublication, 0, len(c.pubs))
	for _, p := range c.pubs {
		if kind == "" || p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeConn) SendData(ctx context.Context, payload []byte) error { return nil }

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

func (c *fakeConn) pubOf(kind core.TrackKind) *fakePub {
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
	block   chan struct{}
	prepare func(*fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, room domain.RoomName, credential string, opts core.ConnectOptions, ev core.ConnEvents) (core.MediaConn, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := &fakeConn{}
	if d.prepare != nil {
		d.prepare(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func testDeps(dialer *fakeDialer) core.SessionDeps {
	return core.SessionDeps{
		Creds:       fakeCreds{},
		Dialer:      dialer,
		SettleDelay: 1,
		Sleep:       func(d time.Duration) {},
	}
}
