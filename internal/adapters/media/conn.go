package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// envelope is the signaling wire format shared with the router.
type envelope struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	SDPMid    string `json:"sdpMid,omitempty"`
	Kind      string `json:"kind,omitempty"`
	TrackID   string `json:"trackId,omitempty"`
	Muted     bool   `json:"muted,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	Identity  string `json:"identity,omitempty"`
}

// conn is one live connection to the router. It owns the websocket,
// the peer connection and the chat data channel, and must teardown()
// all of them on Disconnect.
type conn struct {
	room string
	ws   *websocket.Conn
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	ev   core.ConnEvents

	send     chan []byte
	answerCh chan webrtc.SessionDescription
	cancel   context.CancelFunc

	mu     sync.RWMutex
	pubs   []core.TrackPublication
	closed bool
}

func newConn(room string, ws *websocket.Conn, pc *webrtc.PeerConnection, ev core.ConnEvents) *conn {
	return &conn{
		room:     room,
		ws:       ws,
		pc:       pc,
		ev:       ev,
		send:     make(chan []byte, 32),
		answerCh: make(chan webrtc.SessionDescription, 1),
	}
}

// start wires callbacks, runs the offer/answer exchange and launches
// the pumps. The connection is usable once start returns nil.
func (c *conn) start(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "media").Str("room", c.room).Str("ice_state", s.String()).Msg("ICE state")
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "media").Str("room", c.room).Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		env := envelope{Type: "candidate", Candidate: init.Candidate}
		if init.SDPMid != nil {
			env.SDPMid = *init.SDPMid
		}
		c.sendJSON(env)
	})

	dc, err := c.pc.CreateDataChannel("chat", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.ev.OnData != nil {
			c.ev.OnData(msg.Data, "")
		}
	})
	c.dc = dc

	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	if err := c.sendJSON(envelope{Type: "offer", SDP: c.pc.LocalDescription().SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	select {
	case answer := <-c.answerCh:
		if err := c.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
	case <-time.After(answerTimeout):
		return errors.New("timed out waiting for answer")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *conn) readPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if !c.isClosed() {
					log.Warn().Err(err).Str("module", "media").Str("room", c.room).Msg("readPump read error")
				}
				return
			}
			c.handleSignal(data)
		}
	}
}

func (c *conn) handleSignal(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "media").Msg("bad signal json")
		return
	}
	switch env.Type {
	case "answer":
		select {
		case c.answerCh <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}:
		default:
		}
	case "candidate":
		cand := webrtc.ICECandidateInit{Candidate: env.Candidate}
		if env.SDPMid != "" {
			cand.SDPMid = &env.SDPMid
		}
		if err := c.pc.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("add ice candidate")
		}
	case "data":
		if c.ev.OnData != nil {
			c.ev.OnData(env.Payload, env.Identity)
		}
	case "participant-joined":
		if c.ev.OnParticipantJoined != nil {
			c.ev.OnParticipantJoined(env.Identity)
		}
	case "participant-left":
		if c.ev.OnParticipantLeft != nil {
			c.ev.OnParticipantLeft(env.Identity)
		}
	case "pong":
	default:
		log.Warn().Str("module", "media").Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *conn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Msg("sendJSON marshal")
		return err
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		log.Warn().Str("module", "media").Str("room", c.room).Msg("signal dropped: backpressure")
		return ErrBackpressure
	}
}

func (c *conn) PublishAudio(ctx context.Context) (core.TrackPublication, error) {
	return c.publish(ctx, core.TrackAudio, webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
	})
}

func (c *conn) PublishVideo(ctx context.Context) (core.TrackPublication, error) {
	return c.publish(ctx, core.TrackVideo, webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
	})
}

func (c *conn) publish(_ context.Context, kind core.TrackKind, codec webrtc.RTPCodecCapability) (core.TrackPublication, error) {
	if c.isClosed() {
		return nil, errors.New("connection closed")
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, string(kind), "loopgrid-"+c.room)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add %s track: %w", kind, err)
	}
	pub := newPublication(c, kind, track, sender)

	c.mu.Lock()
	c.pubs = append(c.pubs, pub)
	c.mu.Unlock()

	if err := c.sendJSON(envelope{Type: "publish", Kind: string(kind), TrackID: track.ID()}); err != nil {
		c.removePublication(pub)
		_ = c.pc.RemoveTrack(sender)
		return nil, fmt.Errorf("announce %s track: %w", kind, err)
	}
	log.Info().Str("module", "media").Str("room", c.room).Str("kind", string(kind)).Msg("track published")
	return pub, nil
}

// The router has exposed local publications through three collection
// shapes across versions; all are served from the same slice here so
// any resolver order finds the tracks.
func (c *conn) AudioPublications() []core.TrackPublication { return c.pubsOfKind(core.TrackAudio) }
func (c *conn) PublishedTracks() []core.TrackPublication   { return c.pubsOfKind("") }
func (c *conn) TrackPublications() []core.TrackPublication { return c.pubsOfKind("") }

func (c *conn) pubsOfKind(kind core.TrackKind) []core.TrackPublication {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.TrackPublication, 0, len(c.pubs))
	for _, p := range c.pubs {
		if kind == "" || p.Kind() == kind {
			out = append(out, p)
		}
	}
	return out
}

// SendData transmits over the chat data channel, falling back to the
// signaling socket while the channel is still opening.
func (c *conn) SendData(_ context.Context, payload []byte) error {
	if c.isClosed() {
		return errors.New("connection closed")
	}
	if c.dc != nil && c.dc.ReadyState() == webrtc.DataChannelStateOpen {
		return c.dc.Send(payload)
	}
	return c.sendJSON(envelope{Type: "data", Payload: payload})
}

func (c *conn) removePublication(pub core.TrackPublication) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pubs {
		if p == pub {
			c.pubs = append(c.pubs[:i], c.pubs[i+1:]...)
			return
		}
	}
}

func (c *conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *conn) connected() bool {
	return !c.isClosed() && c.pc.ConnectionState() == webrtc.PeerConnectionStateConnected
}

func (c *conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	err := c.pc.Close()
	if wsErr := c.ws.Close(); err == nil {
		err = wsErr
	}
	log.Info().Str("module", "media").Str("room", c.room).Msg("disconnected")
	return err
}

// teardown closes without the idempotency bookkeeping, for dial
// failures before the conn was handed out.
func (c *conn) teardown() {
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.pc.Close()
	_ = c.ws.Close()
}
