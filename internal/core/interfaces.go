package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/loopgrid/loopgrid/internal/domain"
)

// CredentialClient requests a join credential from the external issuer.
// No internal state; a failed request is a hard failure for the join.
type CredentialClient interface {
	Credential(ctx context.Context, room domain.RoomName, identity string) (string, error)
}

// ConnectOptions are passed verbatim to the media router on dial.
// Reconnection and adaptive stream selection stay disabled for loops.
type ConnectOptions struct {
	ICEServers     []webrtc.ICEServer
	AutoReconnect  bool
	AdaptiveStream bool
}

// ConnEvents are the three backend subscriptions scoped to one
// connection. They stay registered until the connection is torn down.
type ConnEvents struct {
	OnData              func(payload []byte, senderID string)
	OnParticipantJoined func(identity string)
	OnParticipantLeft   func(identity string)
}

// MediaDialer opens connections to the media router.
// Owned by the adapter; the adapter must Disconnect() what it dials.
type MediaDialer interface {
	Dial(ctx context.Context, room domain.RoomName, credential string, opts ConnectOptions, ev ConnEvents) (MediaConn, error)
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackPublication is the backend handle of one published local track.
type TrackPublication interface {
	Kind() TrackKind
	IsMuted() bool
	SetMuted(ctx context.Context, muted bool) error
	// HasLiveStream reports whether media is still flowing behind the
	// handle. A publication can survive muted with no stream left.
	HasLiveStream() bool
	Close() error
}

// MediaConn is one live connection to the media router.
type MediaConn interface {
	PublishAudio(ctx context.Context) (TrackPublication, error)
	PublishVideo(ctx context.Context) (TrackPublication, error)

	// Backends expose publications through differently shaped
	// collections depending on version; all three are consulted by
	// the track resolver, in this order.
	AudioPublications() []TrackPublication
	PublishedTracks() []TrackPublication
	TrackPublications() []TrackPublication

	// SendData transmits a payload over the connection's data
	// side-channel to all other participants. No acknowledgment.
	SendData(ctx context.Context, payload []byte) error

	Disconnect() error
}

// VideoSurface is a rendering sink the presentation layer attaches to a
// loop. Bind must tolerate being called again with the same publication.
type VideoSurface interface {
	Bind(pub TrackPublication)
	Clear()
}
