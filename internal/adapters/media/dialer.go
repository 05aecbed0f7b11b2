// Package media connects loop sessions to the media router: a pion
// PeerConnection for tracks and data, a websocket for signaling.
package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/core"
	"github.com/loopgrid/loopgrid/internal/domain"
)

const answerTimeout = 15 * time.Second

// Dialer opens one connection per Dial. Reconnection is deliberately
// absent: loops run with auto-reconnect disabled, a dropped connection
// stays dropped until the user rejoins.
type Dialer struct {
	// BaseURL is the router's signaling endpoint, e.g. "ws://host:7880".
	BaseURL string
}

func NewDialer(baseURL string) *Dialer {
	return &Dialer{BaseURL: baseURL}
}

func (d *Dialer) Dial(ctx context.Context, room domain.RoomName, credential string, opts core.ConnectOptions, ev core.ConnEvents) (core.MediaConn, error) {
	endpoint := fmt.Sprintf("%s/rtc?room=%s&access_token=%s",
		d.BaseURL, url.QueryEscape(string(room)), url.QueryEscape(credential))

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling dial: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	c := newConn(string(room), ws, pc, ev)

	if err := c.start(ctx); err != nil {
		c.teardown()
		return nil, err
	}
	log.Info().Str("module", "media").Str("room", string(room)).Msg("connected")
	return c, nil
}
