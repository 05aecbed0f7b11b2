package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type RoomName string

// Phase is a loop's lifecycle state. Idle is initial and terminal-after-leave.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseJoining
	PhaseJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// RoomForSlot derives the backend room name for a loop slot.
// Stable per slot, so a rejoin lands in the same room.
func RoomForSlot(slot int) RoomName {
	return RoomName(fmt.Sprintf("loop-%d", slot+1))
}

// NewIdentity generates the opaque per-join participant identity.
func NewIdentity() string {
	return "user-" + uuid.NewString()[:8]
}

// LoopSnapshot is a read-only view of one loop slot (no transport fields).
type LoopSnapshot struct {
	Slot             int           `json:"slot"`
	Phase            string        `json:"phase"`
	Room             string        `json:"room"`
	Identity         string        `json:"identity,omitempty"`
	MicMuted         bool          `json:"micMuted"`
	AudioOutputMuted bool          `json:"audioOutputMuted"`
	VideoEnabled     bool          `json:"videoEnabled"`
	Participants     []string      `json:"participants,omitempty"`
	Messages         []ChatMessage `json:"messages,omitempty"`
}
