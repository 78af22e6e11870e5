package robot

import (
	"context"
)

// Action identifies a robot operation executed through Backend.Invoke.
type Action string

const (
	ActionSetTTSLanguage    Action = "SetTTSLanguage"
	ActionSay               Action = "Say"
	ActionStopSay           Action = "StopSay"
	ActionWakeUp            Action = "WakeUp"
	ActionRest              Action = "Rest"
	ActionStandUp           Action = "StandUp"
	ActionSitDown           Action = "SitDown"
	ActionChangeEyesColor   Action = "ChangeEyesColor"
	ActionSetBasicAwareness Action = "SetBasicAwareness"
	ActionSetBreathing      Action = "SetBreathing"
	ActionRunBehavior       Action = "RunBehavior"
	ActionStopBehavior      Action = "StopBehavior"
)

// Params carries the named arguments of an action.
type Params map[string]any

// StreamKind identifies one of the robot's event sources.
type StreamKind int

const (
	StreamTouch StreamKind = iota
	StreamJoints
	StreamAudio
)

func (k StreamKind) String() string {
	switch k {
	case StreamTouch:
		return "touch"
	case StreamJoints:
		return "joints"
	case StreamAudio:
		return "audio"
	}
	return "unknown"
}

// TouchEvent is a discrete tactile sensor transition.
type TouchEvent struct {
	Part    string
	Touched bool
}

// JointsFrame is a periodic snapshot of joint angles. Names and Angles have
// the same length and order.
type JointsFrame struct {
	Names  []string
	Angles []float64
}

// AudioFrame is one captured microphone buffer. Data is an opaque PCM
// payload; this package never inspects it.
type AudioFrame struct {
	Rate              int
	Channels          int
	SamplesPerChannel int
	Data              []byte
}

// StreamEvent is a tagged union over the three event payloads. Exactly one
// of Touch, Joints, Audio is non-nil, matching Kind.
type StreamEvent struct {
	Kind   StreamKind
	Touch  *TouchEvent
	Joints *JointsFrame
	Audio  *AudioFrame
}

// Consumer receives stream events. It is called from a delivery goroutine
// owned by the StreamMux, never concurrently for the same stream kind.
type Consumer func(StreamEvent)

// Backend is the capability set a robot link must provide. LiveBackend talks
// to real hardware, SimBackend synthesizes everything; callers cannot tell
// them apart by contract.
//
// Connect/Invoke/Catalogs suspend the caller and honor ctx cancellation.
// Subscribe registers deliver for a stream kind; the backend emits events at
// the source's natural cadence until Unsubscribe or Disconnect. Disconnect
// releases the underlying link on every path and is safe to call twice.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Invoke(ctx context.Context, action Action, params Params) (any, error)
	Catalogs(ctx context.Context) (*Catalogs, error)
	Subscribe(kind StreamKind, deliver func(StreamEvent)) error
	Unsubscribe(kind StreamKind)
}
