package robot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Default cadences of the synthetic streams. The joints period matches the
// polling period used against real hardware.
const (
	simConnectDelay   = 50 * time.Millisecond
	simActionDelay    = 10 * time.Millisecond
	simJointsInterval = 200 * time.Millisecond
	simAudioInterval  = 250 * time.Millisecond

	simAudioRate              = 16000
	simAudioChannels          = 1
	simAudioSamplesPerChannel = 4096
)

var simJointNames = []string{
	"HeadYaw", "HeadPitch",
	"LShoulderPitch", "LShoulderRoll", "LElbowYaw", "LElbowRoll",
	"RShoulderPitch", "RShoulderRoll", "RElbowYaw", "RElbowRoll",
	"LHipPitch", "LKneePitch", "RHipPitch", "RKneePitch",
}

// SimBackend implements Backend without hardware. Connect succeeds after a
// short deterministic delay, actions return synthesized success payloads and
// subscriptions emit periodic synthetic frames.
type SimBackend struct {
	mu        sync.Mutex
	connected bool
	delivery  map[StreamKind]func(StreamEvent)
	stoppers  map[StreamKind]chan struct{}

	jointsInterval time.Duration
	audioInterval  time.Duration
}

func NewSimBackend() *SimBackend {
	return &SimBackend{
		delivery:       make(map[StreamKind]func(StreamEvent)),
		stoppers:       make(map[StreamKind]chan struct{}),
		jointsInterval: simJointsInterval,
		audioInterval:  simAudioInterval,
	}
}

// SetStreamIntervals overrides the synthetic emission cadence. Used by tests
// to keep them fast; must be called before Subscribe.
func (b *SimBackend) SetStreamIntervals(joints, audio time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jointsInterval = joints
	b.audioInterval = audio
}

func (b *SimBackend) Connect(ctx context.Context) error {
	select {
	case <-time.After(simConnectDelay):
	case <-ctx.Done():
		return &ConnectError{Err: ctx.Err()}
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	slog.Info("Simulated robot connected")
	return nil
}

func (b *SimBackend) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	stoppers := b.stoppers
	b.stoppers = make(map[StreamKind]chan struct{})
	b.delivery = make(map[StreamKind]func(StreamEvent))
	b.mu.Unlock()

	for _, stop := range stoppers {
		close(stop)
	}
	slog.Info("Simulated robot disconnected")
	return nil
}

func (b *SimBackend) Invoke(ctx context.Context, action Action, params Params) (any, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	select {
	case <-time.After(simActionDelay):
	case <-ctx.Done():
		return nil, &ActionError{Action: action, Err: ctx.Err()}
	}
	slog.Debug("Simulated action executed", "action", string(action), "params", fmt.Sprint(params))
	return nil, nil
}

func (b *SimBackend) Catalogs(ctx context.Context) (*Catalogs, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return simCatalogs(), nil
}

func (b *SimBackend) Subscribe(kind StreamKind, deliver func(StreamEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return &SubscribeError{Kind: kind, Err: ErrNotConnected}
	}
	if stop, ok := b.stoppers[kind]; ok {
		close(stop)
		delete(b.stoppers, kind)
	}
	b.delivery[kind] = deliver

	switch kind {
	case StreamJoints:
		stop := make(chan struct{})
		b.stoppers[kind] = stop
		go b.jointsLoop(deliver, stop)
	case StreamAudio:
		stop := make(chan struct{})
		b.stoppers[kind] = stop
		go b.audioLoop(deliver, stop)
	case StreamTouch:
		// Touch events only occur via EmitTouch; nothing to run.
	}
	return nil
}

func (b *SimBackend) Unsubscribe(kind StreamKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if stop, ok := b.stoppers[kind]; ok {
		close(stop)
		delete(b.stoppers, kind)
	}
	delete(b.delivery, kind)
}

// EmitTouch injects a synthetic tactile event, standing in for a real sensor
// transition.
func (b *SimBackend) EmitTouch(part string, touched bool) {
	b.mu.Lock()
	deliver := b.delivery[StreamTouch]
	b.mu.Unlock()
	if deliver != nil {
		deliver(StreamEvent{Kind: StreamTouch, Touch: &TouchEvent{Part: part, Touched: touched}})
	}
}

func (b *SimBackend) jointsLoop(deliver func(StreamEvent), stop chan struct{}) {
	b.mu.Lock()
	interval := b.jointsInterval
	b.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			angles := make([]float64, len(simJointNames))
			for i := range angles {
				angles[i] = 0.1 * math.Sin(float64(tick)*0.1+float64(i))
			}
			tick++
			deliver(StreamEvent{Kind: StreamJoints, Joints: &JointsFrame{
				Names:  simJointNames,
				Angles: angles,
			}})
		}
	}
}

func (b *SimBackend) audioLoop(deliver func(StreamEvent), stop chan struct{}) {
	b.mu.Lock()
	interval := b.audioInterval
	b.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Silence; consumers only care about framing, not content.
			deliver(StreamEvent{Kind: StreamAudio, Audio: &AudioFrame{
				Rate:              simAudioRate,
				Channels:          simAudioChannels,
				SamplesPerChannel: simAudioSamplesPerChannel,
				Data:              make([]byte, simAudioSamplesPerChannel*2),
			}})
		}
	}
}
