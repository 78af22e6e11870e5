package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is the facade over one backend. It owns connection state, the
// stream mux, the lazily cached behavior catalogs and the bookkeeping for
// idempotent stop operations.
//
// All methods are safe for concurrent use. Concurrent Connect calls
// collapse to a single attempt; posture operations are serialized and a
// second one issued while the first is still resolving fails with ErrBusy.
type Session struct {
	backend Backend
	mux     *StreamMux

	mu          sync.Mutex
	state       State
	connectDone chan struct{}
	connectErr  error

	catalogs *Catalogs

	postureBusy bool

	activeDances      map[string]struct{}
	activeReactions   map[string]string // reaction type -> behavior name
	activeBodyActions map[string]struct{}
}

func NewSession(backend Backend) *Session {
	return &Session{
		backend:           backend,
		mux:               NewStreamMux(),
		activeDances:      make(map[string]struct{}),
		activeReactions:   make(map[string]string),
		activeBodyActions: make(map[string]struct{}),
	}
}

// Simulated reports whether the session drives a simulated backend.
func (s *Session) Simulated() bool {
	_, ok := s.backend.(*SimBackend)
	return ok
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the backend link. If an attempt is already in flight
// the caller waits for it and observes its outcome instead of starting a
// second one. After a fatal ConnectError the session stays Failed and every
// later Connect returns that same error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateFailed:
		err := s.connectErr
		s.mu.Unlock()
		return err
	case StateConnecting:
		done := s.connectDone
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.Lock()
			err := s.connectErr
			s.mu.Unlock()
			return err
		case <-ctx.Done():
			return &ConnectError{Err: ctx.Err()}
		}
	}

	done := make(chan struct{})
	s.state = StateConnecting
	s.connectDone = done
	s.connectErr = nil
	s.mu.Unlock()

	err := s.backend.Connect(ctx)

	s.mu.Lock()
	if err != nil {
		var cerr *ConnectError
		if errors.As(err, &cerr) && cerr.Fatal {
			s.state = StateFailed
		} else {
			s.state = StateDisconnected
		}
		s.connectErr = err
	} else {
		s.state = StateConnected
	}
	close(done)
	s.connectDone = nil
	s.mu.Unlock()

	return err
}

// Disconnect cancels all subscriptions and releases the backend link. It is
// a no-op on an already disconnected session. A Failed session stays Failed.
func (s *Session) Disconnect() error {
	for _, kind := range []StreamKind{StreamTouch, StreamJoints, StreamAudio} {
		s.backend.Unsubscribe(kind)
		s.mux.Remove(kind)
	}

	err := s.backend.Disconnect()

	s.mu.Lock()
	if s.state != StateFailed {
		s.state = StateDisconnected
	}
	s.catalogs = nil
	s.activeDances = make(map[string]struct{})
	s.activeReactions = make(map[string]string)
	s.activeBodyActions = make(map[string]struct{})
	s.mu.Unlock()

	return err
}

// Close disconnects and stops the stream mux. The session cannot be reused.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.mux.Close()
	return err
}

func (s *Session) checkConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// ---------- streams ---------- //

// Subscribe routes events of the given kind to consumer until Unsubscribe.
// Re-subscribing replaces the consumer.
func (s *Session) Subscribe(kind StreamKind, consumer Consumer) error {
	if err := s.checkConnected(); err != nil {
		return &SubscribeError{Kind: kind, Err: err}
	}
	s.mux.Set(kind, consumer)
	if err := s.backend.Subscribe(kind, s.mux.Deliver); err != nil {
		s.mux.Remove(kind)
		var serr *SubscribeError
		if errors.As(err, &serr) {
			return err
		}
		return &SubscribeError{Kind: kind, Err: err}
	}
	slog.Debug("Stream subscribed", "stream", kind.String())
	return nil
}

// Unsubscribe stops delivery for the given kind. After it returns no
// further events of that kind reach the consumer, even one in flight.
func (s *Session) Unsubscribe(kind StreamKind) {
	s.backend.Unsubscribe(kind)
	s.mux.Remove(kind)
	slog.Debug("Stream unsubscribed", "stream", kind.String())
}

// ---------- catalogs ---------- //

func (s *Session) loadCatalogs(ctx context.Context) (*Catalogs, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.catalogs != nil {
		c := s.catalogs
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	// Fetched outside the lock; a concurrent duplicate fetch is harmless
	// and last-write-wins on an identical catalog set.
	catalogs, err := s.backend.Catalogs(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.catalogs == nil {
		s.catalogs = catalogs
	}
	c := s.catalogs
	s.mu.Unlock()
	return c, nil
}

// DanceBehaviors returns the dance catalog, fetching it on first use.
func (s *Session) DanceBehaviors(ctx context.Context) ([]Behavior, error) {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	return c.Dances, nil
}

// ExpressiveReactionTypes returns the known reaction types.
func (s *Session) ExpressiveReactionTypes(ctx context.Context) ([]string, error) {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	return c.ReactionTypes(), nil
}

// BodyActionBehaviors returns the body-action catalog.
func (s *Session) BodyActionBehaviors(ctx context.Context) ([]Behavior, error) {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	return c.BodyActions, nil
}

// ---------- simple actions ---------- //

func (s *Session) invoke(ctx context.Context, action Action, params Params) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	_, err := s.backend.Invoke(ctx, action, params)
	return err
}

func (s *Session) SetTTSLanguage(ctx context.Context, language string) error {
	return s.invoke(ctx, ActionSetTTSLanguage, Params{"language": language})
}

func (s *Session) Say(ctx context.Context, text string) error {
	return s.invoke(ctx, ActionSay, Params{"text": text})
}

func (s *Session) StopSay(ctx context.Context) error {
	return s.invoke(ctx, ActionStopSay, nil)
}

func (s *Session) ChangeEyesColor(ctx context.Context, color string) error {
	return s.invoke(ctx, ActionChangeEyesColor, Params{"color": color})
}

func (s *Session) SetBasicAwarenessState(ctx context.Context, enabled bool, engagementMode, trackingMode string) error {
	return s.invoke(ctx, ActionSetBasicAwareness, Params{
		"enabled":        enabled,
		"engagementMode": engagementMode,
		"trackingMode":   trackingMode,
	})
}

func (s *Session) SetBreathingEnabled(ctx context.Context, enabled bool, chainName string) error {
	return s.invoke(ctx, ActionSetBreathing, Params{"enabled": enabled, "chainName": chainName})
}

// ---------- posture operations ---------- //

// postureOp serializes the motor-level posture commands. Interleaving two of
// them would send contradictory commands to the motors, so a second call
// while one is pending fails fast with ErrBusy.
func (s *Session) postureOp(ctx context.Context, action Action) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.postureBusy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.postureBusy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.postureBusy = false
		s.mu.Unlock()
	}()

	_, err := s.backend.Invoke(ctx, action, nil)
	return err
}

func (s *Session) WakeUp(ctx context.Context) error {
	return s.postureOp(ctx, ActionWakeUp)
}

func (s *Session) Rest(ctx context.Context) error {
	return s.postureOp(ctx, ActionRest)
}

func (s *Session) StandUp(ctx context.Context) error {
	return s.postureOp(ctx, ActionStandUp)
}

func (s *Session) SitDown(ctx context.Context) error {
	return s.postureOp(ctx, ActionSitDown)
}

// ---------- behaviors ---------- //

// RunBehavior starts a behavior by its full name and returns when it ends.
func (s *Session) RunBehavior(ctx context.Context, name string) error {
	return s.invoke(ctx, ActionRunBehavior, Params{"name": name})
}

// StopBehavior stops a running behavior by its full name.
func (s *Session) StopBehavior(ctx context.Context, name string) error {
	return s.invoke(ctx, ActionStopBehavior, Params{"name": name})
}

// Dance runs the dance with the given catalog id.
func (s *Session) Dance(ctx context.Context, danceID string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	behavior, ok := c.Dance(danceID)
	if !ok {
		return &ActionError{Action: ActionRunBehavior, Err: fmt.Errorf("unknown dance id %q", danceID)}
	}

	s.mu.Lock()
	s.activeDances[danceID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.activeDances, danceID)
		s.mu.Unlock()
	}()

	return s.RunBehavior(ctx, behavior.BehaviorName)
}

// StopDance stops the dance with the given catalog id. Stopping a dance
// that is not running is a no-op success.
func (s *Session) StopDance(ctx context.Context, danceID string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	behavior, ok := c.Dance(danceID)
	if !ok {
		return &ActionError{Action: ActionStopBehavior, Err: fmt.Errorf("unknown dance id %q", danceID)}
	}

	s.mu.Lock()
	_, running := s.activeDances[danceID]
	delete(s.activeDances, danceID)
	s.mu.Unlock()
	if !running {
		return nil
	}

	return s.StopBehavior(ctx, behavior.BehaviorName)
}

// ExpressiveReaction runs one of the behaviors registered for the reaction
// type. The concrete behavior is chosen deterministically (first entry).
func (s *Session) ExpressiveReaction(ctx context.Context, reactionType string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	behaviors, ok := c.Reactions[reactionType]
	if !ok {
		return &ActionError{Action: ActionRunBehavior, Err: fmt.Errorf("unknown reaction type %q", reactionType)}
	}
	if len(behaviors) == 0 {
		return &ActionError{Action: ActionRunBehavior, Err: fmt.Errorf("no behaviors for reaction type %q", reactionType)}
	}
	behavior := behaviors[0]

	s.mu.Lock()
	s.activeReactions[reactionType] = behavior.BehaviorName
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.activeReactions, reactionType)
		s.mu.Unlock()
	}()

	return s.RunBehavior(ctx, behavior.BehaviorName)
}

// StopExpressiveReaction stops a running reaction of the given type; a
// reaction that is not running is a no-op success.
func (s *Session) StopExpressiveReaction(ctx context.Context, reactionType string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	if _, ok := c.Reactions[reactionType]; !ok {
		return &ActionError{Action: ActionStopBehavior, Err: fmt.Errorf("unknown reaction type %q", reactionType)}
	}

	s.mu.Lock()
	behaviorName, running := s.activeReactions[reactionType]
	delete(s.activeReactions, reactionType)
	s.mu.Unlock()
	if !running {
		return nil
	}

	return s.StopBehavior(ctx, behaviorName)
}

// BodyAction runs the body action with the given catalog id.
func (s *Session) BodyAction(ctx context.Context, bodyActionID string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	behavior, ok := c.BodyAction(bodyActionID)
	if !ok {
		return &ActionError{Action: ActionRunBehavior, Err: fmt.Errorf("unknown body action id %q", bodyActionID)}
	}

	s.mu.Lock()
	s.activeBodyActions[bodyActionID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.activeBodyActions, bodyActionID)
		s.mu.Unlock()
	}()

	return s.RunBehavior(ctx, behavior.BehaviorName)
}

// StopBodyAction stops the body action with the given catalog id; one that
// is not running is a no-op success.
func (s *Session) StopBodyAction(ctx context.Context, bodyActionID string) error {
	c, err := s.loadCatalogs(ctx)
	if err != nil {
		return err
	}
	behavior, ok := c.BodyAction(bodyActionID)
	if !ok {
		return &ActionError{Action: ActionStopBehavior, Err: fmt.Errorf("unknown body action id %q", bodyActionID)}
	}

	s.mu.Lock()
	_, running := s.activeBodyActions[bodyActionID]
	delete(s.activeBodyActions, bodyActionID)
	s.mu.Unlock()
	if !running {
		return nil
	}

	return s.StopBehavior(ctx, behavior.BehaviorName)
}
