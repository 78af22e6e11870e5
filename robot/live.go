package robot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	liveDialTimeout  = 5 * time.Second
	liveCallTimeout  = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
)

// Wire format of the robot-link gateway: newline-delimited JSON, one object
// per line. Calls carry an id and are answered with the same id; event lines
// have no id and carry a stream name instead.
type liveRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params Params `json:"params,omitempty"`
}

type liveResponse struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Stream string          `json:"stream,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// LiveBackend drives a physical robot through its link gateway. A failed
// handshake is fatal for the whole process lifetime (known instability of
// the underlying link runtime: once its initialization fails it stays
// broken until restart) and is reported as ConnectError{Fatal: true}.
type LiveBackend struct {
	host string
	port int

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	pending   map[string]chan liveResponse
	delivery  map[StreamKind]func(StreamEvent)
	linkErr   error
}

func NewLiveBackend(host string, port int) *LiveBackend {
	return &LiveBackend{
		host:     host,
		port:     port,
		pending:  make(map[string]chan liveResponse),
		delivery: make(map[StreamKind]func(StreamEvent)),
	}
}

func (b *LiveBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	addr := net.JoinHostPort(b.host, fmt.Sprint(b.port))
	slog.Info("Connecting to robot link", "addr", addr)

	dialer := net.Dialer{Timeout: liveDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectError{Err: err}
	}

	b.mu.Lock()
	b.conn = conn
	b.connected = true
	b.linkErr = nil
	b.mu.Unlock()

	go b.readLoop(conn)

	// The gateway answers the handshake only when its link runtime came up
	// cleanly. A handshake error means the runtime is wedged and the whole
	// process must be restarted before another attempt can succeed.
	if _, err := b.call(ctx, "session.init", nil); err != nil {
		b.teardown(err)
		return &ConnectError{Fatal: true, Err: err}
	}

	slog.Info("Robot link established", "addr", addr)
	return nil
}

func (b *LiveBackend) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	// Best effort; the gateway also cleans up on socket close.
	ctx, cancel := context.WithTimeout(context.Background(), liveWriteTimeout)
	_, _ = b.call(ctx, "session.close", nil)
	cancel()

	b.teardown(errors.New("disconnected"))
	return nil
}

func (b *LiveBackend) Invoke(ctx context.Context, action Action, params Params) (any, error) {
	result, err := b.call(ctx, "action."+string(action), params)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, ErrNotConnected
		}
		return nil, &ActionError{Action: action, Err: err}
	}
	if len(result) == 0 {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, &ActionError{Action: action, Err: err}
	}
	return payload, nil
}

func (b *LiveBackend) Catalogs(ctx context.Context) (*Catalogs, error) {
	result, err := b.call(ctx, "behaviors.list", nil)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Dances      []Behavior            `json:"dances"`
		Reactions   map[string][]Behavior `json:"reactions"`
		BodyActions []Behavior            `json:"bodyActions"`
	}
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("decoding behavior catalogs: %w", err)
	}
	return &Catalogs{Dances: wire.Dances, Reactions: wire.Reactions, BodyActions: wire.BodyActions}, nil
}

func (b *LiveBackend) Subscribe(kind StreamKind, deliver func(StreamEvent)) error {
	ctx, cancel := context.WithTimeout(context.Background(), liveCallTimeout)
	defer cancel()

	if _, err := b.call(ctx, "stream.subscribe", Params{"stream": kind.String()}); err != nil {
		return &SubscribeError{Kind: kind, Err: err}
	}
	b.mu.Lock()
	b.delivery[kind] = deliver
	b.mu.Unlock()
	return nil
}

func (b *LiveBackend) Unsubscribe(kind StreamKind) {
	b.mu.Lock()
	delete(b.delivery, kind)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), liveWriteTimeout)
	defer cancel()
	if _, err := b.call(ctx, "stream.unsubscribe", Params{"stream": kind.String()}); err != nil {
		slog.Warn("Failed to unsubscribe from stream", "stream", kind.String(), "error", err)
	}
}

// call sends one request and waits for its correlated response.
func (b *LiveBackend) call(ctx context.Context, method string, params Params) (json.RawMessage, error) {
	b.mu.Lock()
	if !b.connected {
		err := b.linkErr
		b.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrNotConnected
	}
	conn := b.conn
	id := uuid.NewString()
	ch := make(chan liveResponse, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	line, err := json.Marshal(liveRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if _, err := conn.Write(line); err != nil {
		b.teardown(err)
		return nil, fmt.Errorf("robot link write: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *LiveBackend) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var resp liveResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			slog.Warn("Invalid JSON line from robot link", "error", err)
			continue
		}

		if resp.Stream != "" {
			b.dispatchEvent(resp)
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[resp.ID]
		b.mu.Unlock()
		if ok {
			ch <- resp
		} else {
			slog.Debug("Response with no pending call", "id", resp.ID)
		}
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("robot link closed")
	}
	b.teardown(err)
}

func (b *LiveBackend) dispatchEvent(resp liveResponse) {
	var kind StreamKind
	switch resp.Stream {
	case "touch":
		kind = StreamTouch
	case "joints":
		kind = StreamJoints
	case "audio":
		kind = StreamAudio
	default:
		slog.Warn("Unknown stream in event line", "stream", resp.Stream)
		return
	}

	b.mu.Lock()
	deliver := b.delivery[kind]
	b.mu.Unlock()
	if deliver == nil {
		return
	}

	ev := StreamEvent{Kind: kind}
	var decodeErr error
	switch kind {
	case StreamTouch:
		var p struct {
			Part    string `json:"part"`
			Touched bool   `json:"touched"`
		}
		decodeErr = json.Unmarshal(resp.Event, &p)
		ev.Touch = &TouchEvent{Part: p.Part, Touched: p.Touched}
	case StreamJoints:
		var p struct {
			Names  []string  `json:"jointsNames"`
			Angles []float64 `json:"jointsAngles"`
		}
		decodeErr = json.Unmarshal(resp.Event, &p)
		ev.Joints = &JointsFrame{Names: p.Names, Angles: p.Angles}
	case StreamAudio:
		var p struct {
			Rate              int    `json:"rate"`
			Channels          int    `json:"channels"`
			SamplesPerChannel int    `json:"nbSamplesPerChannel"`
			Data              []byte `json:"data"`
		}
		decodeErr = json.Unmarshal(resp.Event, &p)
		ev.Audio = &AudioFrame{Rate: p.Rate, Channels: p.Channels, SamplesPerChannel: p.SamplesPerChannel, Data: p.Data}
	}
	if decodeErr != nil {
		slog.Warn("Invalid event payload from robot link", "stream", resp.Stream, "error", decodeErr)
		return
	}
	deliver(ev)
}

// teardown marks the link lost and fails all pending calls. Safe to call
// from any goroutine and more than once.
func (b *LiveBackend) teardown(cause error) {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.linkErr = fmt.Errorf("robot link lost: %w", cause)
	conn := b.conn
	b.conn = nil
	pending := b.pending
	b.pending = make(map[string]chan liveResponse)
	b.delivery = make(map[StreamKind]func(StreamEvent))
	b.mu.Unlock()

	for id, ch := range pending {
		ch <- liveResponse{ID: id, Error: "robot link lost"}
	}
	if conn != nil {
		conn.Close()
	}
	slog.Warn("Robot link torn down", "cause", cause.Error())
}
