package robot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// stubGateway speaks the newline-delimited link protocol on a loopback
// listener so LiveBackend can be tested without hardware.
type stubGateway struct {
	ln       net.Listener
	failInit bool

	mu       sync.Mutex
	conn     net.Conn
	requests []liveRequest
}

func newStubGateway(t *testing.T, failInit bool) *stubGateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	g := &stubGateway{ln: ln, failInit: failInit}
	go g.serve()
	t.Cleanup(g.close)
	return g
}

func (g *stubGateway) port() int {
	return g.ln.Addr().(*net.TCPAddr).Port
}

func (g *stubGateway) close() {
	g.ln.Close()
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (g *stubGateway) closeConn() {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (g *stubGateway) recorded() []liveRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make([]liveRequest, len(g.requests))
	copy(result, g.requests)
	return result
}

// pushEvent writes an unsolicited event line to the connected backend.
func (g *stubGateway) pushEvent(stream string, event any) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	line, err := json.Marshal(liveResponse{Stream: stream, Event: data})
	if err != nil {
		return err
	}
	_, err = conn.Write(append(line, '\n'))
	return err
}

func (g *stubGateway) serve() {
	conn, err := g.ln.Accept()
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req liveRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()

		resp := liveResponse{ID: req.ID}
		switch {
		case req.Method == "session.init" && g.failInit:
			resp.Error = "link runtime failed to initialize"
		case req.Method == "behaviors.list":
			resp.Result = json.RawMessage(`{
				"dances": [{"id": "gangnam-style", "behaviorName": "gangnam-style",
					"localizedName": {"en_US": "Gangnam Style", "fr_FR": "Gangnam style"},
					"description": "Gangnam style dance."}],
				"reactions": {"Happy": [{"id": "happy-1", "behaviorName": "happy-1",
					"localizedName": {"en_US": "Happy", "fr_FR": "Content"},
					"description": "A happy reaction."}]},
				"bodyActions": []
			}`)
		}

		line, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if _, err := conn.Write(append(line, '\n')); err != nil {
			return
		}
	}
}

func TestLiveBackend_ConnectAndInvoke(t *testing.T) {
	gateway := newStubGateway(t, false)
	backend := NewLiveBackend("127.0.0.1", gateway.port())
	defer backend.Disconnect()

	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	if _, err := backend.Invoke(context.Background(), ActionSay, Params{"text": "hello"}); err != nil {
		t.Fatalf("Failed to invoke action: %v", err)
	}

	var sawInit, sawSay bool
	for _, req := range gateway.recorded() {
		switch req.Method {
		case "session.init":
			sawInit = true
		case "action.Say":
			sawSay = true
			if req.Params["text"] != "hello" {
				t.Errorf("Expected text param 'hello', got %v", req.Params["text"])
			}
		}
	}
	if !sawInit {
		t.Error("Expected a session.init handshake")
	}
	if !sawSay {
		t.Error("Expected an action.Say request")
	}
}

func TestLiveBackend_FatalHandshake(t *testing.T) {
	gateway := newStubGateway(t, true)
	backend := NewLiveBackend("127.0.0.1", gateway.port())

	err := backend.Connect(context.Background())
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Expected ConnectError, got %v", err)
	}
	if !connectErr.Fatal {
		t.Error("Expected a failed handshake to be fatal")
	}
}

func TestLiveBackend_DialFailureIsRetryable(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	backend := NewLiveBackend("127.0.0.1", port)
	connErr := backend.Connect(context.Background())
	var connectErr *ConnectError
	if !errors.As(connErr, &connectErr) {
		t.Fatalf("Expected ConnectError, got %v", connErr)
	}
	if connectErr.Fatal {
		t.Error("Expected a dial failure to be retryable, not fatal")
	}
}

func TestLiveBackend_Catalogs(t *testing.T) {
	gateway := newStubGateway(t, false)
	backend := NewLiveBackend("127.0.0.1", gateway.port())
	defer backend.Disconnect()

	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	catalogs, err := backend.Catalogs(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch catalogs: %v", err)
	}
	if len(catalogs.Dances) != 1 || catalogs.Dances[0].ID != "gangnam-style" {
		t.Errorf("Unexpected dance catalog %+v", catalogs.Dances)
	}
	if len(catalogs.Reactions["Happy"]) != 1 {
		t.Errorf("Unexpected reaction catalog %+v", catalogs.Reactions)
	}
}

func TestLiveBackend_EventDispatch(t *testing.T) {
	gateway := newStubGateway(t, false)
	backend := NewLiveBackend("127.0.0.1", gateway.port())
	defer backend.Disconnect()

	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	events := make(chan StreamEvent, 1)
	if err := backend.Subscribe(StreamTouch, func(ev StreamEvent) {
		events <- ev
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := gateway.pushEvent("touch", map[string]any{"part": "FrontTactilTouched", "touched": true}); err != nil {
		t.Fatalf("Failed to push event: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != StreamTouch {
			t.Errorf("Expected touch event, got kind %s", ev.Kind)
		}
		if ev.Touch.Part != "FrontTactilTouched" || !ev.Touch.Touched {
			t.Errorf("Unexpected touch payload %+v", ev.Touch)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for touch event")
	}
}

func TestLiveBackend_LinkLossFailsCalls(t *testing.T) {
	gateway := newStubGateway(t, false)
	backend := NewLiveBackend("127.0.0.1", gateway.port())

	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	gateway.closeConn()

	// The read loop notices the loss and tears the link down; later calls
	// must fail instead of hanging.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := backend.Invoke(ctx, ActionSay, Params{"text": "hello"})
		cancel()
		if err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected calls to fail after link loss")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
