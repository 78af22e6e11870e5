package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"naobridge/proto"
	"naobridge/robot"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("127.0.0.1:0", func() robot.Backend {
		backend := robot.NewSimBackend()
		backend.SetStreamIntervals(10*time.Millisecond, 10*time.Millisecond)
		return backend
	})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) proto.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame proto.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return frame
}

// readFrameOfType skips unrelated unsolicited frames until one with the
// wanted id arrives.
func readFrameOfType(t *testing.T, conn *websocket.Conn, id string) proto.Frame {
	t.Helper()
	for i := 0; i < 100; i++ {
		frame := readFrame(t, conn)
		if frame.ID == id {
			return frame
		}
	}
	t.Fatalf("Did not receive a %s frame", id)
	return proto.Frame{}
}

func sendCommand(t *testing.T, conn *websocket.Conn, uuid, name, data string) {
	t.Helper()
	cmd := proto.Command{UUID: uuid, Name: name}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	frame, err := proto.NewFrame(proto.FrameCommand, cmd)
	if err != nil {
		t.Fatalf("Failed to build command frame: %v", err)
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}
}

func TestServer_RobotStateOnAttach(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	frame := readFrameOfType(t, conn, proto.FrameRobotState)
	var state proto.RobotStatePayload
	if err := json.Unmarshal(frame.Data, &state); err != nil {
		t.Fatalf("Failed to decode robot state: %v", err)
	}
	if !state.Connected {
		t.Error("Expected the robot to be connected")
	}
	if !state.Simulated {
		t.Error("Expected the robot to be simulated")
	}
}

func TestServer_CommandRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	readFrameOfType(t, conn, proto.FrameRobotState)
	sendCommand(t, conn, "u1", "Say", `{"text": "hello"}`)

	frame := readFrameOfType(t, conn, proto.FrameCommandEnded)
	var result proto.CommandResult
	if err := json.Unmarshal(frame.Data, &result); err != nil {
		t.Fatalf("Failed to decode command result: %v", err)
	}
	if result.UUID != "u1" {
		t.Errorf("Expected reply for u1, got %s", result.UUID)
	}
	if result.ResultType != proto.ResultSuccess {
		t.Errorf("Expected success, got %s: %s", result.ResultType, result.Message)
	}
}

func TestServer_UnknownCommandOverWire(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	readFrameOfType(t, conn, proto.FrameRobotState)
	sendCommand(t, conn, "u1", "Fly", "")

	frame := readFrameOfType(t, conn, proto.FrameCommandEnded)
	var result proto.CommandResult
	if err := json.Unmarshal(frame.Data, &result); err != nil {
		t.Fatalf("Failed to decode command result: %v", err)
	}
	if result.ErrorKind != proto.ErrKindUnknownCommand {
		t.Errorf("Expected UnknownCommand, got %s", result.ErrorKind)
	}
}

func TestServer_MaxClients(t *testing.T) {
	s, ts := newTestServer(t)
	s.SetMaxClients(1)

	conn := dialWS(t, ts)
	readFrameOfType(t, conn, proto.FrameRobotState)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected the second connection to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for the second connection, got %+v", resp)
	}
}

func TestServer_StatusEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("Failed to get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatalf("Failed to get state: %v", err)
	}
	defer resp.Body.Close()
	var state map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if _, ok := state["clients"]; !ok {
		t.Error("Expected state to report the client count")
	}
	if _, ok := state["maxClients"]; !ok {
		t.Error("Expected state to report the client cap")
	}
}

func TestServer_TouchForwardedOverWire(t *testing.T) {
	backend := robot.NewSimBackend()
	backend.SetStreamIntervals(10*time.Millisecond, 10*time.Millisecond)
	s := New("127.0.0.1:0", func() robot.Backend { return backend })
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)
	readFrameOfType(t, conn, proto.FrameRobotState)

	backend.EmitTouch("FrontTactilTouched", true)

	frame := readFrameOfType(t, conn, proto.FrameTouch)
	var payload proto.TouchPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("Failed to decode touch payload: %v", err)
	}
	if payload.Part != "FrontTactilTouched" || !payload.Touched {
		t.Errorf("Unexpected touch payload %+v", payload)
	}
}
