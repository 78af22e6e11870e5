package proto

import (
	"encoding/json"
)

// Frame ids exchanged over the websocket connection. Command frames flow
// client -> server, everything else server -> client.
const (
	FrameCommand      = "Command"
	FrameCommandEnded = "CommandEnded"
	FrameTouch        = "Touch"
	FrameJoints       = "Joints"
	FrameAudio        = "Audio"
	FrameRobotState   = "RobotState"
	FrameLog          = "Log"
)

type Frame struct {
	ID   string          `json:"id"`   // "Command", "CommandEnded", "Touch", "Joints", "Audio", "RobotState", "Log"
	Data json.RawMessage `json:"data"` // raw JSON; schema depends on ID
}

// NewFrame marshals payload into a Frame. Payload types in this package
// marshal without error; a failure here indicates a programming mistake.
func NewFrame(id string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: id, Data: data}, nil
}

// Command is the data of a "Command" frame.
type Command struct {
	UUID string          `json:"commandUuid"` // client-chosen correlation id
	Name string          `json:"commandId"`   // e.g. "Say", "Dance", "WakeUp"
	Data json.RawMessage `json:"commandData"` // command-specific parameters
}

// Result types for CommandResult.
const (
	ResultSuccess = "Success"
	ResultError   = "Error"
)

// Error kinds carried in CommandResult.ErrorKind.
const (
	ErrKindUnknownCommand    = "UnknownCommand"
	ErrKindInvalidParameters = "InvalidParameters"
	ErrKindNotConnected      = "NotConnected"
	ErrKindBusy              = "Busy"
	ErrKindConnect           = "ConnectError"
	ErrKindAction            = "ActionError"
	ErrKindSubscribe         = "SubscribeError"
)

// CommandResult is the data of a "CommandEnded" frame. Exactly one is sent
// per received Command, correlated by UUID.
type CommandResult struct {
	UUID       string `json:"commandUuid"`
	ResultType string `json:"resultType"` // "Success" or "Error"
	ErrorKind  string `json:"errorKind,omitempty"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

// TouchPayload is the data of an unsolicited "Touch" frame.
type TouchPayload struct {
	Part    string `json:"part"` // e.g. "FrontTactilTouched"
	Touched bool   `json:"touched"`
}

// JointsPayload is the data of an unsolicited "Joints" frame. Names and
// Angles have the same length and order.
type JointsPayload struct {
	Names  []string  `json:"jointsNames"`
	Angles []float64 `json:"jointsAngles"`
}

// AudioPayload is the data of an unsolicited "Audio" frame. Data is
// base64-encoded by the JSON encoder.
type AudioPayload struct {
	Rate              int    `json:"rate"`
	Channels          int    `json:"channels"`
	SamplesPerChannel int    `json:"nbSamplesPerChannel"`
	Data              []byte `json:"data"`
}

// RobotStatePayload is sent once when a client attaches.
type RobotStatePayload struct {
	Connected bool `json:"connected"`
	Simulated bool `json:"simulated"`
}

// LogPayload mirrors notable server-side log lines to the client.
type LogPayload struct {
	Log      string `json:"log"`
	LogLevel string `json:"logLevel"` // "INFO", "WARN", "ERROR"
}
