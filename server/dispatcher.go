package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"naobridge/proto"
	"naobridge/robot"
)

const commandTimeout = 60 * time.Second

// Dispatcher translates one inbound command into exactly one session call
// and one terminal CommandEnded reply. It also owns this connection's
// stream subscriptions and tears them down on Close.
//
// Dispatch is called sequentially from the connection's read loop; the
// stream consumers it registers run on the mux delivery goroutines.
type Dispatcher struct {
	session *robot.Session
	send    func(proto.Frame) error
}

func NewDispatcher(session *robot.Session, send func(proto.Frame) error) *Dispatcher {
	return &Dispatcher{session: session, send: send}
}

// Dispatch executes cmd and sends its terminal reply.
func (d *Dispatcher) Dispatch(cmd proto.Command) {
	slog.Info("Received command", "command", cmd.Name, "uuid", cmd.UUID)

	handler, ok := commandTable[cmd.Name]
	if !ok {
		d.reply(cmd.UUID, proto.ErrKindUnknownCommand, fmt.Sprintf("unknown command %q", cmd.Name), nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data, err := handler(ctx, d, cmd.Data)
	if err != nil {
		kind, msg := classify(err)
		slog.Warn("Command failed", "command", cmd.Name, "uuid", cmd.UUID, "kind", kind, "error", msg)
		d.logToClient("ERROR", fmt.Sprintf("command %q failed: %s", cmd.Name, msg))
		d.reply(cmd.UUID, kind, msg, nil)
		return
	}
	d.reply(cmd.UUID, "", "", data)
}

// Close tears down every stream subscription this connection registered.
// After it returns no further event frames are produced for the client.
func (d *Dispatcher) Close() {
	for _, kind := range []robot.StreamKind{robot.StreamTouch, robot.StreamJoints, robot.StreamAudio} {
		d.session.Unsubscribe(kind)
	}
}

func (d *Dispatcher) reply(uuid, errKind, message string, data any) {
	result := proto.CommandResult{
		UUID:       uuid,
		ResultType: proto.ResultSuccess,
		Message:    message,
		Data:       data,
	}
	if errKind != "" {
		result.ResultType = proto.ResultError
		result.ErrorKind = errKind
	}
	frame, err := proto.NewFrame(proto.FrameCommandEnded, result)
	if err != nil {
		slog.Error("Failed to encode command result", "error", err)
		return
	}
	if err := d.send(frame); err != nil {
		slog.Warn("Failed to send command result", "uuid", uuid, "error", err)
	}
}

func (d *Dispatcher) logToClient(level, message string) {
	frame, err := proto.NewFrame(proto.FrameLog, proto.LogPayload{Log: message, LogLevel: level})
	if err != nil {
		return
	}
	if err := d.send(frame); err != nil {
		slog.Debug("Failed to forward log to client", "error", err)
	}
}

// classify maps a session error onto the wire error taxonomy.
func classify(err error) (kind, message string) {
	var connectErr *robot.ConnectError
	var subscribeErr *robot.SubscribeError
	var actionErr *robot.ActionError
	var paramErr *paramError

	switch {
	case errors.As(err, &paramErr):
		return proto.ErrKindInvalidParameters, err.Error()
	case errors.Is(err, robot.ErrNotConnected):
		return proto.ErrKindNotConnected, err.Error()
	case errors.Is(err, robot.ErrBusy):
		return proto.ErrKindBusy, err.Error()
	case errors.As(err, &connectErr):
		return proto.ErrKindConnect, err.Error()
	case errors.As(err, &subscribeErr):
		return proto.ErrKindSubscribe, err.Error()
	case errors.As(err, &actionErr):
		return proto.ErrKindAction, err.Error()
	}
	return proto.ErrKindAction, err.Error()
}

// paramError is a local validation failure; it never reaches the backend.
type paramError struct {
	field string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("missing or invalid parameter %q", e.field)
}

func decodeParams(data json.RawMessage) (map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &paramError{field: "commandData"}
	}
	return fields, nil
}

func requireString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", &paramError{field: name}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &paramError{field: name}
	}
	return s, nil
}

func requireBool(fields map[string]json.RawMessage, name string) (bool, error) {
	raw, ok := fields[name]
	if !ok {
		return false, &paramError{field: name}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, &paramError{field: name}
	}
	return b, nil
}

type commandHandler func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error)

var commandTable = map[string]commandHandler{
	"Generic": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		text, err := requireString(fields, "text")
		if err != nil {
			return nil, err
		}
		slog.Info("Generic command", "text", text)
		return nil, nil
	},
	"SetTTSLanguage": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		language, err := requireString(fields, "language")
		if err != nil {
			return nil, err
		}
		return nil, d.session.SetTTSLanguage(ctx, language)
	},
	"Say": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		text, err := requireString(fields, "text")
		if err != nil {
			return nil, err
		}
		return nil, d.session.Say(ctx, text)
	},
	"StopSay": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.session.StopSay(ctx)
	},
	"WakeUp": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.session.WakeUp(ctx)
	},
	"Rest": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.session.Rest(ctx)
	},
	"StandUp": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.session.StandUp(ctx)
	},
	"SitDown": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.session.SitDown(ctx)
	},
	"ChangeEyesColor": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		color, err := requireString(fields, "color")
		if err != nil {
			return nil, err
		}
		return nil, d.session.ChangeEyesColor(ctx, color)
	},
	"SetBasicAwarenessState": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		enabled, err := requireBool(fields, "enabled")
		if err != nil {
			return nil, err
		}
		engagementMode, err := requireString(fields, "engagementMode")
		if err != nil {
			return nil, err
		}
		trackingMode, err := requireString(fields, "trackingMode")
		if err != nil {
			return nil, err
		}
		return nil, d.session.SetBasicAwarenessState(ctx, enabled, engagementMode, trackingMode)
	},
	"SetBreathingEnabled": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		enabled, err := requireBool(fields, "enabled")
		if err != nil {
			return nil, err
		}
		chainName, err := requireString(fields, "chainName")
		if err != nil {
			return nil, err
		}
		return nil, d.session.SetBreathingEnabled(ctx, enabled, chainName)
	},
	"GetDanceBehaviors": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		behaviors, err := d.session.DanceBehaviors(ctx)
		if err != nil {
			return nil, err
		}
		return behaviorEntries(behaviors), nil
	},
	"Dance": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		danceID, err := requireString(fields, "danceId")
		if err != nil {
			return nil, err
		}
		return nil, d.session.Dance(ctx, danceID)
	},
	"StopDance": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		danceID, err := requireString(fields, "danceId")
		if err != nil {
			return nil, err
		}
		return nil, d.session.StopDance(ctx, danceID)
	},
	"GetExpressiveReactionTypes": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return d.session.ExpressiveReactionTypes(ctx)
	},
	"ExpressiveReaction": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		reactionType, err := requireString(fields, "reactionType")
		if err != nil {
			return nil, err
		}
		return nil, d.session.ExpressiveReaction(ctx, reactionType)
	},
	"StopExpressiveReaction": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		reactionType, err := requireString(fields, "reactionType")
		if err != nil {
			return nil, err
		}
		return nil, d.session.StopExpressiveReaction(ctx, reactionType)
	},
	"GetBodyActionBehaviors": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		behaviors, err := d.session.BodyActionBehaviors(ctx)
		if err != nil {
			return nil, err
		}
		return behaviorEntries(behaviors), nil
	},
	"BodyAction": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		bodyActionID, err := requireString(fields, "bodyActionId")
		if err != nil {
			return nil, err
		}
		return nil, d.session.BodyAction(ctx, bodyActionID)
	},
	"StopBodyAction": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		bodyActionID, err := requireString(fields, "bodyActionId")
		if err != nil {
			return nil, err
		}
		return nil, d.session.StopBodyAction(ctx, bodyActionID)
	},
	"RunBehavior": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		name, err := requireString(fields, "name")
		if err != nil {
			return nil, err
		}
		return nil, d.session.RunBehavior(ctx, name)
	},
	"StopBehavior": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		fields, err := decodeParams(data)
		if err != nil {
			return nil, err
		}
		name, err := requireString(fields, "name")
		if err != nil {
			return nil, err
		}
		return nil, d.session.StopBehavior(ctx, name)
	},
	"StartJointsData": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.SubscribeJoints()
	},
	"StopJointsData": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		d.session.Unsubscribe(robot.StreamJoints)
		return nil, nil
	},
	"StartAudioData": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		return nil, d.SubscribeAudio()
	},
	"StopAudioData": func(ctx context.Context, d *Dispatcher, data json.RawMessage) (any, error) {
		d.session.Unsubscribe(robot.StreamAudio)
		return nil, nil
	},
}

func behaviorEntries(behaviors []robot.Behavior) []proto.BehaviorEntry {
	entries := make([]proto.BehaviorEntry, 0, len(behaviors))
	for _, b := range behaviors {
		entries = append(entries, proto.BehaviorEntry{
			ID:           b.ID,
			BehaviorName: b.BehaviorName,
			LocalizedName: proto.LocalizedEntry{
				EnUS: b.LocalizedName.EnUS,
				FrFR: b.LocalizedName.FrFR,
			},
			Description: b.Description,
		})
	}
	return entries
}

// ---------- stream forwarding ---------- //

// SubscribeTouch starts forwarding tactile events as Touch frames. Touch
// forwarding is always on while a client is attached.
func (d *Dispatcher) SubscribeTouch() error {
	return d.session.Subscribe(robot.StreamTouch, func(ev robot.StreamEvent) {
		frame, err := proto.NewFrame(proto.FrameTouch, proto.TouchPayload{
			Part:    ev.Touch.Part,
			Touched: ev.Touch.Touched,
		})
		if err != nil {
			return
		}
		if err := d.send(frame); err != nil {
			slog.Debug("Failed to forward touch event", "error", err)
		}
	})
}

// SubscribeJoints starts forwarding joint frames as Joints frames.
func (d *Dispatcher) SubscribeJoints() error {
	return d.session.Subscribe(robot.StreamJoints, func(ev robot.StreamEvent) {
		frame, err := proto.NewFrame(proto.FrameJoints, proto.JointsPayload{
			Names:  ev.Joints.Names,
			Angles: ev.Joints.Angles,
		})
		if err != nil {
			return
		}
		if err := d.send(frame); err != nil {
			slog.Debug("Failed to forward joints frame", "error", err)
		}
	})
}

// SubscribeAudio starts forwarding microphone buffers as Audio frames.
func (d *Dispatcher) SubscribeAudio() error {
	return d.session.Subscribe(robot.StreamAudio, func(ev robot.StreamEvent) {
		frame, err := proto.NewFrame(proto.FrameAudio, proto.AudioPayload{
			Rate:              ev.Audio.Rate,
			Channels:          ev.Audio.Channels,
			SamplesPerChannel: ev.Audio.SamplesPerChannel,
			Data:              ev.Audio.Data,
		})
		if err != nil {
			return
		}
		if err := d.send(frame); err != nil {
			slog.Debug("Failed to forward audio frame", "error", err)
		}
	})
}
