package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"naobridge/robot"
)

// RobotTools exposes the robot session's operations as MCP tools so an LLM
// agent can drive the robot directly.
type RobotTools struct {
	session *robot.Session
}

func NewRobotTools(session *robot.Session) *RobotTools {
	return &RobotTools{session: session}
}

// Register adds every robot tool to the server.
func (t *RobotTools) Register(s *Server) {
	t.registerSpeechTools(s)
	t.registerPostureTools(s)
	t.registerAppearanceTools(s)
	t.registerBehaviorTools(s)
}

func (t *RobotTools) registerSpeechTools(s *Server) {
	s.AddTool(mcp.NewTool("set_tts_language",
		mcp.WithDescription("Change the language of the robot's text to speech"),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("The language to set, e.g. English or French"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		language, err := request.RequireString("language")
		if err != nil {
			return mcp.NewToolResultError("language is required and must be a string"), nil
		}
		if err := t.session.SetTTSLanguage(ctx, language); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to switch language to %s: %v", language, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot switched language to %s", language)), nil
	})

	s.AddTool(mcp.NewTool("say",
		mcp.WithDescription("Make the robot say something out loud"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The text to say"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required and must be a string"), nil
		}
		if err := t.session.Say(ctx, text); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to say %q: %v", text, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot said %q", text)), nil
	})

	s.AddTool(mcp.NewTool("stop_say",
		mcp.WithDescription("Stop the robot talking"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := t.session.StopSay(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to stop talking: %v", err)), nil
		}
		return mcp.NewToolResultText("Robot stopped talking"), nil
	})
}

func (t *RobotTools) registerPostureTools(s *Server) {
	s.AddTool(mcp.NewTool("wake_up",
		mcp.WithDescription("Enable the robot motors. Call this at the beginning of an interaction, before any movement tool"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := t.session.WakeUp(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to enable robot motors: %v", err)), nil
		}
		return mcp.NewToolResultText("Robot motors are enabled"), nil
	})

	s.AddTool(mcp.NewTool("rest",
		mcp.WithDescription("Disable the robot motors. Call this at the end of an interaction"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := t.session.Rest(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to disable robot motors: %v", err)), nil
		}
		return mcp.NewToolResultText("Robot motors are disabled"), nil
	})

	s.AddTool(mcp.NewTool("stand_up",
		mcp.WithDescription("Make the robot stand up"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := t.session.StandUp(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to stand up: %v", err)), nil
		}
		return mcp.NewToolResultText("Robot stood up"), nil
	})

	s.AddTool(mcp.NewTool("sit_down",
		mcp.WithDescription("Make the robot sit down"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := t.session.SitDown(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to sit down: %v", err)), nil
		}
		return mcp.NewToolResultText("Robot sat down"), nil
	})
}

func (t *RobotTools) registerAppearanceTools(s *Server) {
	s.AddTool(mcp.NewTool("change_eyes_color",
		mcp.WithDescription("Change the color of the robot's eyes"),
		mcp.WithString("color",
			mcp.Required(),
			mcp.Description("The color to set"),
			mcp.Enum("white", "red", "green", "blue", "yellow", "magenta", "cyan"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		color, err := request.RequireString("color")
		if err != nil {
			return mcp.NewToolResultError("color is required and must be a string"), nil
		}
		if err := t.session.ChangeEyesColor(ctx, color); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to change eyes color to %s: %v", color, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot eyes changed to %s", color)), nil
	})

	s.AddTool(mcp.NewTool("set_basic_awareness_state",
		mcp.WithDescription("Enable or disable the robot's basic awareness of people around it"),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("Whether awareness is enabled"),
		),
		mcp.WithString("engagement_mode",
			mcp.Required(),
			mcp.Description("The engagement mode to use"),
		),
		mcp.WithString("tracking_mode",
			mcp.Required(),
			mcp.Description("The tracking mode to use"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		engagementMode, err := request.RequireString("engagement_mode")
		if err != nil {
			return mcp.NewToolResultError("engagement_mode is required and must be a string"), nil
		}
		trackingMode, err := request.RequireString("tracking_mode")
		if err != nil {
			return mcp.NewToolResultError("tracking_mode is required and must be a string"), nil
		}
		enabled := request.GetBool("enabled", false)
		if err := t.session.SetBasicAwarenessState(ctx, enabled, engagementMode, trackingMode); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to set awareness state: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot awareness enabled=%t", enabled)), nil
	})

	s.AddTool(mcp.NewTool("set_breathing_enabled",
		mcp.WithDescription("Enable or disable the robot's idle breathing animation for a chain"),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("Whether breathing is enabled"),
		),
		mcp.WithString("chain_name",
			mcp.Required(),
			mcp.Description("The chain to control, e.g. Body, Arms, Legs"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chainName, err := request.RequireString("chain_name")
		if err != nil {
			return mcp.NewToolResultError("chain_name is required and must be a string"), nil
		}
		enabled := request.GetBool("enabled", false)
		if err := t.session.SetBreathingEnabled(ctx, enabled, chainName); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to set breathing state: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot breathing enabled=%t for chain %s", enabled, chainName)), nil
	})
}

func (t *RobotTools) registerBehaviorTools(s *Server) {
	s.AddTool(mcp.NewTool("get_dance_behaviors",
		mcp.WithDescription("Get the list of available dances. Call this before the dance tool"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		behaviors, err := t.session.DanceBehaviors(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list dances: %v", err)), nil
		}
		return jsonResult(behaviors)
	})

	s.AddTool(mcp.NewTool("dance",
		mcp.WithDescription("Make the robot perform a dance from the dance list"),
		mcp.WithString("dance_id",
			mcp.Required(),
			mcp.Description("The id of the dance to perform"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		danceID, err := request.RequireString("dance_id")
		if err != nil {
			return mcp.NewToolResultError("dance_id is required and must be a string"), nil
		}
		if err := t.session.Dance(ctx, danceID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to dance %q: %v", danceID, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot danced the dance with id %q", danceID)), nil
	})

	s.AddTool(mcp.NewTool("stop_dance",
		mcp.WithDescription("Stop a running dance"),
		mcp.WithString("dance_id",
			mcp.Required(),
			mcp.Description("The id of the dance to stop"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		danceID, err := request.RequireString("dance_id")
		if err != nil {
			return mcp.NewToolResultError("dance_id is required and must be a string"), nil
		}
		if err := t.session.StopDance(ctx, danceID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to stop dance %q: %v", danceID, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot stopped the dance with id %q", danceID)), nil
	})

	s.AddTool(mcp.NewTool("get_expressive_reaction_types",
		mcp.WithDescription("Get the list of available expressive reaction types. Call this before the expressive_reaction tool"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		types, err := t.session.ExpressiveReactionTypes(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list reaction types: %v", err)), nil
		}
		return jsonResult(types)
	})

	s.AddTool(mcp.NewTool("expressive_reaction",
		mcp.WithDescription("Make the robot react to an emotion or situation"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("The type of reaction to perform"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reactionType, err := request.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError("type is required and must be a string"), nil
		}
		if err := t.session.ExpressiveReaction(ctx, reactionType); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to react for type %q: %v", reactionType, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot reacted for type %q", reactionType)), nil
	})

	s.AddTool(mcp.NewTool("stop_expressive_reaction",
		mcp.WithDescription("Stop a running expressive reaction"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("The type of reaction to stop"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reactionType, err := request.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError("type is required and must be a string"), nil
		}
		if err := t.session.StopExpressiveReaction(ctx, reactionType); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to stop reaction %q: %v", reactionType, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot stopped reaction %q", reactionType)), nil
	})

	s.AddTool(mcp.NewTool("get_body_action_behaviors",
		mcp.WithDescription("Get the list of available body actions. Call this before the body_action tool"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		behaviors, err := t.session.BodyActionBehaviors(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list body actions: %v", err)), nil
		}
		return jsonResult(behaviors)
	})

	s.AddTool(mcp.NewTool("body_action",
		mcp.WithDescription("Make the robot perform a body action from the body action list"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The id of the body action to perform"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required and must be a string"), nil
		}
		if err := t.session.BodyAction(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to perform body action %q: %v", id, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot performed the body action with id %q", id)), nil
	})

	s.AddTool(mcp.NewTool("stop_body_action",
		mcp.WithDescription("Stop a running body action"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The id of the body action to stop"),
		),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required and must be a string"), nil
		}
		if err := t.session.StopBodyAction(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Robot failed to stop body action %q: %v", id, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Robot stopped the body action with id %q", id)), nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
