package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"naobridge/mcp"
	"naobridge/robot"
)

func main() {
	// MCP talks JSON-RPC over stdout; logs must go to stderr.
	logger := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(logger))

	_ = godotenv.Load()

	fakeRobot := flag.Bool("fake-robot", envBool("ROBOT_FAKE"), "Use a simulated robot, no hardware required")
	robotHost := flag.String("ip", os.Getenv("ROBOT_IP"), "Robot IP address")
	robotPort := flag.Int("port", envInt("ROBOT_PORT", 9559), "Robot link port")
	flag.Parse()

	if !*fakeRobot && *robotHost == "" {
		slog.Error("Robot IP is required unless -fake-robot is set")
		os.Exit(1)
	}

	var backend robot.Backend
	if *fakeRobot {
		backend = robot.NewSimBackend()
	} else {
		backend = robot.NewLiveBackend(*robotHost, *robotPort)
	}

	session := robot.NewSession(backend)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := session.Connect(ctx); err != nil {
		slog.Error("Failed to connect to robot", "error", err.Error())
		os.Exit(1)
	}

	mcpServer := mcp.NewServer()
	mcp.NewRobotTools(session).Register(mcpServer)

	if err := mcpServer.Start(); err != nil {
		slog.Error("MCP server error", "error", err.Error())
		os.Exit(1)
	}
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
