package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"naobridge/robot"
	"naobridge/server"
)

func main() {
	logger := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logger))

	// Optional .env file supplies defaults; flags win.
	_ = godotenv.Load()

	fakeRobot := flag.Bool("fake-robot", envBool("ROBOT_FAKE"), "Use a simulated robot, no hardware required")
	robotHost := flag.String("ip", os.Getenv("ROBOT_IP"), "Robot IP address")
	robotPort := flag.Int("port", envInt("ROBOT_PORT", 9559), "Robot link port")
	addr := flag.String("addr", envString("BRIDGE_ADDR", "0.0.0.0:8002"), "Bridge listen address")
	withJointsData := flag.Bool("with-joints-data", envBool("BRIDGE_JOINTS_DATA"), "Forward joint angle frames to clients")
	withAudioData := flag.Bool("with-audio-data", envBool("BRIDGE_AUDIO_DATA"), "Forward microphone buffers to clients")
	flag.Parse()

	if !*fakeRobot && *robotHost == "" {
		slog.Error("Robot IP is required unless -fake-robot is set")
		os.Exit(1)
	}

	newBackend := func() robot.Backend {
		if *fakeRobot {
			return robot.NewSimBackend()
		}
		return robot.NewLiveBackend(*robotHost, *robotPort)
	}

	bridge := server.New(*addr, newBackend)
	bridge.SetStreamDefaults(*withJointsData, *withAudioData)
	if !*fakeRobot {
		// One physical robot, one controlling client.
		bridge.SetMaxClients(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := bridge.Shutdown(); err != nil {
			slog.Error("Error shutting down bridge server", "error", err.Error())
		}
	}()

	if err := bridge.Start(); err != nil {
		slog.Error("Error starting bridge server", "error", err.Error())
		os.Exit(1)
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
