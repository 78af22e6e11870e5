package robot

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimBackend_GatedUntilConnected(t *testing.T) {
	backend := NewSimBackend()
	ctx := context.Background()

	if _, err := backend.Invoke(ctx, ActionSay, Params{"text": "hello"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected before connect, got %v", err)
	}
	if _, err := backend.Catalogs(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected for catalogs before connect, got %v", err)
	}
	if err := backend.Subscribe(StreamTouch, func(StreamEvent) {}); err == nil {
		t.Error("Expected subscribe before connect to fail")
	}
}

func TestSimBackend_ConnectAndInvoke(t *testing.T) {
	backend := NewSimBackend()
	defer backend.Disconnect()

	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if _, err := backend.Invoke(context.Background(), ActionWakeUp, nil); err != nil {
		t.Errorf("Expected invoke to succeed, got %v", err)
	}
}

func TestSimBackend_ConnectHonorsContext(t *testing.T) {
	backend := NewSimBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.Connect(ctx)
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Expected ConnectError on canceled context, got %v", err)
	}
	if connectErr.Fatal {
		t.Error("Expected cancellation to be retryable, not fatal")
	}
}

func TestSimBackend_Catalogs(t *testing.T) {
	backend := NewSimBackend()
	defer backend.Disconnect()
	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	catalogs, err := backend.Catalogs(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch catalogs: %v", err)
	}
	if len(catalogs.Dances) == 0 {
		t.Error("Expected a non-empty dance catalog")
	}
	if len(catalogs.Reactions) == 0 {
		t.Error("Expected a non-empty reaction catalog")
	}
	if len(catalogs.BodyActions) == 0 {
		t.Error("Expected a non-empty body action catalog")
	}

	if _, ok := catalogs.Dance("gangnam-style"); !ok {
		t.Error("Expected the dance catalog to contain gangnam-style")
	}
	types := catalogs.ReactionTypes()
	if len(types) != len(catalogs.Reactions) {
		t.Errorf("Expected %d reaction types, got %d", len(catalogs.Reactions), len(types))
	}
}

func TestSimBackend_JointsStream(t *testing.T) {
	backend := NewSimBackend()
	defer backend.Disconnect()
	backend.SetStreamIntervals(10*time.Millisecond, 10*time.Millisecond)
	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	frames := make(chan StreamEvent, 64)
	if err := backend.Subscribe(StreamJoints, func(ev StreamEvent) {
		frames <- ev
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-frames:
			if ev.Kind != StreamJoints {
				t.Fatalf("Expected joints event, got kind %s", ev.Kind)
			}
			if len(ev.Joints.Names) != len(ev.Joints.Angles) {
				t.Errorf("Expected names and angles to align, got %d/%d", len(ev.Joints.Names), len(ev.Joints.Angles))
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for joints frame")
		}
	}

	backend.Unsubscribe(StreamJoints)

	// Drain anything that was already in flight, then expect silence.
	time.Sleep(50 * time.Millisecond)
	for len(frames) > 0 {
		<-frames
	}
	select {
	case <-frames:
		t.Error("Expected no joints frames after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSimBackend_AudioStream(t *testing.T) {
	backend := NewSimBackend()
	defer backend.Disconnect()
	backend.SetStreamIntervals(10*time.Millisecond, 10*time.Millisecond)
	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	frames := make(chan StreamEvent, 64)
	if err := backend.Subscribe(StreamAudio, func(ev StreamEvent) {
		frames <- ev
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	select {
	case ev := <-frames:
		if ev.Audio.Rate != simAudioRate {
			t.Errorf("Expected rate %d, got %d", simAudioRate, ev.Audio.Rate)
		}
		if ev.Audio.Channels != simAudioChannels {
			t.Errorf("Expected %d channel(s), got %d", simAudioChannels, ev.Audio.Channels)
		}
		if len(ev.Audio.Data) == 0 {
			t.Error("Expected a non-empty audio buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for audio frame")
	}
}

func TestSimBackend_EmitTouch(t *testing.T) {
	backend := NewSimBackend()
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

	backend.EmitTouch("FrontTactilTouched", true)

	select {
	case ev := <-events:
		if ev.Touch.Part != "FrontTactilTouched" || !ev.Touch.Touched {
			t.Errorf("Unexpected touch event %+v", ev.Touch)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for touch event")
	}
}

func TestSimBackend_DisconnectStopsStreams(t *testing.T) {
	backend := NewSimBackend()
	backend.SetStreamIntervals(10*time.Millisecond, 10*time.Millisecond)
	if err := backend.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	frames := make(chan StreamEvent, 64)
	if err := backend.Subscribe(StreamJoints, func(ev StreamEvent) {
		frames <- ev
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for joints frame")
	}

	if err := backend.Disconnect(); err != nil {
		t.Fatalf("Failed to disconnect: %v", err)
	}
	// Double disconnect must be safe.
	if err := backend.Disconnect(); err != nil {
		t.Errorf("Expected second disconnect to be a no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	for len(frames) > 0 {
		<-frames
	}
	select {
	case <-frames:
		t.Error("Expected no joints frames after disconnect")
	case <-time.After(100 * time.Millisecond):
	}
}
