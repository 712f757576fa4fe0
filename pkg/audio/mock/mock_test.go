package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/pitchtrace/pkg/audio"
)

func TestDevice_StreamsInOrder(t *testing.T) {
	errBoom := errors.New("unplugged")
	dev := &Device{Streams: []*Stream{
		{Script: []audio.AudioFrame{{Samples: []int16{1}}, {Samples: []int16{2}}}},
		{StreamErr: errBoom},
	}}
	ctx := context.Background()

	s, err := dev.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var n int
	for range s.Frames() {
		n++
	}
	if n != 2 {
		t.Errorf("got %d frames, want 2", n)
	}
	if s.Err() != nil {
		t.Errorf("Err = %v, want nil", s.Err())
	}

	s, err = dev.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	audio.Drain(s.Frames())
	if !errors.Is(s.Err(), errBoom) {
		t.Errorf("Err = %v, want %v", s.Err(), errBoom)
	}

	if _, err := dev.Open(ctx); !errors.Is(err, audio.ErrDeviceClosed) {
		t.Errorf("Open after exhaustion = %v, want ErrDeviceClosed", err)
	}
	if dev.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", dev.Calls())
	}
}

func TestStream_HoldUntilClose(t *testing.T) {
	s := &Stream{Hold: true, StreamErr: errors.New("ignored")}
	s.start()
	go func() { _ = s.Close() }()
	audio.Drain(s.Frames())
	if s.Err() != nil {
		t.Errorf("closed stream reported %v", s.Err())
	}
	_ = s.Close()
	if s.CloseCalls() != 2 {
		t.Errorf("CloseCalls = %d, want 2", s.CloseCalls())
	}
}
