package capture

import (
	"errors"
	"testing"
)

func TestBytesPerBlockI16(t *testing.T) {
	cfg := Config{BlockSize: 1024, Channels: 2, Format: "i16"}
	if got := cfg.BytesPerBlock(); got != 1024*2*2 {
		t.Errorf("expected %d bytes, got %d", 1024*2*2, got)
	}
}

func TestBytesPerBlockI32(t *testing.T) {
	cfg := Config{BlockSize: 512, Channels: 1, Format: "i32"}
	if got := cfg.BytesPerBlock(); got != 512*4 {
		t.Errorf("expected %d bytes, got %d", 512*4, got)
	}
}

func TestBytesPerBlockI24HasNoNativeWidth(t *testing.T) {
	cfg := Config{BlockSize: 1024, Channels: 1, Format: "i24"}
	if got := cfg.BytesPerBlock(); got != 0 {
		t.Errorf("expected 0 for a format with no native byte width, got %d", got)
	}
}

func TestStartRejectsI24BeforeTouchingTheDriver(t *testing.T) {
	s := New(Config{Format: "i24"}, func([]byte) {})
	err := s.Start()
	if err == nil {
		t.Fatal("expected an error for i24")
	}
	var openErr *CaptureOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *CaptureOpenError, got %T", err)
	}
}

func TestCallbackI16ProducesLittleEndianBytes(t *testing.T) {
	var got []byte
	s := New(Config{Format: "i16"}, func(b []byte) { got = append([]byte(nil), b...) })

	s.callbackI16([]int16{1, -1, 256})

	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: expected %#x, got %#x", i, want[i], got[i])
		}
	}
}

func TestCallbackI32ProducesLittleEndianBytes(t *testing.T) {
	var got []byte
	s := New(Config{Format: "i32"}, func(b []byte) { got = append([]byte(nil), b...) })

	s.callbackI32([]int32{1})

	want := []byte{0x01, 0x00, 0x00, 0x00}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: expected %#x, got %#x", i, want[i], got[i])
		}
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	s := New(Config{Format: "i16"}, func([]byte) {})
	if err := s.Stop(); err != nil {
		t.Errorf("expected Stop on a never-started source to be a no-op, got %v", err)
	}
}
