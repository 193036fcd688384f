package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDecodeJoinEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 123456789, time.UTC)
	event := Event{
		Timestamp: ts,
		SessionID: "0b8e1c1e-2a51-4c11-9c1e-7d0c8f6e0a01",
		DevEUI:    "024B00D87ED5B370",
		Direction: DirectionUp,
		Category:  CategoryJoin,
		Join: &JoinEvent{
			Attempt:  3,
			Retries:  2,
			Detail:   "transport error: radio busy",
			Duration: 6 * time.Second,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}

	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v (nanosecond precision)", decoded.Timestamp, ts)
	}
	if decoded.Join == nil {
		t.Fatal("Join is nil")
	}
	if decoded.Join.Attempt != 3 || decoded.Join.Retries != 2 || decoded.Join.Duration != 6*time.Second {
		t.Errorf("Join = %+v", decoded.Join)
	}
	if decoded.Uplink != nil || decoded.Backoff != nil {
		t.Error("unset payloads decoded as non-nil")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SessionID: "s",
		Category:  CategoryBackoff,
		Backoff:   &BackoffEvent{Retries: 1, Delay: 22 * time.Second, BaseSeconds: 20, JitterSeconds: 4},
	}

	a, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	b, _ := EncodeEvent(event)
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := uint64(1); i <= 3; i++ {
		if err := enc.Encode(Event{Category: CategoryUplink, Uplink: &UplinkEvent{Tick: i, Port: 1, Sent: true}}); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for i := uint64(1); i <= 3; i++ {
		var e Event
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if e.Uplink == nil || e.Uplink.Tick != i {
			t.Errorf("event %d: Uplink = %+v", i, e.Uplink)
		}
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("DecodeEvent() accepted garbage")
	}
}
