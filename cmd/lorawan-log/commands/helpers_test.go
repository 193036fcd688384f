package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/loranode/loranode-go/pkg/log"
)

// createTestLogFile writes events to a fresh log file and returns its path.
func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.llog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// joinSequence is a session that fails once, backs off and then joins.
func joinSequence(ts time.Time) []log.Event {
	const sess = "5f2b7c1e-0000-4000-8000-000000000001"
	const eui = "70b3d57ed0000001"
	return []log.Event{
		{Timestamp: ts, SessionID: sess, DevEUI: eui, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityNode, OldState: "IDLE", NewState: "JOINING"}},
		{Timestamp: ts.Add(time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionUp, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{MType: 0x00, Size: 23, Data: []byte{0x00, 0x01, 0x02}, Truncated: true}},
		{Timestamp: ts.Add(6 * time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionUp, Category: log.CategoryJoin,
			Join: &log.JoinEvent{Attempt: 1, Retries: 0, Response: "JOIN_REJECTED", Duration: 5 * time.Second}},
		{Timestamp: ts.Add(6 * time.Second), SessionID: sess, DevEUI: eui, Category: log.CategoryBackoff,
			Backoff: &log.BackoffEvent{Retries: 0, Delay: 11 * time.Second, BaseSeconds: 10, JitterSeconds: 2}},
		{Timestamp: ts.Add(17 * time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionDown, Category: log.CategoryFrame,
			Frame: &log.FrameEvent{MType: 0x20, Size: 17}},
		{Timestamp: ts.Add(22 * time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionUp, Category: log.CategoryJoin,
			Join: &log.JoinEvent{Attempt: 2, Retries: 1, Response: "JOIN_SUCCESS", Duration: 5 * time.Second}},
		{Timestamp: ts.Add(23 * time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionUp, Category: log.CategoryUplink,
			Uplink: &log.UplinkEvent{Tick: 1, Port: 1, Size: 5, Payload: []byte("hello"), Sent: true}},
		{Timestamp: ts.Add(83 * time.Second), SessionID: sess, DevEUI: eui, Direction: log.DirectionUp, Category: log.CategoryUplink,
			Uplink: &log.UplinkEvent{Tick: 2, Port: 1, Size: 5, Sent: false, Detail: "radio busy"}},
	}
}
