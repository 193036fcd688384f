package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrDevNonceExhausted is returned when the 16-bit DevNonce space is used up.
// The device must be re-provisioned with a new AppKey.
var ErrDevNonceExhausted = errors.New("persistence: DevNonce space exhausted")

// ErrDevEUIMismatch is returned when a state file belongs to another device.
var ErrDevEUIMismatch = errors.New("persistence: state file belongs to a different DevEUI")

// DeviceState contains the runtime state for a LoRaWAN end-device.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// DevEUI identifies the device the state belongs to.
	DevEUI string `json:"dev_eui"`

	// MACVersion is the LoRaWAN MAC version the counters were kept under.
	MACVersion string `json:"mac_version,omitempty"`

	// DevNonce is the last DevNonce used in a JoinRequest.
	DevNonce uint16 `json:"dev_nonce"`

	// DevNonceUsed is false until the first JoinRequest, so that a DevNonce
	// of zero can be told apart from no DevNonce at all.
	DevNonceUsed bool `json:"dev_nonce_used,omitempty"`

	// FCntUp is the next uplink frame counter.
	FCntUp uint32 `json:"fcnt_up"`

	// Session is set once the device has joined.
	Session *SessionState `json:"session,omitempty"`
}

// SessionState captures a completed join.
type SessionState struct {
	// JoinedAt is when the JoinAccept was received.
	JoinedAt time.Time `json:"joined_at"`

	// Attempts is the number of join attempts it took.
	Attempts uint32 `json:"attempts"`

	// RetriesAtJoin is the retry counter when the join succeeded.
	RetriesAtJoin uint32 `json:"retries_at_join"`

	// DevAddr is the device address assigned by the network, hex-encoded.
	DevAddr string `json:"dev_addr,omitempty"`
}

// Joined reports whether the state records a completed join.
func (s *DeviceState) Joined() bool {
	return s != nil && s.Session != nil
}

// NextDevNonce returns the DevNonce for the next JoinRequest and records it.
func (s *DeviceState) NextDevNonce() (uint16, error) {
	if !s.DevNonceUsed {
		s.DevNonceUsed = true
		s.DevNonce = 0
		return 0, nil
	}
	if s.DevNonce == math.MaxUint16 {
		return 0, ErrDevNonceExhausted
	}
	s.DevNonce++
	return s.DevNonce, nil
}

// NextFCntUp returns the frame counter for the next uplink and advances it.
func (s *DeviceState) NextFCntUp() uint32 {
	fcnt := s.FCntUp
	s.FCntUp++
	return fcnt
}

// DeviceStateStore manages persistence of device state to a JSON file.
type DeviceStateStore struct {
	mu   sync.Mutex
	path string
}

// NewDeviceStateStore creates a new device state store.
func NewDeviceStateStore(path string) *DeviceStateStore {
	return &DeviceStateStore{path: path}
}

// Path returns the state file path.
func (s *DeviceStateStore) Path() string {
	return s.path
}

// Save persists the device state to disk.
// The file is written to a temporary name and renamed into place so a crash
// mid-write never leaves a truncated state file.
func (s *DeviceStateStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the device state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *DeviceStateStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &DeviceState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	return state, nil
}

// LoadFor reads the state for devEUI, returning a fresh state when the file
// is missing. A file recorded for another DevEUI is an error.
func (s *DeviceStateStore) LoadFor(devEUI string) (*DeviceState, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &DeviceState{Version: StateVersion, DevEUI: devEUI}, nil
	}
	if state.DevEUI != "" && state.DevEUI != devEUI {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrDevEUIMismatch, state.DevEUI, devEUI)
	}
	state.DevEUI = devEUI
	return state, nil
}

// Clear removes the state file.
func (s *DeviceStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
