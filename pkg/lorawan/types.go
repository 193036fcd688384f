package lorawan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Credential errors.
var (
	ErrInvalidEUI    = errors.New("invalid EUI-64")
	ErrInvalidAppKey = errors.New("invalid AppKey")
)

// EUI64 is an IEEE EUI-64 identifier (DevEUI or JoinEUI).
type EUI64 [8]byte

// ParseEUI64 parses a 16-digit hex string. Separators ('-' and ':') and an
// optional 0x prefix are ignored.
func ParseEUI64(s string) (EUI64, error) {
	var eui EUI64
	b, err := decodeHex(s, len(eui))
	if err != nil {
		return EUI64{}, fmt.Errorf("%w: %v", ErrInvalidEUI, err)
	}
	copy(eui[:], b)
	return eui, nil
}

// String returns the EUI as upper-case hex.
func (e EUI64) String() string {
	return strings.ToUpper(hex.EncodeToString(e[:]))
}

// IsZero reports whether all bytes are zero.
func (e EUI64) IsZero() bool {
	return e == EUI64{}
}

// MarshalText implements encoding.TextMarshaler.
func (e EUI64) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EUI64) UnmarshalText(text []byte) error {
	eui, err := ParseEUI64(string(text))
	if err != nil {
		return err
	}
	*e = eui
	return nil
}

// AES128Key is a 128-bit root or session key.
type AES128Key [16]byte

// ParseAES128Key parses a 32-digit hex string.
func ParseAES128Key(s string) (AES128Key, error) {
	var key AES128Key
	b, err := decodeHex(s, len(key))
	if err != nil {
		return AES128Key{}, fmt.Errorf("%w: %v", ErrInvalidAppKey, err)
	}
	copy(key[:], b)
	return key, nil
}

// String returns a redacted form so keys do not end up in logs.
func (k AES128Key) String() string {
	return "****" + strings.ToUpper(hex.EncodeToString(k[14:]))
}

// Hex returns the full key as upper-case hex.
func (k AES128Key) Hex() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// MarshalText implements encoding.TextMarshaler. The full key is written.
func (k AES128Key) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AES128Key) UnmarshalText(text []byte) error {
	key, err := ParseAES128Key(string(text))
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// Credentials holds the OTAA join material for one device.
// Values are immutable once constructed and are passed by value.
type Credentials struct {
	DevEUI  EUI64
	JoinEUI EUI64
	AppKey  AES128Key
}

// ParseCredentials builds Credentials from their hex representations.
func ParseCredentials(devEUI, joinEUI, appKey string) (Credentials, error) {
	dev, err := ParseEUI64(devEUI)
	if err != nil {
		return Credentials{}, fmt.Errorf("dev_eui: %w", err)
	}
	join, err := ParseEUI64(joinEUI)
	if err != nil {
		return Credentials{}, fmt.Errorf("join_eui: %w", err)
	}
	key, err := ParseAES128Key(appKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("app_key: %w", err)
	}
	return Credentials{DevEUI: dev, JoinEUI: join, AppKey: key}, nil
}

// String returns a log-safe summary. The AppKey is redacted.
func (c Credentials) String() string {
	return fmt.Sprintf("DevEUI=%s JoinEUI=%s AppKey=%s", c.DevEUI, c.JoinEUI, c.AppKey)
}

func decodeHex(s string, size int) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer("-", "", ":", "", " ", "").Replace(s)
	if len(s) != size*2 {
		return nil, fmt.Errorf("expected %d hex digits, got %d", size*2, len(s))
	}
	return hex.DecodeString(s)
}
