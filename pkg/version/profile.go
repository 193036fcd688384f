package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// DevNonceMode describes how a device picks the DevNonce of a JoinRequest.
type DevNonceMode string

// DevNonce modes.
const (
	DevNonceRandom  DevNonceMode = "random"
	DevNonceCounter DevNonceMode = "counter"
)

// Profile describes the join behavior of a LoRaWAN MAC version.
type Profile struct {
	Version     string       `yaml:"version"`
	Description string       `yaml:"description"`
	DevNonce    DevNonceMode `yaml:"dev_nonce"`
	JoinAccept  JoinAccept   `yaml:"join_accept"`
	FCntWidth   int          `yaml:"fcnt_width"`
}

// JoinAccept holds the receive window delays after a JoinRequest.
type JoinAccept struct {
	Delay1Seconds int `yaml:"delay1_s"`
	Delay2Seconds int `yaml:"delay2_s"`
}

// Delay1 returns the RX1 delay for a JoinAccept.
func (j JoinAccept) Delay1() time.Duration {
	return time.Duration(j.Delay1Seconds) * time.Second
}

// Delay2 returns the RX2 delay for a JoinAccept.
func (j JoinAccept) Delay2() time.Duration {
	return time.Duration(j.Delay2Seconds) * time.Second
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Profile)
)

// LoadProfile loads the profile for a MAC version string (e.g. "1.0.4").
func LoadProfile(ver string) (*Profile, error) {
	v, err := Parse(ver)
	if err != nil {
		return nil, err
	}
	key := v.String()

	cacheMu.RLock()
	if p, ok := cache[key]; ok {
		cacheMu.RUnlock()
		return p, nil
	}
	cacheMu.RUnlock()

	data, err := profileFS.ReadFile("profiles/" + key + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("MAC version %q not supported: %w", ver, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", key, err)
	}
	if err := p.validate(v); err != nil {
		return nil, fmt.Errorf("profile %q: %w", key, err)
	}

	cacheMu.Lock()
	cache[key] = &p
	cacheMu.Unlock()

	return &p, nil
}

// LoadCurrentProfile loads the profile for the default MAC version.
func LoadCurrentProfile() (*Profile, error) {
	return LoadProfile(Current)
}

// AvailableProfiles returns the version strings of all embedded profiles,
// oldest first.
func AvailableProfiles() ([]string, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}

	var versions []MACVersion
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		v, err := Parse(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) < 0
	})

	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out, nil
}

func (p *Profile) validate(v MACVersion) error {
	if p.Version != v.String() {
		return fmt.Errorf("version field %q does not match file name", p.Version)
	}
	switch p.DevNonce {
	case DevNonceRandom, DevNonceCounter:
	default:
		return fmt.Errorf("unknown dev_nonce mode %q", p.DevNonce)
	}
	if (p.DevNonce == DevNonceCounter) != v.CounterDevNonce() {
		return fmt.Errorf("dev_nonce mode %q inconsistent with version", p.DevNonce)
	}
	if p.JoinAccept.Delay1Seconds <= 0 || p.JoinAccept.Delay2Seconds <= p.JoinAccept.Delay1Seconds {
		return fmt.Errorf("invalid join accept delays %d/%d", p.JoinAccept.Delay1Seconds, p.JoinAccept.Delay2Seconds)
	}
	return nil
}
