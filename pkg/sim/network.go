package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/loranode/loranode-go/pkg/lorawan"
)

// Network errors.
var (
	ErrUnknownDevice  = errors.New("sim: device not provisioned")
	ErrUnknownDevAddr = errors.New("sim: unknown DevAddr")
	ErrDevNonceReplay = errors.New("sim: DevNonce already used")
	ErrFCntReplay     = errors.New("sim: frame counter not increasing")
)

// NetworkConfig configures the simulated network server.
type NetworkConfig struct {
	// NetID identifies the network. Written into every JoinAccept.
	NetID [3]byte

	// RejectProbability is the chance a valid JoinRequest is rejected.
	RejectProbability float64

	// NoAcceptProbability is the chance a JoinAccept is lost on the way down.
	NoAcceptProbability float64

	// Seed seeds the outcome draws. Zero uses the current time.
	Seed uint64
}

// JoinResult is the network's answer to a JoinRequest.
type JoinResult struct {
	Response lorawan.JoinResponse

	// Frame is the encrypted JoinAccept, set only for JoinSuccess.
	Frame []byte

	// Reason explains a rejection.
	Reason string
}

// ReceivedUplink is an uplink the network decoded.
type ReceivedUplink struct {
	DevEUI     lorawan.EUI64
	ReceivedAt time.Time
	DataUp
}

type deviceRecord struct {
	creds        lorawan.Credentials
	counterNonce bool
	usedNonces   map[uint16]bool
	lastNonce    int32

	devAddr uint32
	keys    SessionKeys
	fcntUp  int64
}

// Network is a single-region network server with one join server.
// It is safe for concurrent use.
type Network struct {
	mu      sync.Mutex
	config  NetworkConfig
	rng     *rand.Rand
	now     func() time.Time
	devices map[lorawan.EUI64]*deviceRecord
	byAddr  map[uint32]*deviceRecord
	uplinks []ReceivedUplink
	nextNwk uint32
}

// NewNetwork creates a simulated network.
func NewNetwork(config NetworkConfig) *Network {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Network{
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5bd1e995)),
		now:     time.Now,
		devices: make(map[lorawan.EUI64]*deviceRecord),
		byAddr:  make(map[uint32]*deviceRecord),
	}
}

// Provision registers a device. counterNonce selects LoRaWAN 1.0.4 DevNonce
// checking (strictly increasing) instead of a replay list.
func (n *Network) Provision(creds lorawan.Credentials, counterNonce bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices[creds.DevEUI] = &deviceRecord{
		creds:        creds,
		counterNonce: counterNonce,
		usedNonces:   make(map[uint16]bool),
		lastNonce:    -1,
		fcntUp:       -1,
	}
}

// HandleJoinRequest processes a JoinRequest frame. A malformed frame is an
// error; everything else is answered with a JoinResult.
func (n *Network) HandleJoinRequest(frame []byte) (JoinResult, error) {
	jr, err := ParseJoinRequest(frame)
	if err != nil {
		return JoinResult{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	dev, ok := n.devices[jr.DevEUI]
	if !ok {
		return reject(ErrUnknownDevice), nil
	}
	if dev.creds.JoinEUI != jr.JoinEUI {
		return reject(fmt.Errorf("JoinEUI %s not accepted", jr.JoinEUI)), nil
	}
	if err := VerifyJoinRequest(frame, dev.creds.AppKey); err != nil {
		return reject(err), nil
	}
	if dev.counterNonce && int32(jr.DevNonce) <= dev.lastNonce {
		return reject(fmt.Errorf("%w: %d <= %d", ErrDevNonceReplay, jr.DevNonce, dev.lastNonce)), nil
	}
	if !dev.counterNonce && dev.usedNonces[jr.DevNonce] {
		return reject(fmt.Errorf("%w: %d", ErrDevNonceReplay, jr.DevNonce)), nil
	}

	// The request reached the server, so its DevNonce is spent whatever
	// happens to the answer.
	dev.usedNonces[jr.DevNonce] = true
	dev.lastNonce = int32(jr.DevNonce)

	draw := n.rng.Float64()
	switch {
	case draw < n.config.RejectProbability:
		return JoinResult{Response: lorawan.JoinRejected, Reason: "rejected by network policy"}, nil
	case draw < n.config.RejectProbability+n.config.NoAcceptProbability:
		return JoinResult{Response: lorawan.NoJoinAccept}, nil
	}

	if dev.devAddr != 0 {
		delete(n.byAddr, dev.devAddr)
	}

	var appNonce [3]byte
	an := n.rng.Uint32()
	appNonce[0], appNonce[1], appNonce[2] = byte(an), byte(an>>8), byte(an>>16)

	n.nextNwk++
	ja := JoinAccept{
		AppNonce: appNonce,
		NetID:    n.config.NetID,
		DevAddr:  n.devAddrFor(n.nextNwk),
		RxDelay:  1,
	}

	dev.devAddr = ja.DevAddr
	dev.keys = deriveSessionKeys(dev.creds.AppKey, ja.AppNonce, ja.NetID, jr.DevNonce)
	dev.fcntUp = -1
	n.byAddr[ja.DevAddr] = dev

	return JoinResult{
		Response: lorawan.JoinSuccess,
		Frame:    MarshalJoinAccept(ja, dev.creds.AppKey),
	}, nil
}

// devAddrFor combines the 7-bit NwkID taken from the NetID with an address.
func (n *Network) devAddrFor(nwkAddr uint32) uint32 {
	nwkID := uint32(n.config.NetID[0] & 0x7f)
	return nwkID<<25 | nwkAddr&0x01ffffff
}

// HandleUplink verifies, decrypts and records an uplink frame.
func (n *Network) HandleUplink(frame []byte) (ReceivedUplink, error) {
	devAddr, fcnt16, err := DataUpHeader(frame)
	if err != nil {
		return ReceivedUplink{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	dev, ok := n.byAddr[devAddr]
	if !ok {
		return ReceivedUplink{}, fmt.Errorf("%w: %08X", ErrUnknownDevAddr, devAddr)
	}

	fcnt := reconstructFCnt(dev.fcntUp, fcnt16)
	if int64(fcnt) <= dev.fcntUp {
		return ReceivedUplink{}, fmt.Errorf("%w: %d <= %d", ErrFCntReplay, fcnt, dev.fcntUp)
	}

	up, err := ParseDataUp(frame, dev.keys, fcnt)
	if err != nil {
		return ReceivedUplink{}, err
	}
	dev.fcntUp = int64(fcnt)

	rx := ReceivedUplink{DevEUI: dev.creds.DevEUI, ReceivedAt: n.now(), DataUp: up}
	n.uplinks = append(n.uplinks, rx)
	return rx, nil
}

// Uplinks returns all uplinks received from devEUI.
func (n *Network) Uplinks(devEUI lorawan.EUI64) []ReceivedUplink {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []ReceivedUplink
	for _, u := range n.uplinks {
		if u.DevEUI == devEUI {
			out = append(out, u)
		}
	}
	return out
}

// Session returns the DevAddr and keys of a joined device.
func (n *Network) Session(devEUI lorawan.EUI64) (uint32, SessionKeys, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	dev, ok := n.devices[devEUI]
	if !ok || dev.devAddr == 0 {
		return 0, SessionKeys{}, false
	}
	return dev.devAddr, dev.keys, true
}

// reconstructFCnt picks the smallest 32-bit counter not below last whose
// low 16 bits match the received value. A result equal to last is a replay.
func reconstructFCnt(last int64, fcnt16 uint16) uint32 {
	if last < 0 {
		return uint32(fcnt16)
	}
	candidate := uint32(last)&0xffff0000 | uint32(fcnt16)
	if int64(candidate) < last {
		candidate += 0x10000
	}
	return candidate
}

func reject(err error) JoinResult {
	return JoinResult{Response: lorawan.JoinRejected, Reason: err.Error()}
}
