package sim

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/loranode/loranode-go/pkg/lorawan"
)

// MHDR message types.
const (
	MTypeJoinRequest   uint8 = 0x00
	MTypeJoinAccept    uint8 = 0x20
	MTypeUnconfirmedUp uint8 = 0x40
	MTypeConfirmedUp   uint8 = 0x80
)

// Frame sizes in bytes.
const (
	JoinRequestSize = 23
	JoinAcceptSize  = 17
	dataHeaderSize  = 8
	micSize         = 4
)

// Frame errors.
var (
	ErrFrameTooShort = errors.New("sim: frame too short")
	ErrWrongMType    = errors.New("sim: unexpected message type")
	ErrMICMismatch   = errors.New("sim: MIC mismatch")
)

// MType returns the message type bits of a frame's MHDR.
func MType(frame []byte) uint8 {
	if len(frame) == 0 {
		return 0xff
	}
	return frame[0] & 0xe0
}

// JoinRequest is the body of an OTAA JoinRequest.
type JoinRequest struct {
	JoinEUI  lorawan.EUI64
	DevEUI   lorawan.EUI64
	DevNonce uint16
}

// MarshalJoinRequest encodes jr and appends a MIC computed under appKey.
// EUIs are written least significant byte first.
func MarshalJoinRequest(jr JoinRequest, appKey lorawan.AES128Key) []byte {
	buf := make([]byte, 0, JoinRequestSize)
	buf = append(buf, MTypeJoinRequest)
	buf = append(buf, reversed(jr.JoinEUI[:])...)
	buf = append(buf, reversed(jr.DevEUI[:])...)
	buf = binary.LittleEndian.AppendUint16(buf, jr.DevNonce)
	mic := computeMIC(appKey, buf)
	return append(buf, mic[:]...)
}

// ParseJoinRequest decodes a JoinRequest without checking its MIC.
func ParseJoinRequest(frame []byte) (JoinRequest, error) {
	if len(frame) != JoinRequestSize {
		return JoinRequest{}, fmt.Errorf("%w: join request is %d bytes", ErrFrameTooShort, len(frame))
	}
	if MType(frame) != MTypeJoinRequest {
		return JoinRequest{}, ErrWrongMType
	}

	var jr JoinRequest
	copy(jr.JoinEUI[:], reversed(frame[1:9]))
	copy(jr.DevEUI[:], reversed(frame[9:17]))
	jr.DevNonce = binary.LittleEndian.Uint16(frame[17:19])
	return jr, nil
}

// VerifyJoinRequest checks the MIC of a JoinRequest frame.
func VerifyJoinRequest(frame []byte, appKey lorawan.AES128Key) error {
	if len(frame) != JoinRequestSize {
		return ErrFrameTooShort
	}
	mic := computeMIC(appKey, frame[:JoinRequestSize-micSize])
	if subtle.ConstantTimeCompare(mic[:], frame[JoinRequestSize-micSize:]) != 1 {
		return ErrMICMismatch
	}
	return nil
}

// JoinAccept is the body of a JoinAccept.
type JoinAccept struct {
	AppNonce   [3]byte
	NetID      [3]byte
	DevAddr    uint32
	DLSettings uint8
	RxDelay    uint8
}

// MarshalJoinAccept encodes ja, appends the MIC and encrypts the result with
// appKey. The network uses the AES decrypt operation so the device only
// needs AES encrypt to recover the plaintext.
func MarshalJoinAccept(ja JoinAccept, appKey lorawan.AES128Key) []byte {
	plain := make([]byte, 0, JoinAcceptSize)
	plain = append(plain, MTypeJoinAccept)
	plain = append(plain, ja.AppNonce[:]...)
	plain = append(plain, ja.NetID[:]...)
	plain = binary.LittleEndian.AppendUint32(plain, ja.DevAddr)
	plain = append(plain, ja.DLSettings, ja.RxDelay)
	mic := computeMIC(appKey, plain)
	plain = append(plain, mic[:]...)

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		panic(err)
	}
	frame := make([]byte, JoinAcceptSize)
	frame[0] = MTypeJoinAccept
	block.Decrypt(frame[1:], plain[1:])
	return frame
}

// ParseJoinAccept decrypts a JoinAccept frame and verifies its MIC.
func ParseJoinAccept(frame []byte, appKey lorawan.AES128Key) (JoinAccept, error) {
	if len(frame) != JoinAcceptSize {
		return JoinAccept{}, fmt.Errorf("%w: join accept is %d bytes", ErrFrameTooShort, len(frame))
	}
	if MType(frame) != MTypeJoinAccept {
		return JoinAccept{}, ErrWrongMType
	}

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return JoinAccept{}, err
	}
	plain := make([]byte, JoinAcceptSize)
	plain[0] = frame[0]
	block.Encrypt(plain[1:], frame[1:])

	mic := computeMIC(appKey, plain[:JoinAcceptSize-micSize])
	if subtle.ConstantTimeCompare(mic[:], plain[JoinAcceptSize-micSize:]) != 1 {
		return JoinAccept{}, ErrMICMismatch
	}

	var ja JoinAccept
	copy(ja.AppNonce[:], plain[1:4])
	copy(ja.NetID[:], plain[4:7])
	ja.DevAddr = binary.LittleEndian.Uint32(plain[7:11])
	ja.DLSettings = plain[11]
	ja.RxDelay = plain[12]
	return ja, nil
}

// DataUp is a decoded uplink data frame.
type DataUp struct {
	DevAddr   uint32
	FCnt      uint32
	Port      uint8
	Confirmed bool
	Payload   []byte
}

// MarshalDataUp encodes an uplink, encrypting the payload and appending the
// MIC. Only the low 16 bits of FCnt go on the air.
func MarshalDataUp(up DataUp, keys SessionKeys) []byte {
	mtype := MTypeUnconfirmedUp
	if up.Confirmed {
		mtype = MTypeConfirmedUp
	}

	buf := make([]byte, 0, dataHeaderSize+len(up.Payload)+micSize)
	buf = append(buf, mtype)
	buf = binary.LittleEndian.AppendUint32(buf, up.DevAddr)
	buf = append(buf, 0x00) // FCtrl: no ADR, no ACK, no FOpts
	buf = binary.LittleEndian.AppendUint16(buf, uint16(up.FCnt))
	buf = append(buf, up.Port)
	buf = append(buf, cryptFRMPayload(keys.AppSKey, dirUp, up.DevAddr, up.FCnt, up.Payload)...)

	mic := dataMIC(keys.NwkSKey, dirUp, up.DevAddr, up.FCnt, buf)
	return append(buf, mic[:]...)
}

// DataUpHeader returns the DevAddr and 16-bit FCnt of an uplink frame.
func DataUpHeader(frame []byte) (devAddr uint32, fcnt16 uint16, err error) {
	if len(frame) < dataHeaderSize+1+micSize {
		return 0, 0, ErrFrameTooShort
	}
	if t := MType(frame); t != MTypeUnconfirmedUp && t != MTypeConfirmedUp {
		return 0, 0, ErrWrongMType
	}
	return binary.LittleEndian.Uint32(frame[1:5]), binary.LittleEndian.Uint16(frame[6:8]), nil
}

// ParseDataUp verifies and decrypts an uplink frame. fcnt is the full 32-bit
// frame counter the receiver reconstructed from the 16 bits on the air.
func ParseDataUp(frame []byte, keys SessionKeys, fcnt uint32) (DataUp, error) {
	devAddr, fcnt16, err := DataUpHeader(frame)
	if err != nil {
		return DataUp{}, err
	}
	if uint16(fcnt) != fcnt16 {
		return DataUp{}, fmt.Errorf("sim: frame counter %d does not match %d on the air", fcnt, fcnt16)
	}

	body := frame[:len(frame)-micSize]
	mic := dataMIC(keys.NwkSKey, dirUp, devAddr, fcnt, body)
	if subtle.ConstantTimeCompare(mic[:], frame[len(frame)-micSize:]) != 1 {
		return DataUp{}, ErrMICMismatch
	}

	return DataUp{
		DevAddr:   devAddr,
		FCnt:      fcnt,
		Port:      frame[dataHeaderSize],
		Confirmed: MType(frame) == MTypeConfirmedUp,
		Payload:   cryptFRMPayload(keys.AppSKey, dirUp, devAddr, fcnt, body[dataHeaderSize+1:]),
	}, nil
}

func reversed(b []byte) []byte {
	out := slices.Clone(b)
	slices.Reverse(out)
	return out
}
