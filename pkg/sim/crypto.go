package sim

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/jacobsa/crypto/cmac"

	"github.com/loranode/loranode-go/pkg/lorawan"
)

// Frame directions used in B0 and A_i blocks.
const (
	dirUp   byte = 0
	dirDown byte = 1
)

// SessionKeys are the keys derived from a successful join.
type SessionKeys struct {
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key
}

// computeMIC returns the first four bytes of AES-CMAC(key, data).
func computeMIC(key lorawan.AES128Key, data []byte) [4]byte {
	var mic [4]byte
	hash, err := cmac.New(key[:])
	if err != nil {
		// Only reachable with a key length other than 16, 24 or 32.
		panic(err)
	}
	hash.Write(data)
	copy(mic[:], hash.Sum(nil))
	return mic
}

// deriveSessionKeys computes NwkSKey and AppSKey as
// aes128_encrypt(AppKey, 0x0N | AppNonce | NetID | DevNonce | pad16).
func deriveSessionKeys(appKey lorawan.AES128Key, appNonce, netID [3]byte, devNonce uint16) SessionKeys {
	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		panic(err)
	}

	var in [aes.BlockSize]byte
	copy(in[1:4], appNonce[:])
	copy(in[4:7], netID[:])
	binary.LittleEndian.PutUint16(in[7:9], devNonce)

	var keys SessionKeys
	in[0] = 0x01
	block.Encrypt(keys.NwkSKey[:], in[:])
	in[0] = 0x02
	block.Encrypt(keys.AppSKey[:], in[:])
	return keys
}

// cryptFRMPayload encrypts or decrypts an FRMPayload. The operation is its
// own inverse.
func cryptFRMPayload(key lorawan.AES128Key, dir byte, devAddr, fcnt uint32, payload []byte) []byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}

	var a, s [aes.BlockSize]byte
	a[0] = 0x01
	a[5] = dir
	binary.LittleEndian.PutUint32(a[6:10], devAddr)
	binary.LittleEndian.PutUint32(a[10:14], fcnt)

	out := make([]byte, len(payload))
	for i := 0; i*aes.BlockSize < len(payload); i++ {
		a[15] = byte(i + 1)
		block.Encrypt(s[:], a[:])
		for j := 0; j < aes.BlockSize && i*aes.BlockSize+j < len(payload); j++ {
			out[i*aes.BlockSize+j] = payload[i*aes.BlockSize+j] ^ s[j]
		}
	}
	return out
}

// dataMIC computes the MIC of a data frame over B0 | msg.
func dataMIC(nwkSKey lorawan.AES128Key, dir byte, devAddr, fcnt uint32, msg []byte) [4]byte {
	b0 := make([]byte, aes.BlockSize, aes.BlockSize+len(msg))
	b0[0] = 0x49
	b0[5] = dir
	binary.LittleEndian.PutUint32(b0[6:10], devAddr)
	binary.LittleEndian.PutUint32(b0[10:14], fcnt)
	b0[15] = byte(len(msg))
	return computeMIC(nwkSKey, append(b0, msg...))
}
