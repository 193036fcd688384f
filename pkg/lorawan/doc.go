// Package lorawan defines the device-side vocabulary shared by the join
// coordinator, the uplink scheduler and the MAC implementations they drive.
//
// The package deliberately stops at the MAC boundary. Channel plans, data
// rates, frame encryption and radio drivers live behind the MAC interface:
//
//	type MAC interface {
//	    Join(ctx context.Context, creds Credentials) (JoinResponse, error)
//	    Send(ctx context.Context, payload []byte, port uint8, confirmed bool) error
//	}
//
// # Credentials
//
// OTAA credentials are fixed-length byte strings: DevEUI and JoinEUI (AppEUI
// in LoRaWAN 1.0.x) are 8 bytes, AppKey is 16 bytes. They are written and
// parsed as big-endian hex, the form network servers display them in.
//
// # Ports
//
// Application payloads use FPort 1..223. Port 0 carries MAC commands and
// 224..255 are reserved, so neither is accepted for an UplinkMessage.
package lorawan
