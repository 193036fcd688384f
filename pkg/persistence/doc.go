// Package persistence provides runtime state persistence for LoRaWAN end-devices.
//
// The state file records whether the device has joined, the DevNonce counter
// and the uplink frame counter. Keeping the DevNonce across restarts matters
// for LoRaWAN 1.0.4 and later, where a network server rejects any JoinRequest
// whose DevNonce is not greater than the last one it accepted.
package persistence
