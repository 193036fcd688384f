// Package sim provides a simulated LoRaWAN network and a MAC that talks to
// it, so the device can run end to end without a radio.
//
// Frames follow the LoRaWAN 1.0.x layout: JoinRequest and JoinAccept are
// protected by an AES-CMAC MIC under the AppKey, the JoinAccept is encrypted
// with the AppKey, and data frames carry a MIC under the NwkSKey with the
// FRMPayload encrypted under the AppSKey. Loss, rejection and transport
// failure are drawn from a seeded random source so runs are reproducible.
package sim
