// Package uplink sends application payloads at a fixed interval once the
// device has joined.
//
// Each tick builds one message from a PayloadSource and hands it to the MAC.
// A failed send is logged, counted and dropped; it is never retried and
// never delays the next tick. The interval is measured from the end of one
// tick to the start of the next, so send latency is added to the period.
package uplink
