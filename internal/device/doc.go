// Package device models the BLE central side of a session: the adapter's
// power state, the remote peripheral and its connection lifecycle, and the
// GATT services and characteristics discovered on it.
//
// The radio itself sits behind the Transport and Link interfaces:
//   - Transport publishes adapter state, scans, dials and resets the adapter
//   - Link is one live GATT client connection produced by Transport.Dial
//
// Peripheral, ServiceCatalog and Characteristic add the invariants the
// transport does not enforce: one outstanding connect per handle, hard
// per-operation deadlines, and discovered state that never outlives the
// connection it was discovered on.
package device
