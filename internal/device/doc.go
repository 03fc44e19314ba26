// Package device defines the platform-facing Bluetooth Low Energy (BLE) abstractions
// shared by the scanner and the connection manager.
//
// The package holds no platform code. It describes:
//   - The Adapter used to scan for advertisements and resolve remote peripherals
//   - Scan settings (service UUID filters, scan mode, batching delay)
//   - Connected client handles and their characteristics
//   - Connection and scan error types, with normalization of library messages
//
// Concrete bindings live in sub-packages (see internal/device/go-ble).
package device
