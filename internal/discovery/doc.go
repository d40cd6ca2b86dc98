// Package discovery finds devices waiting to be paired on the local network.
//
// Devices in pairing mode advertise the "_batchpair._tcp" mDNS service with
// TXT records carrying their serial number ("sn=...") and state
// ("mode=pairing"). Older firmware omits the TXT serial and is recognised
// by its "bp-<serial>.local" hostname instead.
//
// # Discovery Process
//
//  1. Broadcasts mDNS queries on the local network
//  2. Listens for "_batchpair._tcp" advertisements
//  3. Extracts and normalises the serial number of each responder
//  4. Keeps one entry per serial, dropping devices not in pairing mode
//  5. Returns the devices found when the timeout expires
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(ctx, 10*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, serial := range discovery.Serials(devices) {
//	    controller.AddDevice(serial)
//	}
//
// Advertise publishes the same service, which the simulator uses to stand
// in for real hardware.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
