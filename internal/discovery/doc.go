// Package discovery finds devices on a shared LAN with mDNS.
//
// When the device has joined the operator's network its address is no
// longer the fixed hotspot gateway. Devices answer "_http._tcp" browses
// with their station hostname, which defaults to SmartShabat-xxxx where
// xxxx is the last four hex digits of the MAC. The hostname pattern can be
// replaced for renamed devices.
//
// # Usage
//
//	s := discovery.NewScanner()
//	devices, err := s.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Name, d.Address())
//	}
//
// # Network Requirements
//
// Multicast must reach the local segment and UDP port 5353 must be open.
package discovery
