// Package device describes the accelerators a decoder can run on.
package device

import (
	"errors"
	"fmt"
)

// ErrNoDevice is returned when a device id does not name an enumerated device.
var ErrNoDevice = errors.New("device: no such device")

// ConfigInfo identifies one physical accelerator. DeviceName and ArchName are
// for display; identity is the PCI location.
type ConfigInfo struct {
	DeviceName  string `json:"device_name" yaml:"device_name"`
	ArchName    string `json:"architecture_name" yaml:"architecture_name"`
	PCIBusID    int    `json:"pci_bus_id" yaml:"pci_bus_id"`
	PCIDomainID int    `json:"pci_domain_id" yaml:"pci_domain_id"`
	PCIDeviceID int    `json:"pci_device_id" yaml:"pci_device_id"`
}

// Location is the PCI triple that identifies a physical device.
type Location struct {
	Domain int
	Bus    int
	Device int
}

func (l Location) String() string {
	return fmt.Sprintf("%04x:%02x:%02x", l.Domain, l.Bus, l.Device)
}

// Location returns the PCI triple of c.
func (c ConfigInfo) Location() Location {
	return Location{Domain: c.PCIDomainID, Bus: c.PCIBusID, Device: c.PCIDeviceID}
}

// SameDevice reports whether c and other sit at the same PCI location,
// regardless of their display strings.
func (c ConfigInfo) SameDevice(other ConfigInfo) bool {
	return c.Location() == other.Location()
}

// String formats c the way the decode tools print the selected device.
func (c ConfigInfo) String() string {
	return fmt.Sprintf("%s [%s] on PCI bus %d:%d.%d", c.DeviceName, c.ArchName, c.PCIBusID, c.PCIDomainID, c.PCIDeviceID)
}

// Pick returns devs[id] or ErrNoDevice.
func Pick(devs []ConfigInfo, id int) (ConfigInfo, error) {
	if id < 0 || id >= len(devs) {
		return ConfigInfo{}, fmt.Errorf("%w: id %d of %d", ErrNoDevice, id, len(devs))
	}
	return devs[id], nil
}

// Dedupe drops entries that repeat an earlier PCI location.
func Dedupe(devs []ConfigInfo) []ConfigInfo {
	seen := make(map[Location]bool, len(devs))
	out := devs[:0:0]
	for _, d := range devs {
		if seen[d.Location()] {
			continue
		}
		seen[d.Location()] = true
		out = append(out, d)
	}
	return out
}
