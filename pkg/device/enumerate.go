package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/user/videobridge/pkg/adapters/hip"
)

// DefaultSysfsRoot is where the amdkfd driver publishes its topology.
const DefaultSysfsRoot = "/sys/class/kfd/kfd/topology/nodes"

// Enumerator lists devices from the HIP runtime, falling back to the KFD
// topology in sysfs.
type Enumerator struct {
	// SysfsRoot overrides DefaultSysfsRoot.
	SysfsRoot string
	// DisableHIP skips the runtime and reads sysfs only.
	DisableHIP bool
}

// Enumerate lists devices with the default Enumerator.
func Enumerate() ([]ConfigInfo, error) {
	return (&Enumerator{}).Enumerate()
}

// Select returns device id from the default Enumerator.
func Select(id int) (ConfigInfo, error) {
	return (&Enumerator{}).Select(id)
}

// Enumerate lists visible devices. No devices is not an error.
func (e *Enumerator) Enumerate() ([]ConfigInfo, error) {
	root := e.SysfsRoot
	if root == "" {
		root = DefaultSysfsRoot
	}
	kfd, kfdErr := EnumerateKFD(root)

	if !e.DisableHIP && hip.Available() {
		devs, err := enumerateHIP()
		if err == nil && len(devs) > 0 {
			// The runtime does not report the gfx target; take it from sysfs.
			for i := range devs {
				for _, k := range kfd {
					if k.SameDevice(devs[i]) {
						devs[i].ArchName = k.ArchName
					}
				}
			}
			return devs, nil
		}
	}
	return kfd, kfdErr
}

// Select returns device id.
func (e *Enumerator) Select(id int) (ConfigInfo, error) {
	devs, err := e.Enumerate()
	if err != nil {
		return ConfigInfo{}, err
	}
	return Pick(devs, id)
}

func enumerateHIP() ([]ConfigInfo, error) {
	n, err := hip.DeviceCount()
	if err != nil {
		return nil, err
	}
	devs := make([]ConfigInfo, 0, n)
	for i := 0; i < n; i++ {
		p, err := hip.Props(i)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		devs = append(devs, ConfigInfo{
			DeviceName:  p.Name,
			ArchName:    p.Arch,
			PCIBusID:    p.Bus,
			PCIDomainID: p.Domain,
			PCIDeviceID: p.Device,
		})
	}
	return devs, nil
}

// EnumerateKFD reads GPU nodes from a KFD topology directory. CPU nodes
// (no SIMDs) are skipped. A missing root yields no devices.
func EnumerateKFD(root string) ([]ConfigInfo, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("device: read topology: %w", err)
	}

	type node struct {
		index int
		info  ConfigInfo
	}
	var nodes []node
	for _, entry := range entries {
		idx, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		props, err := readProperties(filepath.Join(dir, "properties"))
		if err != nil {
			return nil, fmt.Errorf("device: node %d: %w", idx, err)
		}
		if props["simd_count"] == 0 {
			continue
		}

		arch := GfxArch(props["gfx_target_version"])
		name := readName(filepath.Join(dir, "name"))
		if name == "" {
			name = "AMD GPU " + arch
		}
		loc := props["location_id"]
		nodes = append(nodes, node{
			index: idx,
			info: ConfigInfo{
				DeviceName:  name,
				ArchName:    arch,
				PCIBusID:    int(loc >> 8),
				PCIDomainID: int(props["domain"]),
				PCIDeviceID: int((loc >> 3) & 0x1f),
			},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
	devs := make([]ConfigInfo, len(nodes))
	for i, n := range nodes {
		devs[i] = n.info
	}
	return Dedupe(devs), nil
}

// GfxArch converts a KFD gfx_target_version (major*10000 + minor*100 +
// stepping) to the LLVM target name, e.g. 90010 -> gfx90a.
func GfxArch(version int64) string {
	if version <= 0 {
		return "unknown"
	}
	major := version / 10000
	minor := (version / 100) % 100
	step := version % 100
	return fmt.Sprintf("gfx%d%d%x", major, minor, step)
}

func readProperties(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]int64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		props[fields[0]] = v
	}
	return props, sc.Err()
}

func readName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
