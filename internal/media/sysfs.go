package media

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const sectorSize = 512

// SysfsProber reads block device attributes from sysfs and the udev
// database. It never mounts or opens the device itself.
type SysfsProber struct {
	sysRoot  string
	udevRoot string
	devNum   func(devicePath string) (major, minor uint32, err error)
}

// NewSysfsProber creates a prober rooted at the given sysfs and udev data
// directories (normally /sys and /run/udev/data).
func NewSysfsProber(sysRoot, udevRoot string) *SysfsProber {
	return &SysfsProber{
		sysRoot:  sysRoot,
		udevRoot: udevRoot,
		devNum:   statDevNum,
	}
}

// Probe implements Prober.
func (p *SysfsProber) Probe(devicePath string) (*Attributes, error) {
	major, minor, err := p.devNum(devicePath)
	if err != nil {
		return nil, err
	}
	num := fmt.Sprintf("%d:%d", major, minor)

	sysDir, err := filepath.EvalSymlinks(filepath.Join(p.sysRoot, "dev", "block", num))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDeviceNotFound.New("no sysfs entry for %s (%s)", devicePath, num)
		}
		return nil, fmt.Errorf("resolving sysfs entry: %w", err)
	}

	props, err := p.udevProperties(num)
	if err != nil {
		return nil, err
	}

	attrs := &Attributes{DevType: props["DEVTYPE"]}
	if attrs.DevType == "" {
		attrs.DevType = DevTypeDisk
		if exists(filepath.Join(sysDir, "partition")) {
			attrs.DevType = DevTypePartition
		}
	}

	sectors, err := readInt(filepath.Join(sysDir, "size"))
	if err != nil {
		return nil, fmt.Errorf("reading device size: %w", err)
	}
	attrs.Capacity = sectors * sectorSize

	switch attrs.DevType {
	case DevTypeDisk:
		attrs.Serial = serialFrom(props)
	case DevTypePartition:
		attrs.FSUUID = props["ID_FS_UUID"]
		parentNum, err := readTrimmed(filepath.Join(filepath.Dir(sysDir), "dev"))
		if err != nil {
			return nil, fmt.Errorf("reading parent disk of %s: %w", devicePath, err)
		}
		parentProps, err := p.udevProperties(parentNum)
		if err != nil {
			return nil, err
		}
		attrs.ParentSerial = serialFrom(parentProps)
	}
	return attrs, nil
}

// udevProperties parses the E: lines of /run/udev/data/b<major>:<minor>.
// A missing file yields no properties.
func (p *SysfsProber) udevProperties(num string) (map[string]string, error) {
	props := make(map[string]string)
	f, err := os.Open(filepath.Join(p.udevRoot, "b"+num))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return props, nil
		}
		return nil, fmt.Errorf("opening udev data: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "E:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok {
			props[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading udev data: %w", err)
	}
	return props, nil
}

func serialFrom(props map[string]string) string {
	if s := props["ID_SERIAL"]; s != "" {
		return s
	}
	return props["ID_SERIAL_SHORT"]
}

func statDevNum(devicePath string) (uint32, uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(devicePath, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return 0, 0, ErrDeviceNotFound.New("%s", devicePath)
		}
		return 0, 0, fmt.Errorf("stat %s: %w", devicePath, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 0, 0, ErrDeviceNotFound.New("%s is not a block device", devicePath)
	}
	rdev := uint64(st.Rdev)
	return unix.Major(rdev), unix.Minor(rdev), nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int64, error) {
	s, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
