// Package media resolves the OS-visible identity of disks and partitions.
// It is consulted only when media is registered, never by catalog queries.
package media

import (
	"fmt"
	"strings"

	"github.com/zeebo/errs"
)

var (
	ErrNoSerialNumber   = errs.Class("no serial number")
	ErrNoFilesystemUUID = errs.Class("no filesystem uuid")
	ErrDeviceNotFound   = errs.Class("device not found")
	ErrNotADisk         = errs.Class("not a disk")
	ErrNotAPartition    = errs.Class("not a partition")
)

// Device types reported by probers.
const (
	DevTypeDisk      = "disk"
	DevTypePartition = "partition"
)

// Attributes is what the operating system reports about one block device.
type Attributes struct {
	DevType  string
	Serial   string // disks only
	FSUUID   string // partitions only
	Capacity int64  // bytes
	// ParentSerial is the serial number of the disk holding a partition.
	ParentSerial string
}

// Prober queries the operating system for a block device's attributes.
type Prober interface {
	Probe(devicePath string) (*Attributes, error)
}

// DiskIdentity is the validated identity of a whole disk.
type DiskIdentity struct {
	DevicePath   string
	SerialNumber string
}

// PartitionIdentity is the validated identity of a partition.
type PartitionIdentity struct {
	DevicePath string
	UUID       string
	Capacity   int64
	DiskSerial string
}

// Registry validates and forwards what a Prober reports.
type Registry struct {
	prober Prober
}

// NewRegistry creates a Registry backed by prober.
func NewRegistry(prober Prober) *Registry {
	return &Registry{prober: prober}
}

// IdentifyDisk returns the serial number of the disk at devicePath.
func (r *Registry) IdentifyDisk(devicePath string) (*DiskIdentity, error) {
	attrs, err := r.probe(devicePath)
	if err != nil {
		return nil, err
	}
	if attrs.DevType != DevTypeDisk {
		return nil, ErrNotADisk.New("%s is a %s", devicePath, describe(attrs.DevType))
	}
	serial := strings.TrimSpace(attrs.Serial)
	if serial == "" {
		return nil, ErrNoSerialNumber.New("%s", devicePath)
	}
	return &DiskIdentity{DevicePath: devicePath, SerialNumber: serial}, nil
}

// IdentifyPartition returns the filesystem UUID, capacity and parent disk
// serial number of the partition at devicePath.
func (r *Registry) IdentifyPartition(devicePath string) (*PartitionIdentity, error) {
	attrs, err := r.probe(devicePath)
	if err != nil {
		return nil, err
	}
	if attrs.DevType != DevTypePartition {
		return nil, ErrNotAPartition.New("%s is a %s", devicePath, describe(attrs.DevType))
	}
	uuid := strings.TrimSpace(attrs.FSUUID)
	if uuid == "" {
		return nil, ErrNoFilesystemUUID.New("%s", devicePath)
	}
	if attrs.Capacity < 0 {
		return nil, fmt.Errorf("%s reports negative capacity %d", devicePath, attrs.Capacity)
	}
	parent := strings.TrimSpace(attrs.ParentSerial)
	if parent == "" {
		return nil, ErrNoSerialNumber.New("parent disk of %s", devicePath)
	}
	return &PartitionIdentity{
		DevicePath: devicePath,
		UUID:       uuid,
		Capacity:   attrs.Capacity,
		DiskSerial: parent,
	}, nil
}

func (r *Registry) probe(devicePath string) (*Attributes, error) {
	if devicePath == "" {
		return nil, ErrDeviceNotFound.New("empty device path")
	}
	attrs, err := r.prober.Probe(devicePath)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", devicePath, err)
	}
	return attrs, nil
}

func describe(devType string) string {
	if devType == "" {
		return "device of unknown type"
	}
	return devType
}
