package hoard

import "hoard-go/internal/media"

// MediaRegistry resolves the stable identity of block devices. It is only
// consulted when disks and partitions are registered.
type MediaRegistry interface {
	IdentifyDisk(devicePath string) (*media.DiskIdentity, error)
	IdentifyPartition(devicePath string) (*media.PartitionIdentity, error)
}

var _ MediaRegistry = (*media.Registry)(nil)
