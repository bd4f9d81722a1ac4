package hoard

import (
	"context"
	"fmt"
	"strings"

	"hoard-go/internal/model"
)

// AddCollection creates an empty collection.
func (s *Service) AddCollection(ctx context.Context, name string) (*model.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidArgument.New("collection name cannot be empty")
	}

	c := &model.Collection{ID: s.idgen.New(), Name: name, CreatedAt: s.clock.Now()}
	if err := s.catalog.InsertCollection(ctx, c); err != nil {
		return nil, fmt.Errorf("adding collection: %w", err)
	}

	s.logger.Info("collection added", "name", c.Name, "id", c.ID.String())
	return c, nil
}

// ListCollections returns all collections ordered by name.
func (s *Service) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	cs, err := s.catalog.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return cs, nil
}

// AddDisk registers the whole disk at devicePath under label. The serial
// number comes from the operating system, never from the caller.
func (s *Service) AddDisk(ctx context.Context, devicePath, label string) (*model.Disk, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrInvalidArgument.New("disk label cannot be empty")
	}

	ident, err := s.media.IdentifyDisk(devicePath)
	if err != nil {
		return nil, fmt.Errorf("identifying disk: %w", err)
	}

	d := &model.Disk{
		ID:           s.idgen.New(),
		SerialNumber: ident.SerialNumber,
		Label:        label,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.catalog.InsertDisk(ctx, d); err != nil {
		return nil, fmt.Errorf("adding disk: %w", err)
	}

	s.logger.Info("disk added", "device", devicePath, "serial", d.SerialNumber, "label", d.Label)
	return d, nil
}

// ListDisks returns all registered disks ordered by label.
func (s *Service) ListDisks(ctx context.Context) ([]*model.Disk, error) {
	ds, err := s.catalog.ListDisks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	return ds, nil
}

// AddPartition registers the partition at devicePath. Its parent disk must
// already be registered.
func (s *Service) AddPartition(ctx context.Context, devicePath string) (*model.Partition, error) {
	ident, err := s.media.IdentifyPartition(devicePath)
	if err != nil {
		return nil, fmt.Errorf("identifying partition: %w", err)
	}

	disk, err := s.catalog.FindDiskBySerial(ctx, ident.DiskSerial)
	if err != nil {
		return nil, fmt.Errorf("finding disk: %w", err)
	}
	if disk == nil {
		return nil, ErrUnknownDisk.New("disk with serial %s holding %s is not registered; add it first", ident.DiskSerial, devicePath)
	}

	p := &model.Partition{
		ID:        s.idgen.New(),
		DiskID:    disk.ID,
		UUID:      ident.UUID,
		Capacity:  ident.Capacity,
		CreatedAt: s.clock.Now(),
	}
	if err := s.catalog.InsertPartition(ctx, p); err != nil {
		return nil, fmt.Errorf("adding partition: %w", err)
	}

	s.logger.Info("partition added", "device", devicePath, "uuid", p.UUID, "disk", disk.Label)
	return p, nil
}

// ListPartitions returns all registered partitions ordered by UUID.
func (s *Service) ListPartitions(ctx context.Context) ([]*model.Partition, error) {
	ps, err := s.catalog.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	return ps, nil
}
