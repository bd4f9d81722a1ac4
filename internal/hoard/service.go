package hoard

import (
	"context"
	"fmt"

	"hoard-go/internal/digest"
	"hoard-go/internal/model"
)

// CorruptPolicy decides what happens when a file looks like an archive but
// its stream cannot be parsed to the end.
type CorruptPolicy string

const (
	// CorruptOpaque catalogs the file with no archive entries and logs a warning.
	CorruptOpaque CorruptPolicy = "opaque"
	// CorruptReject fails the ingest and leaves the catalog unchanged.
	CorruptReject CorruptPolicy = "reject"
)

// ParseCorruptPolicy validates a policy name from configuration.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch p := CorruptPolicy(s); p {
	case CorruptOpaque, CorruptReject:
		return p, nil
	case "":
		return CorruptOpaque, nil
	default:
		return "", ErrInvalidArgument.New("unknown corrupt archive policy %q", s)
	}
}

// Options tune ingestion.
type Options struct {
	// Algorithms computed for every ingested file. Defaults to digest.DefaultAlgorithms.
	Algorithms []digest.Algorithm
	// InspectArchives enables archive detection and entry listing.
	InspectArchives bool
	CorruptPolicy   CorruptPolicy
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Algorithms:      digest.DefaultAlgorithms,
		InspectArchives: true,
		CorruptPolicy:   CorruptOpaque,
	}
}

// Service is the orchestration layer that coordinates the catalog, media
// identification and ingestion to perform the operations the CLI needs.
type Service struct {
	catalog Catalog
	media   MediaRegistry
	fsmgr   FilesystemManager
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	opts    Options
}

// NewService creates a new Service with the provided dependencies.
func NewService(catalog Catalog, media MediaRegistry, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = digest.DefaultAlgorithms
	}
	if opts.CorruptPolicy == "" {
		opts.CorruptPolicy = CorruptOpaque
	}
	return &Service{
		catalog: catalog,
		media:   media,
		fsmgr:   fsmgr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		opts:    opts,
	}
}

// collection resolves a collection name, failing with ErrUnknownCollection.
func (s *Service) collection(ctx context.Context, name string) (*model.Collection, error) {
	c, err := s.catalog.FindCollectionByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	if c == nil {
		return nil, ErrUnknownCollection.New("%s", name)
	}
	return c, nil
}

// partition resolves a partition UUID, failing with ErrUnknownPartition.
func (s *Service) partition(ctx context.Context, uuid string) (*model.Partition, error) {
	p, err := s.catalog.FindPartitionByUUID(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("finding partition: %w", err)
	}
	if p == nil {
		return nil, ErrUnknownPartition.New("%s", uuid)
	}
	return p, nil
}
