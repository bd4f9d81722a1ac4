package hoard

import (
	"time"

	"hoard-go/internal/model"
)

// Clock abstracts time retrieval so catalog timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts row ID generation so tests are deterministic.
type IDGenerator interface {
	New() model.ID
}

// RandomIDGenerator produces random version 4 UUIDs.
type RandomIDGenerator struct{}

func (RandomIDGenerator) New() model.ID { return model.NewID() }
