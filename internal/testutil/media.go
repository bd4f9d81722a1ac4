package testutil

import (
	"errors"

	"hoard-go/internal/media"
)

// FakeProber reports fixed attributes per device path.
type FakeProber map[string]*media.Attributes

func (p FakeProber) Probe(devicePath string) (*media.Attributes, error) {
	attrs, ok := p[devicePath]
	if !ok {
		return nil, media.ErrDeviceNotFound.New("%s", devicePath)
	}
	return attrs, nil
}

// FailingProber fails every probe and counts the calls.
type FailingProber struct {
	Calls int
}

var ErrProbeFailed = errors.New("probe failed")

func (p *FailingProber) Probe(string) (*media.Attributes, error) {
	p.Calls++
	return nil, ErrProbeFailed
}

// NewTestMediaRegistry returns a registry knowing disk /dev/sda (SN123)
// with partition /dev/sda1 (P-1, 1000000 bytes), and disk /dev/sdb (SN456)
// with partition /dev/sdb1 (P-2).
func NewTestMediaRegistry() *media.Registry {
	return media.NewRegistry(FakeProber{
		"/dev/sda":  {DevType: media.DevTypeDisk, Serial: "SN123", Capacity: 2000000},
		"/dev/sda1": {DevType: media.DevTypePartition, FSUUID: "P-1", Capacity: 1000000, ParentSerial: "SN123"},
		"/dev/sdb":  {DevType: media.DevTypeDisk, Serial: "SN456", Capacity: 4000000},
		"/dev/sdb1": {DevType: media.DevTypePartition, FSUUID: "P-2", Capacity: 3000000, ParentSerial: "SN456"},
	})
}
