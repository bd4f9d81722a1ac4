package database

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"

	"hoard-go/internal/hoard"
)

// uniqueViolations maps the column list SQLite names in a UNIQUE or PRIMARY
// KEY failure ("UNIQUE constraint failed: disks.label") to its error class.
var uniqueViolations = []struct {
	columns string
	class   *errs.Class
}{
	{"collections.name", &hoard.ErrDuplicateName},
	{"disks.serial_number", &hoard.ErrDuplicateSerial},
	{"disks.label", &hoard.ErrDuplicateLabel},
	{"partitions.uuid", &hoard.ErrDuplicateUUID},
	{"files.collection_id, files.path", &hoard.ErrDuplicatePath},
	{"file_placements.partition_id, file_placements.file_id", &hoard.ErrDuplicatePlacement},
}

// mapConstraintError converts a uniqueness violation into its typed
// integrity error. Anything else is returned unchanged.
func mapConstraintError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return err
	}
	msg := se.Error()
	for _, v := range uniqueViolations {
		if strings.HasSuffix(msg, v.columns) {
			return v.class.Wrap(err)
		}
	}
	return err
}
