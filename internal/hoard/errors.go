package hoard

import "github.com/zeebo/errs"

// Integrity errors. The catalog is left unchanged when any of these is
// returned; callers test for them with Class.Has.
var (
	ErrDuplicateName      = errs.Class("duplicate collection name")
	ErrDuplicateSerial    = errs.Class("duplicate disk serial number")
	ErrDuplicateLabel     = errs.Class("duplicate disk label")
	ErrDuplicateUUID      = errs.Class("duplicate partition uuid")
	ErrDuplicatePath      = errs.Class("duplicate path")
	ErrDuplicatePlacement = errs.Class("duplicate placement")
	ErrPathConflict       = errs.Class("path conflict")

	ErrUnknownCollection = errs.Class("unknown collection")
	ErrUnknownDisk       = errs.Class("unknown disk")
	ErrUnknownPartition  = errs.Class("unknown partition")
	ErrUnknownFile       = errs.Class("unknown file")

	ErrNotFound        = errs.Class("not found")
	ErrInvalidPath     = errs.Class("invalid path")
	ErrInvalidArgument = errs.Class("invalid argument")
)

// IsIntegrityError reports whether err is one of the caller-correctable
// integrity errors above.
func IsIntegrityError(err error) bool {
	for _, class := range []*errs.Class{
		&ErrDuplicateName, &ErrDuplicateSerial, &ErrDuplicateLabel, &ErrDuplicateUUID,
		&ErrDuplicatePath, &ErrDuplicatePlacement, &ErrPathConflict,
		&ErrUnknownCollection, &ErrUnknownDisk, &ErrUnknownPartition, &ErrUnknownFile,
	} {
		if class.Has(err) {
			return true
		}
	}
	return false
}
