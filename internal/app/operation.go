package app

// Operation statuses stored in catalog_operations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks the CLI command being run. It lives in memory with ID=0
// until the command first mutates the catalog; only then is it persisted
// and given an id, which also versions the snapshot uploaded on Close.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the catalog.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. Once failed it stays failed.
func (op *Operation) Fail() {
	op.Status = StatusError
}
