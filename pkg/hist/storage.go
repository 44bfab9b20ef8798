package hist

import (
	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Storage selects how bin contents are accumulated
type Storage string

const (
	// StorageWeight keeps the sum of weights and the sum of squared weights
	StorageWeight Storage = "weight"
	// StorageDouble keeps the sum of weights
	StorageDouble Storage = "double"
	// StorageInt64 keeps integer counts and rejects non-unit weights
	StorageInt64 Storage = "int64"
)

// ParseStorage validates a storage mode name. The empty string selects
// StorageWeight.
func ParseStorage(s string) (Storage, error) {
	switch Storage(s) {
	case "":
		return StorageWeight, nil
	case StorageWeight, StorageDouble, StorageInt64:
		return Storage(s), nil
	}
	return "", errors.Newf(errors.ErrorTypeStorage, "unknown storage mode %q", s)
}

// tracksVariance reports whether sums of squared weights are kept
func (s Storage) tracksVariance() bool {
	return s == StorageWeight
}
