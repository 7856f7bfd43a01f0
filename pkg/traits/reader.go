//go:generate mockgen -source reader.go -destination ../../internal/mocks/mock_traits.go -package mocks traits

package traits

import "iter"

// Reader is the read side of the trait store. The matching pipeline never writes traits.
// Implementations must be safe for concurrent reads when parallel rating is enabled.
type Reader interface {
	// TryGetTrait returns the value of the named trait on dataID, if present.
	TryGetTrait(dataID DataID, name string) (Value, bool)

	// GetAllWithTrait yields every data id currently holding the named trait.
	GetAllWithTrait(name string) iter.Seq2[DataID, Value]
}

// Versioned is implemented by stores that track modification revisions. The pipeline
// uses it to skip re-rating when nothing changed and to key its rating cache.
type Versioned interface {
	// Revision increases every time any trait is added, updated or removed.
	Revision() uint64

	// DataRevision increases every time a trait on dataID changes.
	DataRevision(dataID DataID) uint64
}
