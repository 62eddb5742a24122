package meta

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldMissing matches every FieldMissingError.
	ErrFieldMissing = errors.New("meta: metadata field missing")
	// ErrFieldMalformed matches every FieldMalformedError.
	ErrFieldMalformed = errors.New("meta: metadata field malformed")
	// ErrUnknownProcessingLevel is returned for level values other than L1B, L1C and L2A.
	ErrUnknownProcessingLevel = errors.New("meta: unknown processing level")
	// ErrIndexOutOfRange is returned by band-indexed accessors.
	ErrIndexOutOfRange = errors.New("meta: band index out of range")
	// ErrFileNotFound is returned when a logical key has no declared file.
	ErrFileNotFound = errors.New("meta: product file not found")
	// ErrBandCountMismatch is returned when the merged channel count differs
	// from the VNIR and SWIR channel counts.
	ErrBandCountMismatch = errors.New("meta: spectral band counts disagree")
)

// FieldMissingError reports a required node that is absent from the document.
type FieldMissingError struct {
	Path string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("meta: metadata field missing: %s", e.Path)
}

// Is lets errors.Is match ErrFieldMissing.
func (e *FieldMissingError) Is(target error) bool {
	return target == ErrFieldMissing
}

// FieldMalformedError reports a node whose text cannot be converted.
type FieldMalformedError struct {
	Path string
	Raw  string
	Err  error
}

func (e *FieldMalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("meta: metadata field %s malformed (%q): %v", e.Path, e.Raw, e.Err)
	}
	return fmt.Sprintf("meta: metadata field %s malformed (%q)", e.Path, e.Raw)
}

// Is lets errors.Is match ErrFieldMalformed.
func (e *FieldMalformedError) Is(target error) bool {
	return target == ErrFieldMalformed
}

func (e *FieldMalformedError) Unwrap() error {
	return e.Err
}
