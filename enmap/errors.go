package enmap

import (
	"errors"
	"strings"
)

var (
	// ErrNoMetadata is returned when a container holds no metadata document.
	ErrNoMetadata = errors.New("enmap: metadata document not found")
	// ErrUnclassified is returned when the container's files match no
	// processing level.
	ErrUnclassified = errors.New("enmap: files match no EnMAP product level")
	// ErrLevelMismatch is returned when the file names and the metadata
	// document disagree on the processing level.
	ErrLevelMismatch = errors.New("enmap: processing level mismatch")
	// ErrUnknownBand is returned for band names the product does not carry.
	ErrUnknownBand = errors.New("enmap: unknown band")
	// ErrNotSpectral is returned when geophysical values are requested for a
	// flag band.
	ErrNotSpectral = errors.New("enmap: band carries no geophysical scaling")
	// ErrSessionClosed is returned by reads on a closed session.
	ErrSessionClosed = errors.New("enmap: session closed")
	// ErrNoDecoder is returned when the build carries no raster decoder and
	// none was passed with WithOpener.
	ErrNoDecoder = errors.New("enmap: no raster decoder available")
)

// CloseError aggregates the failures of closing the resources of a session.
type CloseError struct {
	Errors []error
}

// Error implements the error interface.
func (e CloseError) Error() string {
	if len(e.Errors) == 0 {
		return ""
	}
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}
	return strings.Join(messages, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e CloseError) Unwrap() []error {
	return e.Errors
}
