package text

import "errors"

var (
	// ErrDecodeFailure is returned when raw bytes cannot be turned into text.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrUnsupportedFormat is returned for markup (XML/XHTML) input.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrBadContainer is returned when a ZIP archive cannot be opened.
	ErrBadContainer = errors.New("bad container")

	// ErrNoTextInContainer is returned when a ZIP archive has no .txt entry.
	ErrNoTextInContainer = errors.New("no text entry in container")
)
