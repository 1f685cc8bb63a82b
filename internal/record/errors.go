package record

import "errors"

// Error taxonomy shared across pipeline stages. Stages wrap these with
// fmt.Errorf("...: %w", ...) and callers classify with errors.Is.
var (
	// ErrSourceUnavailable is a transient I/O failure: network error, HTTP
	// error status, missing file.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSchemaMismatch is a structural incompatibility between the expected
	// and actual shape (missing response fields, CSV header drift,
	// incompatible destination columns).
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrParseError means content was present but unparsable (e.g. the page
	// layout changed and expected elements are gone).
	ErrParseError = errors.New("parse error")

	// ErrStorageUnavailable means the destination store could not be opened
	// or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoSourcesAvailable means every extractor failed; fatal for the run.
	ErrNoSourcesAvailable = errors.New("no sources available")
)
