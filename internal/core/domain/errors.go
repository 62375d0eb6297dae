package domain

import "errors"

var (
	// ErrProjectNotFound covers upstream 404 and 403 responses; the catalog
	// answers 403 for private drafts.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProviderDisabled is returned once a provider's initial load failed
	// and it has been switched off for the rest of the session.
	ErrProviderDisabled = errors.New("imagery provider disabled for this session")

	// ErrTooManyResults is returned when an upstream reports its
	// result-count ceiling was hit.
	ErrTooManyResults = errors.New("too many results for query")

	// ErrUnknownProvider is returned for an unrecognized source name.
	ErrUnknownProvider = errors.New("unknown imagery provider")
)
