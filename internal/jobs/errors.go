package jobs

import "errors"

var (
	ErrMissingImage         = errors.New("docker image is required")
	ErrMissingConfiguration = errors.New("connector configuration is required")
	ErrMissingCatalog       = errors.New("configured catalog is required")

	// ErrActiveJobExists is returned by the singleton job kinds (check,
	// discover, spec) when the scope already has a non-terminal job.
	ErrActiveJobExists = errors.New("an active job already exists for this scope")
)
