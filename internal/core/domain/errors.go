package domain

import "go.trai.ch/zerr"

var (
	// ErrDuplicateRule is returned when a rule is registered twice for the
	// same key.
	ErrDuplicateRule = zerr.New("duplicate rule")

	// ErrMissingRule is returned when a build demands a key for which no
	// rule is registered and the delegate cannot supply one.
	ErrMissingRule = zerr.New("no rule to build key")

	// ErrCycleDetected is returned when the dependency graph contains a
	// cycle reachable from the built key.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrBuildInProgress is returned when Build is invoked while another
	// build is still running on the same engine.
	ErrBuildInProgress = zerr.New("build already in progress")

	// ErrDatabaseAttached is returned when AttachDB is called twice, or
	// after rules have been registered.
	ErrDatabaseAttached = zerr.New("database already attached")

	// ErrLoadFailed is returned when the build description contained errors.
	ErrLoadFailed = zerr.New("unable to load build description")

	// ErrBuildFailed is returned when one or more commands failed or the
	// build reported errors.
	ErrBuildFailed = zerr.New("build had command failures")
)
