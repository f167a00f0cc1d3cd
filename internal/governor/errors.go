package governor

import "errors"

var (
	// ErrNotInitialized is returned by LoadModel/Execute before Init.
	ErrNotInitialized = errors.New("governor: not initialized")
	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("governor: already initialized")
	// ErrNotLoaded is returned by Execute before LoadModel.
	ErrNotLoaded = errors.New("governor: model not loaded")
	// ErrInvalidArgument is returned for null/empty required inputs.
	ErrInvalidArgument = errors.New("governor: invalid argument")
	// ErrConcurrentExecute is returned when Execute is called while
	// another Execute invocation against the same Governor is in
	// flight — concurrent execute invocations are unsupported.
	ErrConcurrentExecute = errors.New("governor: concurrent execute invocations are unsupported")
	// ErrTornDown is returned by any operation after Cleanup.
	ErrTornDown = errors.New("governor: torn down")
)
