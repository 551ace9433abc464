package authguard

import "errors"

var (
	// ErrConfigInvalid reports a configuration problem at Build time.
	// It is the only class of failure surfaced as an error from setup;
	// runtime backend trouble is absorbed by the cache facade.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrBuilderReused is returned when Build is called twice on one Builder.
	ErrBuilderReused = errors.New("builder already used")
	// ErrGuardClosed is returned by operations invoked after Close.
	ErrGuardClosed = errors.New("guard closed")
)
