package tui

import "errors"

// ErrMissingGraphService is returned when the graph service is not provided.
var ErrMissingGraphService = errors.New("tui: graph service is required")

// ErrInvalidPorts is returned when ports validation fails.
var ErrInvalidPorts = errors.New("tui: invalid ports configuration")
