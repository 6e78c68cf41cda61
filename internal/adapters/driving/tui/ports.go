package tui

import (
	"fmt"

	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
)

// Ports groups the driving ports the progress view reads from.
type Ports struct {
	// Graphs reports pipeline status and history.
	Graphs driving.GraphService
}

// Validate checks that all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Graphs == nil {
		return fmt.Errorf("%w: %w", ErrInvalidPorts, ErrMissingGraphService)
	}
	return nil
}
