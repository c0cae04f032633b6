package world

import (
	"errors"
	"fmt"
)

// ErrHalted is returned by Run once a round has aborted.
var ErrHalted = errors.New("simulation halted")

// DuplicateAgentNameError reports two roster entries sharing a name.
type DuplicateAgentNameError struct {
	Name string
}

func (e *DuplicateAgentNameError) Error() string {
	return fmt.Sprintf("duplicate agent name %q", e.Name)
}
