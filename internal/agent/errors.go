package agent

import (
	"errors"
	"fmt"

	"github.com/skylink-io/skylink/pkg/models"
)

// ErrAgentBusy is returned under the reject busy policy when a command
// arrives while another one holds the drone's execution slot.
var ErrAgentBusy = errors.New("agent is executing another command")

// ErrNotExecuting is returned by Cancel when no command is in flight.
var ErrNotExecuting = errors.New("no command in flight")

// AlreadyExistsError is returned when initializing a drone that already
// has an agent.
type AlreadyExistsError struct {
	DroneID models.DroneID
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("agent for drone %s already exists", e.DroneID)
}

// NotFoundError is returned when looking up a drone with no agent.
type NotFoundError struct {
	DroneID models.DroneID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agent for drone %s", e.DroneID)
}
