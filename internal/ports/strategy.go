package ports

import (
	"context"
)

// EmergencyHandler is implemented by the strategy host. The engine calls it
// once it can no longer trust its own model of the venue.
type EmergencyHandler interface {
	// EnterEmergency halts trading. reason wraps ErrDesync or ErrBrokerFatal.
	EnterEmergency(ctx context.Context, reason error)
}
