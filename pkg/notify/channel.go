package notify

import (
	"context"

	"github.com/parley-labs/parley/pkg/contracts"
)

// Channel delivers events and tracks which participants are currently
// connected per session. The membership table is advisory only: the
// orchestrator queries it to decide whether to notify immediately, never
// as authoritative session state.
type Channel interface {
	Publish(ctx context.Context, ev Event) error
	Join(ctx context.Context, sessionID string, n contracts.ParticipantNumber) error
	Leave(ctx context.Context, sessionID string, n contracts.ParticipantNumber) error
	Connected(ctx context.Context, sessionID string) ([]contracts.ParticipantNumber, error)
}

// Subscriber is implemented by channels that can stream a session's events
// to a consumer (the HTTP event stream uses this when available).
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}
