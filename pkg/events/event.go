package events

import (
	"time"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// EventType classifies lifecycle events.
type EventType int

const (
	ObjectCreated EventType = iota
	ScriptCreated
	HelpCreated
	MsgCreated
	ChannelCreated
	AccountCreated
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case ObjectCreated:
		return "object_created"
	case ScriptCreated:
		return "script_created"
	case HelpCreated:
		return "help_created"
	case MsgCreated:
		return "msg_created"
	case ChannelCreated:
		return "channel_created"
	case AccountCreated:
		return "account_created"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification that flows through the event bus.
// Factories publish one after each record is persisted; subscribers
// (registries, loggers, metrics) react without the factories knowing
// who listens.
type Event struct {
	Type EventType
	Ref  gamedb.DBRef // the record the event is about
	Key  string       // the record's key at creation time
	When time.Time
}
