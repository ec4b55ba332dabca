package index

// EventKind discriminates change-stream events.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventModify EventKind = "MODIFY"
	EventRemove EventKind = "REMOVE"
)

// ChangeEvent is one row-level change notification from the source
// collection's stream. Key is always consumed; After is consumed for
// INSERT/MODIFY. Before is carried for completeness but deletion relies on
// the key-based reverse lookup, not the old image, so redelivered events
// converge even when the old image is stale.
type ChangeEvent struct {
	Kind   EventKind         `json:"eventKind"`
	Key    map[string]string `json:"key"`
	Before map[string]string `json:"before,omitempty"`
	After  map[string]string `json:"after,omitempty"`
}
