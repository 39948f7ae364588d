package websocket

import (
	"strings"
	"time"
)

// Message types pushed to UI clients
const (
	TypeConnection             = "connection"
	TypeNotification           = "notification"
	TypeSnapshotConfigurations = "snapshot:configurations"
	TypeSnapshotDistribution   = "snapshot:distribution"
	TypeSnapshotHistory        = "snapshot:history"
	TypeSnapshotDataset        = "snapshot:dataset"
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// isSnapshot reports whether the latest message of this type is replayed
// to clients that connect later
func isSnapshot(msgType string) bool {
	return strings.HasPrefix(msgType, "snapshot:")
}
