package session

// ActiveSetKey is the set of session ids believed to be live.
const ActiveSetKey = "active_sessions"

const (
	fieldCreatedAt    = "created_at"
	fieldLastActivity = "last_activity"
	fieldMessageCount = "message_count"
	fieldStatus       = "status"
)

// MessagesKey is the list of a session's messages, newest first.
func MessagesKey(id string) string { return "session:" + id + ":messages" }

// MetaKey is the metadata hash of a session.
func MetaKey(id string) string { return "session:" + id + ":meta" }

// ParticipantsKey is the hash of participant snapshots keyed by user id.
func ParticipantsKey(id string) string { return "session:" + id + ":participants" }

func sessionKeys(id string) []string {
	return []string{MessagesKey(id), MetaKey(id), ParticipantsKey(id)}
}
