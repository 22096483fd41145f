package relationships

import (
	"time"

	"github.com/asad/relcache/internal/state"
)

// Session is a data-access session. It is the store that relationship
// state is scoped to: closing a session discards every state bucket
// created through it.
type Session struct {
	// ID is the opaque identifier used in routes.
	ID string

	// Name is an optional caller supplied label.
	Name string

	// CreatedAt is when the session was opened.
	CreatedAt time.Time
}

// SessionInfo is the JSON view of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionListResult is returned by GET /sessions.
type SessionListResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

// StateInfo is the JSON view of a relationship state bucket.
type StateInfo struct {
	ID           string         `json:"id"`
	Session      string         `json:"session"`
	ModelName    string         `json:"modelName"`
	ClientID     string         `json:"clientId"`
	PropertyName string         `json:"propertyName"`
	Data         map[string]any `json:"data"`
}

type openSessionRequest struct {
	Name string `json:"name"`
}

func sessionInfo(s *Session) SessionInfo {
	return SessionInfo{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
}

func stateInfo(sessionID string, rs *state.RelationshipState[Session]) StateInfo {
	return StateInfo{
		ID:           rs.ID(),
		Session:      sessionID,
		ModelName:    rs.ModelName(),
		ClientID:     rs.ClientID(),
		PropertyName: rs.PropertyName(),
		Data:         rs.Data(),
	}
}
