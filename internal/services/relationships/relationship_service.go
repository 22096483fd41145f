package relationships

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/asad/relcache/internal/core"
	"github.com/asad/relcache/internal/logging"
	"github.com/asad/relcache/internal/state"
)

// maxBodyBytes bounds request bodies for session and state updates.
const maxBodyBytes = 1 << 20

// SessionObserver is notified when sessions open and close.
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

type nopSessionObserver struct{}

func (nopSessionObserver) SessionOpened() {}
func (nopSessionObserver) SessionClosed() {}

// RelationshipService exposes sessions and their relationship state over HTTP.
type RelationshipService struct {
	sessions SessionStore
	cache    *state.RelationshipCache[Session]
	observer SessionObserver
	logger   logging.Logger
}

// NewRelationshipService creates the service. observer may be nil.
func NewRelationshipService(sessions SessionStore, cache *state.RelationshipCache[Session], observer SessionObserver, logger logging.Logger) *RelationshipService {
	if observer == nil {
		observer = nopSessionObserver{}
	}
	return &RelationshipService{
		sessions: sessions,
		cache:    cache,
		observer: observer,
		logger:   logger.With(logging.String("service", "relationships")),
	}
}

// Name returns the service identifier.
func (s *RelationshipService) Name() string {
	return "relationships"
}

// RegisterRoutes sets up:
//   - POST /sessions - Open a session
//   - GET /sessions - List open sessions
//   - DELETE /sessions/{session} - Close a session and drop its state
//   - GET /sessions/{session}/{model}/{clientId}/{property} - Get or create state
//   - PATCH /sessions/{session}/{model}/{clientId}/{property} - Merge state data
func (s *RelationshipService) RegisterRoutes(router chi.Router) {
	router.Post("/sessions", s.handleOpenSession)
	router.Get("/sessions", s.handleListSessions)
	router.Delete("/sessions/{session}", s.handleCloseSession)

	router.Get("/sessions/{session}/{model}/{clientId}/{property}", s.handleGetState)
	router.Patch("/sessions/{session}/{model}/{clientId}/{property}", s.handlePatchState)
}

func (s *RelationshipService) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Request body must be a JSON object")
		return
	}

	session, err := s.sessions.Open(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("failed to open session", logging.ErrorField(err))
		s.writeError(w, http.StatusInternalServerError, "InternalError", "Failed to open session")
		return
	}
	s.observer.SessionOpened()

	s.logger.Info("session opened",
		logging.String("session", session.ID),
		logging.String("name", session.Name),
	)
	s.writeJSON(w, http.StatusCreated, sessionInfo(session))
}

func (s *RelationshipService) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", logging.ErrorField(err))
		s.writeError(w, http.StatusInternalServerError, "InternalError", "Failed to list sessions")
		return
	}

	result := SessionListResult{Sessions: make([]SessionInfo, 0, len(sessions))}
	for _, session := range sessions {
		result.Sessions = append(result.Sessions, sessionInfo(session))
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *RelationshipService) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")

	session, err := s.sessions.Close(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, id, err)
		return
	}
	s.observer.SessionClosed()
	forgotten := s.cache.Forget(session)

	s.logger.Info("session closed",
		logging.String("session", id),
		logging.Bool("had_state", forgotten),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *RelationshipService) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	rs, ok := s.stateFor(w, r, id)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, stateInfo(id, rs))
}

func (s *RelationshipService) handlePatchState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")

	var patch map[string]any
	if err := decodeOptionalJSON(r, &patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Request body must be a JSON object")
		return
	}

	rs, ok := s.stateFor(w, r, id)
	if !ok {
		return
	}
	for key, value := range patch {
		if value == nil {
			rs.Delete(key)
			continue
		}
		rs.Set(key, value)
	}

	s.logger.Debug("relationship state updated",
		logging.String("session", id),
		logging.String("model", rs.ModelName()),
		logging.String("client_id", rs.ClientID()),
		logging.String("property", rs.PropertyName()),
		logging.Int("keys", len(patch)),
	)
	s.writeJSON(w, http.StatusOK, stateInfo(id, rs))
}

// stateFor resolves the session and relationship state named by the route,
// writing an error response and returning false on failure.
func (s *RelationshipService) stateFor(w http.ResponseWriter, r *http.Request, id string) (*state.RelationshipState[Session], bool) {
	modelName, clientID, propertyName, err := routeKeys(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidKey", err.Error())
		return nil, false
	}

	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, id, err)
		return nil, false
	}

	rs, err := s.cache.StateFor(session, modelName, clientID, propertyName)
	if err != nil {
		if errors.Is(err, state.ErrInvalidKey) {
			s.writeError(w, http.StatusBadRequest, "InvalidKey", err.Error())
		} else {
			s.logger.Error("failed to resolve relationship state",
				logging.String("session", id),
				logging.ErrorField(err),
			)
			s.writeError(w, http.StatusInternalServerError, "InternalError", "Failed to resolve relationship state")
		}
		return nil, false
	}

	// A concurrent close may have forgotten the session between Get and
	// StateFor, in which case StateFor tracked it again.
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.cache.Forget(session)
		s.writeSessionError(w, id, err)
		return nil, false
	}
	return rs, true
}

// routeKeys returns the decoded model, client id and property route params.
// chi matches against RawPath when the request has one, leaving those
// params percent-encoded.
func routeKeys(r *http.Request) (modelName, clientID, propertyName string, err error) {
	keys := [3]string{
		chi.URLParam(r, "model"),
		chi.URLParam(r, "clientId"),
		chi.URLParam(r, "property"),
	}
	if r.URL.RawPath != "" {
		for i, key := range keys {
			decoded, uerr := url.PathUnescape(key)
			if uerr != nil {
				return "", "", "", fmt.Errorf("%w: %q is not a valid path segment", state.ErrInvalidKey, key)
			}
			keys[i] = decoded
		}
	}
	return keys[0], keys[1], keys[2], nil
}

func (s *RelationshipService) writeSessionError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "SessionNotFound", err.Error())
		return
	}
	s.logger.Error("session lookup failed",
		logging.String("session", id),
		logging.ErrorField(err),
	)
	s.writeError(w, http.StatusInternalServerError, "InternalError", "Session lookup failed")
}

func (s *RelationshipService) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logging.ErrorField(err))
	}
}

// writeError writes an error response in a consistent format.
func (s *RelationshipService) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	s.writeJSON(w, statusCode, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// decodeOptionalJSON decodes a JSON object body into v. An empty body leaves
// v untouched.
func decodeOptionalJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

var _ core.Service = (*RelationshipService)(nil)
