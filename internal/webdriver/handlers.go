// internal/webdriver/handlers.go
package webdriver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ElementKey is the W3C web element identifier.
const ElementKey = "element-6066-11e4-a52e-4f735466cecf"

type valueResponse struct {
	Value any `json:"value"`
}

type errorValue struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

type statusValue struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

type newSessionValue struct {
	SessionID    string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
}

type navigateRequest struct {
	URL string `json:"url"`
}

// Handlers implements the WebDriver routes.
type Handlers struct {
	sessions Sessions
	log      *zap.Logger
}

// NewHandlers creates the route handlers.
func NewHandlers(sessions Sessions, logger *zap.Logger) *Handlers {
	return &Handlers{sessions: sessions, log: logger}
}

// RegisterRoutes mounts the supported commands on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.HandleStatus)
	r.Post("/session", h.HandleNewSession)
	r.Route("/session/{sessionId}", func(r chi.Router) {
		r.Delete("/", h.HandleDeleteSession)
		r.Post("/url", h.HandleNavigate)
		r.Post("/element", h.HandleFindElement)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, &Error{Status: http.StatusNotFound, Code: CodeUnknownCommand, Message: r.Method + " " + r.URL.Path})
	})
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeValue(w, http.StatusOK, statusValue{Ready: true, Message: "ready to create a session"})
}

func (h *Handlers) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.Create(r.Context())
	if err != nil {
		writeError(w, classify(err))
		return
	}
	h.log.Info("Session created.", zap.String("session_id", id))
	writeValue(w, http.StatusOK, newSessionValue{SessionID: id, Capabilities: map[string]any{}})
}

func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if !h.sessions.Delete(id) {
		writeError(w, invalidSession(id))
		return
	}
	h.log.Info("Session deleted.", zap.String("session_id", id))
	writeValue(w, http.StatusOK, nil)
}

func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: "body must be {\"url\": string}"})
		return
	}
	if err := session.Navigate(r.Context(), req.URL); err != nil {
		writeError(w, classify(err))
		return
	}
	writeValue(w, http.StatusOK, nil)
}

func (h *Handlers) HandleFindElement(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req locator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: "body must be {\"using\": string, \"value\": string}"})
		return
	}

	handle, err := session.FindElement(r.Context(), req.Using, req.Value)
	if err != nil {
		wdErr := classify(err)
		h.log.Debug("Find element failed.", zap.String("using", req.Using), zap.String("value", req.Value), zap.String("error", wdErr.Code))
		writeError(w, wdErr)
		return
	}
	writeValue(w, http.StatusOK, map[string]string{ElementKey: handle})
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (Session, bool) {
	id := chi.URLParam(r, "sessionId")
	s, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, invalidSession(id))
		return nil, false
	}
	return s, true
}

func invalidSession(id string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeInvalidSessionID, Message: "no active session with id " + id}
}

func writeValue(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(valueResponse{Value: v})
}

func writeError(w http.ResponseWriter, e *Error) {
	writeValue(w, e.Status, errorValue{Error: e.Code, Message: e.Message})
}
