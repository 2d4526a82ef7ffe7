// Package web is the JSON HTTP host surface over the scheduling core:
// queues, review sessions and orphan resolution. It holds no state of its
// own; every handler delegates to a manager.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/revault/internal/cards"
	"github.com/conorfennell/revault/internal/domain"
	"github.com/conorfennell/revault/internal/queues"
	"github.com/conorfennell/revault/internal/reconcile"
	"github.com/conorfennell/revault/internal/session"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	queues    *queues.Manager
	cards     *cards.Manager
	sessions  *session.Manager
	reconcile *reconcile.Reconciler
	router    *http.ServeMux
	validate  *validator.Validate
	log       *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(queueMgr *queues.Manager, cardMgr *cards.Manager, sessionMgr *session.Manager, rec *reconcile.Reconciler, log *slog.Logger) *Server {
	s := &Server{
		queues:    queueMgr,
		cards:     cardMgr,
		sessions:  sessionMgr,
		reconcile: rec,
		router:    http.NewServeMux(),
		validate:  validator.New(),
		log:       log,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /queues", s.handleListQueues())
	s.router.HandleFunc("POST /queues", s.handleCreateQueue())
	s.router.HandleFunc("DELETE /queues/{id}", s.handleDeleteQueue())
	s.router.HandleFunc("PUT /queues/{id}/criteria", s.handleUpdateCriteria())
	s.router.HandleFunc("POST /queues/{id}/sync", s.handleSyncQueue())
	s.router.HandleFunc("GET /queues/{id}/stats", s.handleQueueStats())
	s.router.HandleFunc("GET /queues/{id}/due", s.handleDueNotes())

	s.router.HandleFunc("GET /session", s.handleCurrentSession())
	s.router.HandleFunc("POST /session", s.handleStartSession())
	s.router.HandleFunc("DELETE /session", s.handleEndSession())
	s.router.HandleFunc("POST /session/rate", s.handleRate())
	s.router.HandleFunc("POST /session/skip", s.handleSkip())
	s.router.HandleFunc("POST /session/back", s.handleGoBack())
	s.router.HandleFunc("POST /session/undo", s.handleUndo())
	s.router.HandleFunc("POST /session/active-note", s.handleActiveNote())
	s.router.HandleFunc("POST /session/bring-back", s.handleBringBack())

	s.router.HandleFunc("GET /cards/{path...}", s.handleGetCard())
	s.router.HandleFunc("GET /preview/{queue}/{path...}", s.handlePreview())

	s.router.HandleFunc("GET /orphans", s.handleListOrphans())
	s.router.HandleFunc("GET /orphans/{id}/matches", s.handleOrphanMatches())
	s.router.HandleFunc("POST /orphans/{id}/relink", s.handleRelink())
	s.router.HandleFunc("DELETE /orphans/{id}", s.handleRemoveOrphan())
}

func (s *Server) handleListQueues() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, http.StatusOK, s.queues.ListQueues())
	}
}

type createQueueRequest struct {
	Name    string   `json:"name" validate:"required"`
	Kind    string   `json:"kind" validate:"required,oneof=folder tag"`
	Folders []string `json:"folders"`
	Tags    []string `json:"tags"`
	SyncNow bool     `json:"sync_now"`
}

func (s *Server) handleCreateQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQueueRequest
		if !s.decode(w, r, &req) {
			return
		}
		criteria := domain.Criteria{
			Kind:    domain.CriteriaKind(req.Kind),
			Folders: req.Folders,
			Tags:    req.Tags,
		}
		queue, err := s.queues.CreateQueue(req.Name, criteria)
		if err != nil {
			s.fail(w, err)
			return
		}
		if req.SyncNow {
			if _, err := s.queues.SyncQueue(queue.ID); err != nil {
				s.log.Warn("initial sync failed", "queue", queue.ID, "error", err)
			}
		}
		s.respond(w, http.StatusCreated, queue)
	}
}

func (s *Server) handleDeleteQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removeData := r.URL.Query().Get("remove_schedule_data") == "true"
		if err := s.queues.DeleteQueue(r.PathValue("id"), removeData); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type criteriaRequest struct {
	Kind    string   `json:"kind" validate:"required,oneof=folder tag"`
	Folders []string `json:"folders"`
	Tags    []string `json:"tags"`
}

func (s *Server) handleUpdateCriteria() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req criteriaRequest
		if !s.decode(w, r, &req) {
			return
		}
		result, err := s.queues.UpdateQueueCriteria(r.PathValue("id"), domain.Criteria{
			Kind:    domain.CriteriaKind(req.Kind),
			Folders: req.Folders,
			Tags:    req.Tags,
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, result)
	}
}

func (s *Server) handleSyncQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.queues.SyncQueue(r.PathValue("id"))
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, result)
	}
}

func (s *Server) handleQueueStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.queues.GetQueueStats(r.PathValue("id"))
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, stats)
	}
}

func (s *Server) handleDueNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		strategy := domain.OrderStrategy(r.URL.Query().Get("order"))
		if strategy == "" {
			strategy = s.queues.Settings().QueueOrderStrategy
		}
		due, err := s.queues.GetDueNotes(r.PathValue("id"), strategy)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, due)
	}
}

type startSessionRequest struct {
	QueueID string `json:"queue_id" validate:"required"`
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if !s.decode(w, r, &req) {
			return
		}
		view, err := s.sessions.Start(req.QueueID)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusCreated, view)
	}
}

func (s *Server) handleCurrentSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := s.sessions.Current()
		if !ok {
			s.failWith(w, http.StatusNotFound, "no active session")
			return
		}
		s.respond(w, http.StatusOK, view)
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.End()
		w.WriteHeader(http.StatusNoContent)
	}
}

type rateRequest struct {
	Rating string `json:"rating" validate:"required,oneof=Again Hard Good Easy"`
}

func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if !s.decode(w, r, &req) {
			return
		}
		var rating domain.Rating
		if err := rating.UnmarshalText([]byte(req.Rating)); err != nil {
			s.failWith(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.sessions.Rate(rating); err != nil {
			s.fail(w, err)
			return
		}
		s.respondSessionProgress(w)
	}
}

func (s *Server) handleSkip() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Skip(); err != nil {
			s.fail(w, err)
			return
		}
		s.respondSessionProgress(w)
	}
}

func (s *Server) handleGoBack() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.GoBack(); err != nil {
			s.fail(w, err)
			return
		}
		s.respondSessionProgress(w)
	}
}

func (s *Server) handleUndo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.UndoLastRating(); err != nil {
			s.fail(w, err)
			return
		}
		s.respondSessionProgress(w)
	}
}

type activeNoteRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handleActiveNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activeNoteRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.sessions.SetActiveNote(req.Path)
		s.respond(w, http.StatusOK, map[string]bool{
			"expected": s.sessions.IsCurrentNoteExpected(),
		})
	}
}

func (s *Server) handleBringBack() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := s.sessions.BringBack()
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, map[string]string{"path": path})
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.cards.GetCard(r.PathValue("path"))
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, card)
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preview, err := s.cards.GetSchedulingPreview(r.PathValue("path"), r.PathValue("queue"))
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, preview)
	}
}

func (s *Server) handleListOrphans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.OrphanStatus(r.URL.Query().Get("status"))
		s.respond(w, http.StatusOK, s.reconcile.ListOrphans(status))
	}
}

func (s *Server) handleOrphanMatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := s.reconcile.FindPotentialMatches(r.PathValue("id"), 5)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, matches)
	}
}

type relinkRequest struct {
	NewPath string `json:"new_path" validate:"required"`
}

func (s *Server) handleRelink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req relinkRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.reconcile.RelinkOrphan(r.PathValue("id"), req.NewPath); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveOrphan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.reconcile.RemoveOrphan(r.PathValue("id")); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) respondSessionProgress(w http.ResponseWriter) {
	if view, ok := s.sessions.Current(); ok {
		s.respond(w, http.StatusOK, view)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"complete": true})
}

// decode parses and validates a JSON request body, writing the error
// response itself and reporting whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.failWith(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.failWith(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("encoding response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrExternalInconsistency):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.failWith(w, status, err.Error())
}

func (s *Server) failWith(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
