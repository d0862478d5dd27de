// Package server exposes the bot's state and operator commands over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jsphweid/pianobot/ingest"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/util"
	"github.com/pkg/errors"
	"github.com/rs/cors"
)

type Controller interface {
	Control(kind ingest.Kind) error
	Status() model.Status
}

type Options struct {
	// Connected and TimedOut fill the matching status fields when set.
	Connected func() bool
	TimedOut  func() bool
	// Takes lists stored take names, oldest first, for GET /takes.
	Takes func() ([]string, error)
	Log   *slog.Logger
}

type Server struct {
	ctl  Controller
	opts Options
	log  *slog.Logger
}

func New(ctl Controller, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{ctl: ctl, opts: opts, log: log}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/status", s.HandleStatus).Methods(http.MethodGet)
	router.HandleFunc("/takes", s.HandleTakes).Methods(http.MethodGet)
	router.HandleFunc("/{action:arm|arm-public|disarm|toggle|stop}", s.HandleControl).Methods(http.MethodPost)
	return cors.Default().Handler(router)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "could not shut down server")
	}
	return nil
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctl.Status()
	if s.opts.Connected != nil {
		st.Connected = s.opts.Connected()
	}
	if s.opts.TimedOut != nil {
		st.TimedOut = s.opts.TimedOut()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) HandleTakes(w http.ResponseWriter, r *http.Request) {
	takes := make([]string, 0)
	if s.opts.Takes != nil {
		names, err := s.opts.Takes()
		if err != nil {
			s.log.Error("server: could not list takes", "err", err)
			writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "could not list takes"})
			return
		}
		takes = append(takes, names...)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		takes = takes[len(takes)-util.Min(limit, len(takes)):]
	}
	writeJSON(w, http.StatusOK, takes)
}

func (s *Server) HandleControl(w http.ResponseWriter, r *http.Request) {
	action := strings.ReplaceAll(mux.Vars(r)["action"], "-", "_")
	kind, ok := ingest.ControlKind(action)
	if !ok {
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "unknown action " + action})
		return
	}
	if err := s.ctl.Control(kind); err != nil {
		s.log.Warn("server: command rejected", "action", action, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, model.ErrorResponse{Error: err.Error()})
		return
	}
	s.log.Info("server: command accepted", "action", action)
	writeJSON(w, http.StatusAccepted, model.CommandResponse{Accepted: action})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
