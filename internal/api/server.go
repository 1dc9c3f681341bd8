package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/store"
)

// LeagueService is what the HTTP surface drives.
type LeagueService interface {
	GetMatch(ctx context.Context, id string) (*league.Match, error)
	Start(ctx context.Context, id string) (*league.Match, error)
	Halftime(ctx context.Context, id string) (*league.Match, error)
	Resume(ctx context.Context, id string) (*league.Match, error)
	Finish(ctx context.Context, id string) (*league.Match, error)
	Postpone(ctx context.Context, id string) (*league.Match, error)
	Cancel(ctx context.Context, id string) (*league.Match, error)
	Abandon(ctx context.Context, id string) (*league.Match, error)
	Reschedule(ctx context.Context, id string, kickoff time.Time) (*league.Match, error)
	AppendEvent(ctx context.Context, id string, ev league.Event) (*league.Match, error)

	SubmitPrediction(ctx context.Context, matchID, userID string, score league.Score) (*league.Prediction, error)
	GetPrediction(ctx context.Context, matchID, userID string) (*league.Prediction, error)

	Standings(ctx context.Context, leagueID, seasonID string) ([]*league.TeamSeasonStat, error)
	Leaderboard(ctx context.Context, leagueID, seasonID string, k int) (league.Leaderboard, error)
}

type Options struct {
	Addr        string
	CORSOrigins []string
	// WebSocket, when set, is mounted at /ws.
	WebSocket http.Handler
	Log       *logrus.Entry
}

type Server struct {
	svc        LeagueService
	opts       Options
	log        *logrus.Entry
	httpServer *http.Server
}

func NewServer(svc LeagueService, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{svc: svc, opts: opts, log: log.WithField("component", "api")}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{id}/{action:start|halftime|resume|finish|postpone|cancel|abandon}", s.handleTransition).Methods("POST")
	api.HandleFunc("/matches/{id}/reschedule", s.handleReschedule).Methods("POST")
	api.HandleFunc("/matches/{id}/events", s.handleAppendEvent).Methods("POST")
	api.HandleFunc("/matches/{id}/predictions/{user}", s.handlePutPrediction).Methods("PUT")
	api.HandleFunc("/matches/{id}/predictions/{user}", s.handleGetPrediction).Methods("GET")

	season := api.PathPrefix("/leagues/{league}/seasons/{season}").Subrouter()
	season.HandleFunc("/standings", s.handleStandings).Methods("GET")
	season.HandleFunc("/scorers", s.handleScorers).Methods("GET")
	season.HandleFunc("/assists", s.handleAssists).Methods("GET")

	// mux only answers 405 from a subrouter that has its own handler.
	for _, r := range []*mux.Router{router, api, season} {
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	router.NotFoundHandler = http.HandlerFunc(notFound)

	if s.opts.WebSocket != nil {
		router.Handle("/ws", s.opts.WebSocket)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.WithField("addr", s.opts.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, league.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, league.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, league.ErrInvalidState), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, league.ErrPrecondition):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// decode reads a JSON body, reporting malformed input as a validation error.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", league.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.GetMatch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ops := map[string]func(context.Context, string) (*league.Match, error){
		"start":    s.svc.Start,
		"halftime": s.svc.Halftime,
		"resume":   s.svc.Resume,
		"finish":   s.svc.Finish,
		"postpone": s.svc.Postpone,
		"cancel":   s.svc.Cancel,
		"abandon":  s.svc.Abandon,
	}
	m, err := ops[vars["action"]](r.Context(), vars["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		KickoffAt time.Time `json:"kickoff_at"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Reschedule(r.Context(), mux.Vars(r)["id"], body.KickoffAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// eventRequest is the client's view of an event. Sequence and record time
// are assigned by the engine.
type eventRequest struct {
	Type       league.EventType `json:"type"`
	Team       league.Side      `json:"team"`
	Minute     int              `json:"minute"`
	PlayerID   string           `json:"player_id"`
	AssistedBy string           `json:"assisted_by"`
	PlayerOut  string           `json:"player_out"`
	PlayerIn   string           `json:"player_in"`
}

func (e eventRequest) event() league.Event {
	return league.Event{
		Type:       e.Type,
		Team:       e.Team,
		Minute:     e.Minute,
		PlayerID:   e.PlayerID,
		AssistedBy: e.AssistedBy,
		PlayerOut:  e.PlayerOut,
		PlayerIn:   e.PlayerIn,
	}
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.AppendEvent(r.Context(), mux.Vars(r)["id"], req.event())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handlePutPrediction(w http.ResponseWriter, r *http.Request) {
	var score league.Score
	if err := decode(r, &score); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	p, err := s.svc.SubmitPrediction(r.Context(), vars["id"], vars["user"], score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.svc.GetPrediction(r.Context(), vars["id"], vars["user"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table, err := s.svc.Standings(r.Context(), vars["league"], vars["season"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"league_id": vars["league"],
		"season_id": vars["season"],
		"standings": table,
	})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) (league.Leaderboard, bool) {
	vars := mux.Vars(r)
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: k must be a positive integer", league.ErrValidation))
			return league.Leaderboard{}, false
		}
		k = n
	}
	board, err := s.svc.Leaderboard(r.Context(), vars["league"], vars["season"], k)
	if err != nil {
		s.writeError(w, r, err)
		return league.Leaderboard{}, false
	}
	return board, true
}

func (s *Server) handleScorers(w http.ResponseWriter, r *http.Request) {
	if board, ok := s.leaderboard(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"scorers": board.Scorers})
	}
}

func (s *Server) handleAssists(w http.ResponseWriter, r *http.Request) {
	if board, ok := s.leaderboard(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"assists": board.Assists})
	}
}
