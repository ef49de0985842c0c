package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"robotfleet-sim/internal/logging"
	"robotfleet-sim/internal/sim"
	"robotfleet-sim/internal/telemetry"
)

// MaxStep bounds the passes a single /step request may run.
const MaxStep = 1000

// Server exposes the runner's fleet over HTTP.
type Server struct {
	Runner  *sim.Runner
	Metrics http.Handler
	// OnListen is told when the server starts and stops accepting requests.
	OnListen func(listening bool)

	tpl *template.Template
	log *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

// NewServer creates a Server. A nil metrics handler leaves /metrics unrouted.
func NewServer(runner *sim.Runner, metrics http.Handler, log *slog.Logger) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"pct": func(v float64) float64 { return v * 100 },
	}).ParseFS(content, "templates/index.html"))
	if log == nil {
		log = logging.Discard()
	}
	return &Server{Runner: runner, Metrics: metrics, tpl: tpl, log: log}
}

// Handler returns the routed admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /robots", s.handleRobots)
	mux.HandleFunc("GET /fleet-health", s.handleHealth)
	mux.HandleFunc("POST /step", s.handleStep)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logging.NewContext(context.Background(), s.log) },
	}
	s.notify(true)
	defer s.notify(false)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("admin UI listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) notify(listening bool) {
	if s.OnListen != nil {
		s.OnListen(listening)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	rows := s.Runner.Current()
	data := struct {
		Robots []telemetry.RobotStateRow
		Health telemetry.FleetHealthRow
	}{
		Robots: rows,
		Health: telemetry.Health(s.Runner.FleetID(), rows, time.Now()),
	}
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.Current())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rows := s.Runner.Current()
	writeJSON(w, http.StatusOK, telemetry.Health(s.Runner.FleetID(), rows, time.Now()))
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	n := 1
	if v := r.FormValue("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > MaxStep {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be between 1 and " + strconv.Itoa(MaxStep)})
			return
		}
		n = parsed
	}
	err := s.Runner.Step(r.Context(), n)
	resp := map[string]any{"passes": n, "robots": s.Runner.Latest()}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
