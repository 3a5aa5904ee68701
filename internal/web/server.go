// Package web serves the schedule pages and the JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"raspored/internal/app"
	"raspored/internal/clock"
	"raspored/internal/config"
	appLog "raspored/internal/log"
	"raspored/internal/metrics"
	"raspored/internal/render"
	"raspored/internal/week"
)

const shutdownTimeout = 10 * time.Second

// Server provides the HTML pages and JSON APIs for the schedule.
type Server struct {
	schedule *app.ScheduleService
	reports  *app.ReportService
	metrics  *metrics.Metrics
	renderer *render.Renderer
	clock    clock.Clock

	loc     atomic.Pointer[time.Location]
	cors    atomic.Pointer[corsPolicy]
	limiter atomic.Pointer[rate.Limiter]
	limits  atomic.Pointer[config.RateLimitConfig]

	handler http.Handler
}

// NewServer wires the handlers and applies cfg.
func NewServer(cfg *config.Config, schedule *app.ScheduleService, reports *app.ReportService, m *metrics.Metrics, clk clock.Clock) (*Server, error) {
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}
	if clk == nil {
		clk = clock.NewSystem(cfg.Location())
	}
	s := &Server{
		schedule: schedule,
		reports:  reports,
		metrics:  m,
		renderer: renderer,
		clock:    clk,
	}
	if err := s.ApplyConfig(cfg); err != nil {
		return nil, err
	}
	s.handler = s.routes()
	return s, nil
}

// ApplyConfig swaps the settings that may change while serving: grid,
// initial week, time zone, CORS origins and the mutation rate limit.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	grid, err := cfg.LayoutGrid()
	if err != nil {
		return err
	}
	var initial *week.ISOWeek
	if cfg.InitialWeek != "" {
		wk, err := week.ParseISOWeek(cfg.InitialWeek)
		if err != nil {
			return fmt.Errorf("initial week: %w", err)
		}
		initial = &wk
	}

	s.schedule.SetGrid(grid)
	s.schedule.SetInitialWeek(initial)
	s.loc.Store(cfg.Location())
	s.cors.Store(newCORSPolicy(cfg.CORSOrigins))

	limits := cfg.RateLimit
	if prev := s.limits.Load(); prev == nil || *prev != limits {
		s.limits.Store(&limits)
		if !limits.Disabled && limits.PerSecond > 0 {
			burst := max(limits.Burst, 1)
			s.limiter.Store(rate.NewLimiter(rate.Limit(limits.PerSecond), burst))
		} else {
			s.limiter.Store(nil)
		}
	}
	return nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) location() *time.Location {
	return s.loc.Load()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.requestLogger, s.instrument, s.corsMiddleware)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/", s.handleWeekPage)
	r.Get("/reports", s.handleReportsPage)
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/events/{id}/delete", s.handleDeleteEventForm)
		r.Post("/events/{id}/move", s.handleMoveEventForm)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
		r.Get("/events.ics", s.handleExportWeek)
		r.Get("/events/{id}", s.handleGetEvent)
		r.Get("/form-data", s.handleFormData)

		r.Get("/reports/student-schedule/{jmbag}", s.handleStudentSchedule)
		r.Get("/reports/teacher-courses", s.handleTeacherCourses)
		r.Get("/logs/teacher-email-changes", s.handleEmailChanges)
		r.Get("/history/events", s.handleEventHistory)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/events", s.handleCreateEvent)
			r.Put("/events/{id}", s.handleUpdateEvent)
			r.Delete("/events/{id}", s.handleDeleteEvent)
			r.Put("/teachers/{id}/email", s.handleUpdateTeacherEmail)
		})
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
