// Package server exposes the sync pipeline over HTTP for companion UIs:
// status and update endpoints, a websocket event stream, and a cron-driven
// auto check.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/dbprobe"
	"github.com/starforge-mobile/datasync/updater"
)

// Options configures the daemon.
type Options struct {
	Listen        string // host:port
	AutoCheckCron string // cron expression; empty disables the auto check
}

// Server wires the resolver, checker and pipeline behind a gin router.
type Server struct {
	opts     Options
	res      *resolver.Resolver
	checker  *updater.Checker
	pipeline *updater.Pipeline
	hub      *eventHub
	cron     *cron.Cron
	http     *http.Server
}

func New(opts Options, res *resolver.Resolver, checker *updater.Checker, pipeline *updater.Pipeline) *Server {
	return &Server{
		opts:     opts,
		res:      res,
		checker:  checker,
		pipeline: pipeline,
		hub:      newEventHub(),
	}
}

// Hub returns the event sink the pipeline should be constructed with.
func (s *Server) Hub() updater.Sink {
	return s.hub.Broadcast
}

// AttachPipeline resolves the construction cycle: the pipeline needs the
// server's event hub as its sink, the server needs the pipeline to serve
// update requests.
func (s *Server) AttachPipeline(p *updater.Pipeline) {
	s.pipeline = p
}

func respondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}

// Router builds the API surface. Split out so tests can drive it without a
// listener.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/check", s.handleCheck)
	api.POST("/update", s.handleUpdate)
	api.POST("/reset", s.handleReset)
	api.GET("/events", s.hub.handle)
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	eff := s.res.Effective()
	data := gin.H{
		"version":      eff.Version.String(),
		"icon_version": eff.IconVersion,
		"release_date": eff.ReleaseDate,
		"database":     string(s.res.Authority(resolver.SubtreeDataset)),
		"icons":        string(s.res.Authority(resolver.SubtreeIcons)),
		"check_state":  string(s.checker.State()),
	}
	if path, _, err := s.res.ResolvePath(resolver.ResourceDB, "universe.sqlite"); err == nil {
		if info, err := dbprobe.Probe(path); err == nil {
			data["db_info"] = info
		}
	}
	respondSuccess(c, data)
}

func (s *Server) handleCheck(c *gin.Context) {
	force := c.Query("force") == "true"
	result, err := s.checker.Check(c.Request.Context(), force)
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	data := gin.H{"state": string(result.State)}
	if result.Remote != nil {
		data["remote_version"] = result.Remote.Version.String()
		data["remote_icon_version"] = result.Remote.IconVersion
	}
	respondSuccess(c, data)
}

func (s *Server) handleUpdate(c *gin.Context) {
	force := c.Query("force") == "true"
	report, err := s.pipeline.Run(c.Request.Context(), force)
	if errors.Is(err, updater.ErrConcurrentRun) {
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	results := make([]gin.H, 0, len(report.Results))
	for _, res := range report.Results {
		entry := gin.H{"artifact": string(res.Kind), "skipped": res.Skipped}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		results = append(results, entry)
	}
	respondSuccess(c, gin.H{
		"run_id":  report.RunID,
		"outcome": string(report.Outcome()),
		"results": results,
	})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.res.Reset(); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.checker.ClearCooldown()
	respondSuccess(c, gin.H{"reset": true})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.AutoCheckCron != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.opts.AutoCheckCron, func() {
			if _, err := s.pipeline.Run(context.Background(), false); err != nil && !errors.Is(err, updater.ErrConcurrentRun) {
				slog.Warn("scheduled update failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		s.cron.Start()
		defer s.cron.Stop()
	}

	s.http = &http.Server{Addr: s.opts.Listen, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	slog.Info("datasync daemon listening", "addr", s.opts.Listen)

	select {
	case <-ctx.Done():
		s.hub.closeAll()
		return s.http.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
