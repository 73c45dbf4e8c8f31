package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stratflow/config"
	"stratflow/internal/channel"
	"stratflow/internal/metrics"
	"stratflow/logger"
)

//go:embed templates/*.tmpl
var embeddedFS embed.FS

// Server hosts the Gin-powered monitoring dashboard: live run state fed by
// the pipeline bus, the trade log, the equity curve, captured logs, host
// resources, the Prometheus endpoint and a websocket feed.
type Server struct {
	cfg     config.DashboardConfig
	log     *logger.Log
	bus     *channel.Bus
	state   *stateStore
	logs    *logStore
	sampler *resourceSampler
	hub     *wsHub

	httpServer        *http.Server
	refreshIntervalMs int
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil. resultsDir
// tells the resource sampler which volume the run artifacts land on.
func NewServer(cfg config.DashboardConfig, resultsDir string, bus *channel.Bus, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.ChartHistory <= 0 {
		cfg.ChartHistory = 500
	}

	logs := newLogStore(cfg.LogHistory)
	log.AddHook(logs)

	server := &Server{
		cfg:               cfg,
		log:               log,
		bus:               bus,
		state:             newStateStore(cfg.ChartHistory),
		logs:              logs,
		sampler:           newResourceSampler(cfg.ChartHistory, cfg.RefreshInterval, resultsDir, log),
		hub:               newWSHub(log),
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
	}

	if server.refreshIntervalMs <= 0 {
		server.refreshIntervalMs = int((5 * time.Second) / time.Millisecond)
	}

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.sampler.start(ctx)
	if s.bus != nil {
		go s.consume(ctx)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// consume drains pipeline updates into the state store and fans them out to
// websocket clients.
func (s *Server) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-s.bus.Updates:
			if !ok {
				return
			}
			s.state.apply(update)
			s.hub.broadcast(update)
		}
	}
}

func (s *Server) cleanup() {
	if s.logs != nil {
		s.logs.close()
	}
	if s.sampler != nil {
		s.sampler.stop()
	}
	if s.hub != nil {
		s.hub.closeAll()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Resolve client addresses from the socket itself; the dashboard is not
	// expected to run behind a trusted reverse proxy.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/api/status", func(c *gin.Context) {
		update, ready := s.state.status()
		c.JSON(http.StatusOK, gin.H{
			"ready":  ready,
			"status": update,
		})
	})

	router.GET("/api/stats", func(c *gin.Context) {
		update, ready := s.state.status()
		c.JSON(http.StatusOK, gin.H{
			"ready": ready,
			"stats": update.Stats,
			"risk":  update.Risk,
		})
	})

	router.GET("/api/trades", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trades": s.state.tradeLog()})
	})

	router.GET("/api/equity", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"equity": s.state.equityCurve()})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		logsSnapshot := s.logs.snapshot()
		payload := make([]gin.H, 0, len(logsSnapshot))
		for _, l := range logsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": l.Timestamp.Format(time.RFC3339Nano),
				"level":     l.Level,
				"component": l.Component,
				"message":   l.Message,
				"fields":    l.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": payload})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		snapshots := s.sampler.snapshot()
		payload := make([]gin.H, 0, len(snapshots))
		for _, snap := range snapshots {
			payload = append(payload, gin.H{
				"timestamp":      snap.Timestamp.Format(time.RFC3339Nano),
				"cpu_percent":    snap.CPUPercent,
				"memory_used":    snap.MemoryUsed,
				"memory_total":   snap.MemoryTotal,
				"memory_percent": snap.MemoryPct,
				"disk_used":      snap.DiskUsed,
				"disk_total":     snap.DiskTotal,
				"disk_percent":   snap.DiskPct,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"disk_path": s.sampler.path(),
			"resources": payload,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/ws", func(c *gin.Context) {
		s.hub.serve(c.Writer, c.Request)
	})

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
