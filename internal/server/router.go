package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackwatch/stackwatch/internal/coordinator"
	"github.com/stackwatch/stackwatch/internal/report"
)

// Router provides embeddable HTTP handlers over a diagnostics coordinator.
// Endpoints:
//
//	GET  {basePath}/status   per-service supervision status
//	GET  {basePath}/report   latest diagnostics report
//	POST {basePath}/rescan   run diagnostics again and return the report
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	coord    *coordinator.Coordinator
	basePath string

	mu   sync.Mutex
	last *report.Report
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/report, /api/rescan.
func NewRouter(coord *coordinator.Coordinator, basePath string) *Router {
	return &Router{coord: coord, basePath: sanitizeBase(basePath)}
}

// SetReport records the report served by GET /report.
func (r *Router) SetReport(rep *report.Report) {
	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/report", r.handleReport)
	group.POST("/rescan", r.handleRescan)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, coord *coordinator.Coordinator) (*http.Server, error) {
	r := NewRouter(coord, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

// ServiceStatus is one row of the /status response.
type ServiceStatus struct {
	Service   string    `json:"service"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Findings  int       `json:"findings"`
}

func (r *Router) handleStatus(c *gin.Context) {
	sups := r.coord.Supervisors()
	out := make([]ServiceStatus, 0, len(sups))
	for _, s := range sups {
		st := s.Snapshot()
		out = append(out, ServiceStatus{
			Service:   string(s.Source()),
			State:     s.State().String(),
			PID:       st.PID,
			StartedAt: st.StartedAt,
			ExitCode:  st.ExitCode,
			Findings:  len(s.Findings()),
		})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleReport(c *gin.Context) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no diagnostics run recorded yet"})
		return
	}
	writeJSON(c, http.StatusOK, last)
}

func (r *Router) handleRescan(c *gin.Context) {
	rep, err := r.coord.Run(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	r.SetReport(rep)
	writeJSON(c, http.StatusOK, rep)
}
