package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kartikbazzad/dlsc/internal/task"
)

// Coordinator is the subset of *coordinator.Coordinator this package
// depends on, kept narrow so handlers stay testable against a fake.
type Coordinator interface {
	Table() *task.Table
	SelfID() string
	HandleDeadWorkers(names []string)
	Stop()
}

// Server wraps a Gin engine exposing admin introspection and control
// over a Coordinator.
type Server struct {
	engine *gin.Engine
	coord  Coordinator
}

type deadWorkersRequest struct {
	Names []string `json:"names" binding:"required"`
}

type taskSnapshotDTO struct {
	Key               string    `json:"key"`
	Status            string    `json:"status"`
	LastUpdate        time.Time `json:"last_update"`
	LastVersion       int64     `json:"last_version"`
	CurWorker         string    `json:"cur_worker"`
	Incarnation       int       `json:"incarnation"`
	UnforcedResubmits int       `json:"unforced_resubmits"`
	ThresholdReached  bool      `json:"threshold_reached"`
	Orphan            bool      `json:"orphan"`
}

// NewServer builds the admin HTTP API. roleAssignments are extra
// Casbin "g, <subject>, <role>" grants layered onto the built-in
// admin/viewer roles (see newEnforcer).
func NewServer(coord Coordinator, roleAssignments ...string) (*Server, error) {
	enforcer, err := newEnforcer(roleAssignments...)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, coord: coord}
	mutate := rateLimitMiddleware(30, 10)

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/tasks", requireRole(enforcer, "tasks", "read"), s.handleListTasks)
	engine.POST("/workers/dead", mutate, requireRole(enforcer, "workers", "report_dead"), s.handleReportDead)
	engine.POST("/stop", mutate, requireRole(enforcer, "coordinator", "stop"), s.handleStop)

	return s, nil
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"self_id": s.coord.SelfID(), "tasks": s.coord.Table().Len()})
}

func (s *Server) handleListTasks(c *gin.Context) {
	var out []taskSnapshotDTO
	s.coord.Table().Each(func(key string, t *task.Task) {
		snap := t.Snapshot()
		out = append(out, taskSnapshotDTO{
			Key:               snap.Key,
			Status:            snap.Status.String(),
			LastUpdate:        snap.LastUpdate,
			LastVersion:       snap.LastVersion,
			CurWorker:         snap.CurWorker,
			Incarnation:       snap.Incarnation,
			UnforcedResubmits: snap.UnforcedResubmits,
			ThresholdReached:  snap.ThresholdReached,
			Orphan:            snap.Orphan,
		})
	})
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

func (s *Server) handleReportDead(c *gin.Context) {
	var req deadWorkersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.coord.HandleDeadWorkers(req.Names)
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Names)})
}

func (s *Server) handleStop(c *gin.Context) {
	go s.coord.Stop()
	c.JSON(http.StatusAccepted, gin.H{"stopping": true})
}
