package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/supervisr/internal/task"
)

// Router provides embeddable HTTP handlers for managing tasks.
// Endpoints under {basePath}:
//
//	POST   /tasks                body: task.Spec JSON — create
//	POST   /tasks/:name/start    query: timeout=5s (optional)
//	POST   /tasks/:name/stop
//	POST   /tasks/:name/restart  query: timeout=5s (optional)
//	DELETE /tasks/:name          stop + remove
//	GET    /tasks                all snapshots
//	GET    /tasks/:name          single snapshot
//
// Core operations report success as booleans; the handlers translate a
// false into 409 (conflicting state, e.g. duplicate name or failed start)
// and an unknown name into 404.
type Router struct {
	reg      *task.Registry
	basePath string
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/api".
func NewRouter(reg *task.Registry, basePath string) *Router {
	return &Router{reg: reg, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin, mountable in any server.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/tasks", r.handleCreate)
	group.POST("/tasks/:name/start", r.handleStart)
	group.POST("/tasks/:name/stop", r.handleStop)
	group.POST("/tasks/:name/restart", r.handleRestart)
	group.DELETE("/tasks/:name", r.handleRemove)
	group.GET("/tasks", r.handleListInfo)
	group.GET("/tasks/:name", r.handleInfo)
	return g
}

// NewServer starts a standalone HTTP server on addr serving this router.
func NewServer(addr, basePath string, reg *task.Registry) (*http.Server, error) {
	r := NewRouter(reg, basePath)
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

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleCreate(c *gin.Context) {
	var spec task.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if spec.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "spec.name required"})
		return
	}
	if !isSafeName(spec.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid spec.name: allowed [A-Za-z0-9._-], no path separators"})
		return
	}
	if spec.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "spec.command required"})
		return
	}
	for _, p := range []string{spec.WorkDir, spec.RuntimeDir, spec.Log.Dir, spec.Log.StdoutPath, spec.Log.StderrPath} {
		if !isSafeAbsPath(p) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "paths must be absolute without traversal"})
			return
		}
	}
	if !r.reg.Create(spec) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "task already exists: " + spec.Name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Param("name")
	if r.reg.Info(name) == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown task: " + name})
		return
	}
	if !r.reg.Start(name, parseTimeout(c)) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "start failed: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Param("name")
	if r.reg.Info(name) == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown task: " + name})
		return
	}
	if !r.reg.Stop(name) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "no process tracked for task: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	name := c.Param("name")
	if r.reg.Info(name) == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown task: " + name})
		return
	}
	if !r.reg.Restart(name, parseTimeout(c)) {
		writeJSON(c, http.StatusConflict, errorResp{Error: "restart failed: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRemove(c *gin.Context) {
	name := c.Param("name")
	if !r.reg.Remove(name) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown task: " + name})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleInfo(c *gin.Context) {
	name := c.Param("name")
	info := r.reg.Info(name)
	if info == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown task: " + name})
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleListInfo(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.AllInfo())
}

func parseTimeout(c *gin.Context) time.Duration {
	if s := c.Query("timeout"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return 0 // task layer applies its default
}
