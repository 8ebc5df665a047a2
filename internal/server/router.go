package server

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/metrics"
)

// Router provides embeddable HTTP handlers for inspecting a running daemon.
// Endpoints:
//   GET    {basePath}/healthz
//   GET    {basePath}/status
//   GET    {basePath}/kv/:key     404 when the key was never written
//   PUT    {basePath}/kv/:key     body: {"value": "..."}
//   DELETE {basePath}/kv/:key
//   GET    {basePath}/metrics
// :key is a key name (vin) or its integer form (0).
// basePath may be empty or start with '/'; no trailing slash.

// Status is the snapshot served on /status.
type Status struct {
	App               string    `json:"app"`
	Profile           string    `json:"profile"`
	Phase             string    `json:"phase"`
	ShutdownRequested bool      `json:"shutdown_requested"`
	StartedAt         time.Time `json:"started_at"`
}

// StatusProvider reports the daemon's current state.
type StatusProvider interface {
	Status() Status
}

// StatusFunc adapts a function to StatusProvider.
type StatusFunc func() Status

func (f StatusFunc) Status() Status { return f() }

type Router struct {
	status   StatusProvider
	store    kvstore.Store
	basePath string
}

// NewRouter constructs a new Router with configurable basePath. store may be
// nil, in which case the kv endpoints answer 503.
func NewRouter(status StatusProvider, store kvstore.Store, basePath string) *Router {
	return &Router{status: status, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.GET("/status", r.handleStatus)
	group.GET("/kv/:key", r.handleGet)
	group.PUT("/kv/:key", r.handlePut)
	group.DELETE("/kv/:key", r.handleDelete)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer binds addr and serves the router in the background, over HTTPS
// when tlsCfg is non-nil. Bind errors are returned; the caller shuts the
// server down.
func NewServer(addr, basePath string, status StatusProvider, store kvstore.Store, tlsCfg *tls.Config) (*http.Server, error) {
	r := NewRouter(status, store, basePath)
	return serve(addr, r.Handler(), tlsCfg)
}

// NewMetricsServer serves only /metrics on addr.
func NewMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return serve(addr, mux, nil)
}

func serve(addr string, h http.Handler, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type kvResp struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type kvReq struct {
	Value *string `json:"value"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.status == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "status unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, r.status.Status())
}

// key resolves :key and the store, writing the error response itself.
func (r *Router) key(c *gin.Context) (kvstore.Key, bool) {
	if r.store == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "store unavailable"})
		return 0, false
	}
	k, err := kvstore.ParseKey(c.Param("key"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return 0, false
	}
	return k, true
}

func (r *Router) handleGet(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	v, found, err := r.store.Read(c.Request.Context(), k)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "key not set: " + k.String()})
		return
	}
	writeJSON(c, http.StatusOK, kvResp{Key: k.String(), Value: v})
}

// maxBody caps a PUT body. JSON escapes may expand a value up to six times.
const maxBody = 6*kvstore.MaxValueLen + 1024

func (r *Router) handlePut(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	var body kvReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if body.Value == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "value required"})
		return
	}
	if err := r.store.Write(c.Request.Context(), k, *body.Value); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, kvstore.ErrInvalidValue) {
			code = http.StatusBadRequest
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDelete(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	if err := r.store.Delete(c.Request.Context(), k); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
