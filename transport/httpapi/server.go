// Package httpapi serves a collcache.Cache over HTTP.
//
//	POST {base}query/getItem                     {"collectionID"?, "itemID"}
//	POST {base}query/getHashItemField            {"collectionID"?, "itemID", "fieldID"}
//	POST {base}mutation/<op>                     single input, or {"bulk": [...]} for bulk ops
//	GET  {base}subscription/item?itemID=...      Server-Sent Events
//	GET  {base}subscription/hashItemField?itemID=...&fieldID=...
//	GET  {base}healthz
//
// Responses are {"data": ...} or {"error": {"kind", "message", "entries"?}}.
// Subscriptions stream "mutation" events and end with an "error" event if
// the backend fails.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/collcache"
)

type Server struct {
	cache  collcache.Cache
	log    collcache.Logger
	opts   Options
	engine *gin.Engine
}

// New builds the router. log may be nil.
func New(cache collcache.Cache, log collcache.Logger, opts Options) *Server {
	if log == nil {
		log = collcache.NopLogger{}
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.BasePath == "" {
		opts.BasePath = "/"
	}
	s := &Server{cache: cache, log: log, opts: opts, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLog(log))
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	base := s.engine.Group(s.opts.BasePath)

	base.GET("/healthz", s.health)

	query := base.Group("/query")
	{
		query.POST("/getItem", handle(s, s.cache.GetItem))
		query.POST("/getHashItemField", handle(s, s.cache.GetHashItemField))
	}

	mutation := base.Group("/mutation")
	{
		mutation.POST("/setItem", handle(s, s.cache.SetItem))
		mutation.POST("/bulkSetItem", handleBulk(s, s.cache.BulkSetItem))
		mutation.POST("/incrementPrimitiveItem", handle(s, s.cache.IncrementPrimitiveItem))
		mutation.POST("/setHashItemField", handle(s, s.cache.SetHashItemField))
		mutation.POST("/bulkSetHashItemField", handleBulk(s, s.cache.BulkSetHashItemField))
		mutation.POST("/incrementHashItemField", handle(s, s.cache.IncrementHashItemField))
		mutation.POST("/deleteItem", handle(s, s.cache.DeleteItem))
		mutation.POST("/bulkDeleteItem", handleBulk(s, s.cache.BulkDeleteItem))
		mutation.POST("/deleteHashItemField", handle(s, s.cache.DeleteHashItemField))
		mutation.POST("/bulkDeleteHashItemField", handleBulk(s, s.cache.BulkDeleteHashItemField))
	}

	subscription := base.Group("/subscription")
	{
		subscription.GET("/item", s.subscribeItem)
		subscription.GET("/hashItemField", s.subscribeHashItemField)
	}
}

// Serve handles requests on ln until ctx is done, then shuts down.
// Open subscriptions are ended so shutdown does not wait on them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("collcache.http_listening", collcache.Fields{"addr": ln.Addr().String(), "base": s.opts.BasePath})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	cancelBase()
	shCtx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds opts.Addr (with SO_REUSEPORT when enabled) and serves.
func (s *Server) ListenAndServe(ctx context.Context) error {
	reuse := s.opts.ReusePort != nil && *s.opts.ReusePort
	ln, err := Listen(ctx, s.opts.Addr, reuse)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) health(c *gin.Context) {
	reg := s.cache.Registry()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"collections": reg.IDs(),
		"default":     reg.Default(),
	}})
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("collcache.http_error", collcache.Fields{"path": c.FullPath(), "status": status, "err": err})
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func requestLog(log collcache.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("collcache.http_request", collcache.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
	}
}
