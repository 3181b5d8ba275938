package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/collcache"
)

type bulkRequest[T any] struct {
	Bulk []T `json:"bulk" binding:"required"`
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Kind: "validation", Message: err.Error()}})
}

func handle[In, Out any](s *Server, fn func(context.Context, In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		out, err := fn(c.Request.Context(), in)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

func handleBulk[In any](s *Server, fn func(context.Context, []In) (bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkRequest[In]
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ok, err := fn(c.Request.Context(), req.Bulk)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": ok})
	}
}

type itemQuery struct {
	CollectionID string `form:"collectionID"`
	ItemID       string `form:"itemID"`
}

type fieldQuery struct {
	CollectionID string `form:"collectionID"`
	ItemID       string `form:"itemID"`
	FieldID      string `form:"fieldID"`
}

func (s *Server) subscribeItem(c *gin.Context) {
	var q itemQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.cache.SubscribeItem(c.Request.Context(), collcache.ItemRef{CollectionID: q.CollectionID, ItemID: q.ItemID})
	if err != nil {
		s.fail(c, err)
		return
	}
	stream(c, sub)
}

func (s *Server) subscribeHashItemField(c *gin.Context) {
	var q fieldQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.cache.SubscribeHashItemField(c.Request.Context(), collcache.FieldRef{
		CollectionID: q.CollectionID,
		ItemID:       q.ItemID,
		FieldID:      q.FieldID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	stream(c, sub)
}

// stream writes events until the subscription ends or the client leaves
// (the request context then ends the subscription).
func stream[T any](c *gin.Context, sub *collcache.Subscription[T]) {
	defer sub.Cancel()
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Subscription-Id", sub.ID())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		ev, ok := <-sub.C()
		if !ok {
			if err := sub.Err(); err != nil {
				_, body := classify(err)
				c.SSEvent("error", body)
			}
			return false
		}
		c.SSEvent("mutation", ev)
		return true
	})
}
