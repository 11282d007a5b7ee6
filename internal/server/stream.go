package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	streamEventSnapshot     = "snapshot"
	streamEventRecordChange = "record-change"
	streamEventHeartbeat    = "heartbeat"
	streamEventError        = "stream-error"

	defaultHeartbeatInterval = 25 * time.Second
)

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// handleRecordStream serves the actor's records of one kind as server-sent events:
// a snapshot first, then one record-change per mutation.
func (h *httpHandler) handleRecordStream(c *gin.Context) {
	kind, err := ledger.ParseKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor := currentActor(c)
	ctx := c.Request.Context()

	watch, err := h.ledger.Watch(ctx, actor, kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer watch.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(streamEventSnapshot, listResponsePayload[ledger.Record]{Items: watch.Snapshot})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, open := <-watch.Changes():
			if !open {
				h.closeStream(c, actor, kind, watch.Err())
				return false
			}
			c.SSEvent(streamEventRecordChange, change)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(streamEventHeartbeat, heartbeatPayload{Timestamp: tick.UTC()})
			return true
		}
	})
}

func (h *httpHandler) closeStream(c *gin.Context, actor ledger.Actor, kind ledger.Kind, err error) {
	if err == nil {
		return
	}
	reason := "stream_failed"
	if errors.Is(err, feed.ErrLagged) {
		reason = "lagged"
	}
	h.logger.Warn("record stream closed",
		zap.String("actor_id", actor.ID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
		zap.Error(err))
	c.SSEvent(streamEventError, errorPayload{Error: reason, Message: "reconnect to receive a fresh snapshot"})
}
