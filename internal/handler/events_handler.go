package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/response"
)

const keepAliveInterval = 30 * time.Second

// EventsHandler streams snapshot updates published for a test over SSE.
type EventsHandler struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewEventsHandler(rdb *redis.Client, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		rdb: rdb,
		log: log.With().Str("component", "events_handler").Logger(),
	}
}

// StreamTestEvents godoc
// GET /api/v1/assessment/tests/:test_id/events
func (h *EventsHandler) StreamTestEvents(c *gin.Context) {
	testID, err := strconv.Atoi(c.Param("test_id"))
	if err != nil || testID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.AssessmentEventsChannel(testID))
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Int("test_id", testID).Msg("Viewer attached to snapshot stream")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("test_id", testID).Msg("Viewer detached from snapshot stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Snapshots are already JSON; forward them untouched.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
