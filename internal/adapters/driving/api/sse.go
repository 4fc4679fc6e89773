package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/logger"
)

// streamEvents writes each event as an SSE frame and flushes it. It returns
// when the channel closes; a client disconnect cancels the request context,
// which makes the producer close the channel.
func streamEvents(c echo.Context, events <-chan domain.Event) error {
	res := c.Response()
	h := res.Header()
	h.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	broken := false
	for ev := range events {
		if broken {
			// Drain so the producer is never blocked on a dead client.
			continue
		}
		if err := writeEvent(res, ev); err != nil {
			logger.Debug("sse write failed: %v", err)
			broken = true
			continue
		}
		res.Flush()
	}
	return nil
}

func writeEvent(w http.ResponseWriter, ev domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
