package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/star/satvis/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE frames to one connection.
type client struct {
	w  io.Writer
	rc *http.ResponseController
}

// sendJSON writes v as one "data:" event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	n, err := c.write(fmt.Sprintf("data: %s\n\n", data))
	if err != nil {
		return err
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(n)
	return nil
}

// sendKeepalive writes an SSE comment.
func (c *client) sendKeepalive() error {
	n, err := c.write(":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	metrics.AddStreamBytes(n)
	return nil
}

func (c *client) sendRetry(d time.Duration) error {
	_, err := c.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
	return err
}

// write pushes the deadline forward before each frame so that only a
// stalled client trips it.
func (c *client) write(s string) (int, error) {
	c.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := io.WriteString(c.w, s)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}
