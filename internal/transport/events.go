package transport

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	rasterpipe "github.com/Skryldev/rasterpipe"
)

// EventPayload is the data of one Server-Sent Event.  Rasters are not sent;
// clients fetch /v1/current.png after display_ready or edited.
type EventPayload struct {
	Token      string `json:"token,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Key        string `json:"key,omitempty"`
	Source     string `json:"source,omitempty"`
	Format     string `json:"format,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Frame      int    `json:"frame"`
	FrameDelay int64  `json:"frame_delay_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Time       string `json:"time"`
}

func eventPayload(ev rasterpipe.Event) EventPayload {
	p := EventPayload{
		Token:      ev.Token.ID,
		Generation: ev.Token.Generation,
		Key:        string(ev.Key),
		Source:     ev.Source,
		Format:     string(ev.Meta.Format),
		Width:      ev.Meta.Width,
		Height:     ev.Meta.Height,
		Frame:      ev.Frame,
		FrameDelay: ev.FrameDelay.Milliseconds(),
		Time:       ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// events streams coordinator events until the client disconnects or the
// coordinator stops.
func (s *Server) events(c *gin.Context) {
	ch, cancel := s.coord.Subscribe(0)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	s.logger.Debug("transport.events.open", "ip", c.ClientIP())

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), eventPayload(ev))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	s.logger.Debug("transport.events.closed", "ip", c.ClientIP())
}
