// Package transport exposes a Coordinator over HTTP so that a remote shell
// can drive navigation and editing and receive display events.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	rasterpipe "github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/pipeline"
)

// NavigateRequest names a file to open.  Width and Height set the
// rasterization size for vector formats.
type NavigateRequest struct {
	Path   string `json:"path" binding:"required"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ExportRequest names the destination of an export; the extension picks the
// format.
type ExportRequest struct {
	Path     string `json:"path" binding:"required"`
	Quality  int    `json:"quality,omitempty"`
	Lossless bool   `json:"lossless,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TokenResponse acknowledges a navigation.  The image itself arrives as a
// display_ready event.
type TokenResponse struct {
	Token      string `json:"token"`
	Generation uint64 `json:"generation"`
}

// ViewResponse summarises what is on screen.
type ViewResponse struct {
	Source     string   `json:"source"`
	Key        string   `json:"key"`
	Format     string   `json:"format"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Frame      int      `json:"frame"`
	Frames     int      `json:"frames"`
	FrameDelay int64    `json:"frame_delay_ms,omitempty"`
	Edits      []string `json:"edits"`
	Cursor     int      `json:"cursor"`
	CanUndo    bool     `json:"can_undo"`
	CanRedo    bool     `json:"can_redo"`
}

// Server holds the handler dependencies.
type Server struct {
	coord   *rasterpipe.Coordinator
	logger  core.Logger
	maxBody int64
}

// NewHandler returns the HTTP routes for coord.  Request bodies larger than
// maxBody bytes are rejected; 0 disables the limit.
func NewHandler(coord *rasterpipe.Coordinator, logger core.Logger, maxBody int64) http.Handler {
	if logger == nil {
		logger = core.NopLogger{}
	}
	s := &Server{coord: coord, logger: logger, maxBody: maxBody}

	r := gin.New()
	r.Use(gin.CustomRecovery(s.handlePanics()), s.requestLogger())
	if maxBody > 0 {
		r.Use(requestSizeLimiter(maxBody))
	}

	r.GET("/health", healthCheck)
	v1 := r.Group("/v1")
	{
		v1.POST("/navigate", s.navigate)
		v1.POST("/next", s.step(coord.Next))
		v1.POST("/prev", s.step(coord.Prev))
		v1.POST("/reload", s.reload)
		v1.POST("/close", s.close)

		v1.POST("/edit", s.edit)
		v1.POST("/undo", s.history(coord.Undo))
		v1.POST("/redo", s.history(coord.Redo))
		v1.POST("/revert", s.history(coord.Revert))
		v1.POST("/tick", s.tick)

		v1.GET("/current", s.current)
		v1.GET("/current.png", s.currentPNG)
		v1.GET("/color", s.color)
		v1.GET("/stats", s.stats)
		v1.GET("/events", s.events)
		v1.POST("/export", s.export)
	}
	return r
}

// ── Navigation ────────────────────────────────────────────────────────────────

// navigate accepts either a JSON NavigateRequest or a raw image body, as
// pasted from a clipboard, with an optional ?hint= format.
func (s *Server) navigate(c *gin.Context) {
	var src core.ImageSource
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req NavigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		fs, err := rasterpipe.FromFile(req.Path)
		if err != nil {
			s.respondError(c, statusFor(err), "cannot open file", err)
			return
		}
		src = fs
		if req.Width > 0 && req.Height > 0 {
			src = src.WithTarget(req.Width, req.Height)
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.respondError(c, http.StatusRequestEntityTooLarge, "cannot read body", err)
			return
		}
		if len(body) == 0 {
			s.respondError(c, http.StatusBadRequest, "empty body", apperrors.ErrEmptyInput)
			return
		}
		hint := c.Query("hint")
		if hint == "" {
			hint = c.ContentType()
		}
		src = rasterpipe.FromBytes(body, hint)
	}

	token, err := s.coord.Navigate(src)
	if err != nil {
		s.respondError(c, statusFor(err), "navigation failed", err)
		return
	}
	c.JSON(http.StatusAccepted, tokenResponse(token))
}

func (s *Server) step(move func(context.Context) (core.LoadToken, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := move(c.Request.Context())
		if err != nil {
			s.respondError(c, statusFor(err), "navigation failed", err)
			return
		}
		c.JSON(http.StatusAccepted, tokenResponse(token))
	}
}

func (s *Server) reload(c *gin.Context) {
	token, err := s.coord.Reload()
	if err != nil {
		s.respondError(c, statusFor(err), "reload failed", err)
		return
	}
	c.JSON(http.StatusAccepted, tokenResponse(token))
}

func (s *Server) close(c *gin.Context) {
	s.coord.Close()
	c.Status(http.StatusNoContent)
}

// ── Editing ───────────────────────────────────────────────────────────────────

func (s *Server) edit(c *gin.Context) {
	var spec pipeline.OpSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	op, err := spec.Build()
	if err != nil {
		s.respondError(c, statusFor(err), "invalid edit", err)
		return
	}
	if err := s.coord.ApplyEdit(c.Request.Context(), op); err != nil {
		s.respondError(c, statusFor(err), "edit rejected", err)
		return
	}
	s.current(c)
}

func (s *Server) history(move func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed := move()
		v, ok := s.coord.Current()
		if !ok {
			s.respondError(c, http.StatusNotFound, "no image", apperrors.ErrNoImage)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changed": changed, "view": viewResponse(v)})
	}
}

// tick advances animation playback by ?ms= milliseconds.
func (s *Server) tick(c *gin.Context) {
	ms, err := strconv.Atoi(c.DefaultQuery("ms", "0"))
	if err != nil || ms < 0 {
		s.respondError(c, http.StatusBadRequest, "invalid ms", fmt.Errorf("ms=%q", c.Query("ms")))
		return
	}
	changed := s.coord.Tick(time.Duration(ms) * time.Millisecond)
	resp := gin.H{"changed": changed}
	if d, ok := s.coord.NextFrameIn(); ok {
		resp["next_frame_ms"] = d.Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}

// ── Output ────────────────────────────────────────────────────────────────────

func (s *Server) current(c *gin.Context) {
	v, ok := s.coord.Current()
	if !ok {
		s.respondError(c, http.StatusNotFound, "no image", apperrors.ErrNoImage)
		return
	}
	c.JSON(http.StatusOK, viewResponse(v))
}

func (s *Server) currentPNG(c *gin.Context) {
	if _, ok := s.coord.Current(); !ok {
		s.respondError(c, http.StatusNotFound, "no image", apperrors.ErrNoImage)
		return
	}
	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := s.coord.Export(c.Request.Context(), c.Writer, core.FormatPNG, core.EncodeOptions{}); err != nil {
		// Headers are gone; the client sees a truncated body.
		s.logger.Error("transport.current.encode", "error", err.Error())
	}
}

func (s *Server) color(c *gin.Context) {
	x, errX := strconv.Atoi(c.Query("x"))
	y, errY := strconv.Atoi(c.Query("y"))
	if errX != nil || errY != nil {
		s.respondError(c, http.StatusBadRequest, "x and y must be integers", errors.Join(errX, errY))
		return
	}
	sample, err := s.coord.SampleColor(x, y)
	if err != nil {
		s.respondError(c, statusFor(err), "cannot sample", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"x":     sample.X,
		"y":     sample.Y,
		"rgba":  []uint8{sample.RGBA.R, sample.RGBA.G, sample.RGBA.B, sample.RGBA.A},
		"hex":   sample.Hex,
		"hsl":   sample.HSL,
		"hsv":   sample.HSV,
		"lab":   sample.Lab,
		"alpha": sample.Alpha,
	})
}

func (s *Server) stats(c *gin.Context) {
	st := s.coord.Stats()
	c.JSON(http.StatusOK, gin.H{
		"cache": gin.H{
			"entries":   st.Cache.Entries,
			"pinned":    st.Cache.Pinned,
			"weight":    st.Cache.Weight,
			"capacity":  st.Cache.Capacity,
			"hits":      st.Cache.Hits,
			"misses":    st.Cache.Misses,
			"evictions": st.Cache.Evictions,
		},
		"scheduler": gin.H{
			"submitted":  st.Scheduler.Submitted,
			"completed":  st.Scheduler.Completed,
			"failed":     st.Scheduler.Failed,
			"superseded": st.Scheduler.Superseded,
			"queued":     st.Scheduler.Queued,
		},
		"current": st.Current,
		"edits":   st.Edits,
		"cursor":  st.Cursor,
	})
}

func (s *Server) export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	opts := core.EncodeOptions{Quality: req.Quality, Lossless: req.Lossless}
	if err := s.coord.ExportFile(c.Request.Context(), req.Path, opts); err != nil {
		s.respondError(c, statusFor(err), "export failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.Path})
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func tokenResponse(t core.LoadToken) TokenResponse {
	return TokenResponse{Token: t.ID, Generation: t.Generation}
}

func viewResponse(v rasterpipe.View) ViewResponse {
	return ViewResponse{
		Source:     v.Source,
		Key:        string(v.Key),
		Format:     string(v.Meta.Format),
		Width:      v.Meta.Width,
		Height:     v.Meta.Height,
		Frame:      v.Frame,
		Frames:     v.Frames,
		FrameDelay: v.FrameDelay.Milliseconds(),
		Edits:      v.Edits,
		Cursor:     v.Cursor,
		CanUndo:    v.CanUndo,
		CanRedo:    v.CanRedo,
	}
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNoImage), errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.IsCategory(err, apperrors.CategoryValidation),
		apperrors.IsCategory(err, apperrors.CategoryDecode):
		return http.StatusUnprocessableEntity
	case apperrors.IsCategory(err, apperrors.CategoryInput):
		return http.StatusBadRequest
	case apperrors.IsCategory(err, apperrors.CategorySuperseded):
		return http.StatusConflict
	case apperrors.IsCategory(err, apperrors.CategoryFatal):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(c *gin.Context, code int, message string, err error) {
	s.logger.Warn("transport.request.failed",
		"status_code", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"error", fmt.Sprint(err),
	)
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
