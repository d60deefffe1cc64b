package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

func (s *Server) handleWebhook(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		c.String(http.StatusUnauthorized, "missing bearer token")
		return
	}

	ctx := c.Request.Context()
	user, err := s.repo.GetUserByWebhookToken(ctx, strings.TrimSpace(token))
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("webhook with unknown token", "request_id", c.GetString(requestIDKey))
		c.String(http.StatusNotFound, "unknown token")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBody))
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}
	ev, err := status.ParseEvent(body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.feed.Handle(ctx, user.ID, ev)
	switch {
	case status.IsIgnorable(err):
		slog.Debug("delivery ignored", "user", user.ID, "reason", ev.Reason, "error", err)
		c.Status(http.StatusNoContent)
		return
	case status.IsProtocolError(err):
		c.String(http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(c, err)
		return
	}

	c.String(http.StatusOK, res.Text)
}

func (s *Server) handleShortLink(c *gin.Context) {
	long, err := s.repo.ResolveLink(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "no such link")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.Redirect(http.StatusFound, long)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) internalError(c *gin.Context, err error) {
	slog.Error("request failed",
		"request_id", c.GetString(requestIDKey),
		"path", c.FullPath(),
		"error", err)
	c.String(http.StatusInternalServerError, "internal error")
}
