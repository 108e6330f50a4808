package handler

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// Request paths are matched against their suffix, so the handler works
// regardless of the prefix it is mounted under.
var (
	tilePathRe = regexp.MustCompile(`/(\d+)/(\d+)/(\d+)/(\d+)\.(\w+)$`)
	wtmlPathRe = regexp.MustCompile(`/(\w+)\.wtml$`)
)

// Dispatch routes unrouted paths to the tile or WTML handler, trying each
// pattern in turn.
func (h *Handler) Dispatch(c *gin.Context) {
	path := c.Request.URL.Path

	if m := tilePathRe.FindStringSubmatch(path); m != nil {
		h.Tile(c, m)
		return
	}
	if m := wtmlPathRe.FindStringSubmatch(path); m != nil {
		h.WTML(c, m[1])
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
