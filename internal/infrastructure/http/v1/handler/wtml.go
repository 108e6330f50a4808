package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WTML serves the dataset listing document.
func (h *Handler) WTML(c *gin.Context, name string) {
	l := loggerFrom(c)

	c.Header("Content-Type", "application/xml")

	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	prefix := scheme + "://" + c.Request.Host + "/wwt/"

	doc, err := h.resolver.WTMLFolder(prefix, c.Request.URL.RawQuery)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	l.Debug("served wtml", "name", name)
	c.String(http.StatusOK, doc)
}
