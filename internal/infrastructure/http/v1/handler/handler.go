package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/internal/repository/payload"
	"github.com/jaennil/plateserve/internal/usecase"
	"github.com/jaennil/plateserve/pkg/logger"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type Handler struct {
	validate *validator.Validate
	resolver *usecase.TileResolver
	// payload is optional; nil disables the payload cache.
	payload payload.Cache
}

func NewHandler(v *validator.Validate, resolver *usecase.TileResolver, payloadCache payload.Cache) *Handler {
	return &Handler{
		validate: v,
		resolver: resolver,
		payload:  payloadCache,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func loggerFrom(c *gin.Context) logger.Logger {
	log, _ := c.Get("logger")
	if l, ok := log.(logger.Logger); ok {
		return l
	}
	return logger.NewNop()
}

// RespondWithError translates the error taxonomy to HTTP statuses: bad
// request 400, missing tile 404, server error 500, anything unclassified
// 500 with escalated logging.
func (h *Handler) RespondWithError(c *gin.Context, err error) {
	l := loggerFrom(c)

	switch platerr.KindOf(err) {
	case platerr.KindBadRequest:
		l.Warn("bad request", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case platerr.KindTileNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not found"})
	case platerr.KindServerError:
		l.Error("server error [recovered]", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalServerErrorText})
	default:
		l.Error("server error [unclassified]", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalServerErrorText})
	}
}
