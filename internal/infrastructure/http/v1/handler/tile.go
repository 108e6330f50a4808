package handler

import (
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/plateserve/internal/repository/payload"
	"github.com/jaennil/plateserve/internal/usecase"
	"github.com/jaennil/plateserve/pkg/metrics"
)

type tileQuery struct {
	TransactionID int  `form:"transaction_id,default=-1" validate:"gte=-1"`
	Exact         bool `form:"exact,default=false"`
	NoCache       bool `form:"nocache,default=false"`
}

func contentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Tile serves one tile request. match holds the five path groups:
// id, level, col, row, format.
func (h *Handler) Tile(c *gin.Context, match []string) {
	l := loggerFrom(c)

	id, err := strconv.ParseInt(match[1], 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platefile id out of range"})
		return
	}
	level, err := strconv.Atoi(match[2])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile level out of range"})
		return
	}
	col, err := strconv.Atoi(match[3])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile column out of range"})
		return
	}
	row, err := strconv.Atoi(match[4])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile row out of range"})
		return
	}
	format := match[5]

	var q tileQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		l.Warn("illegal query string", "query", c.Request.URL.RawQuery, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "illegal query string value"})
		return
	}
	if err := h.validate.Struct(q); err != nil {
		l.Warn("illegal query string", "query", c.Request.URL.RawQuery, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "illegal transaction_id"})
		return
	}

	l.Info("tile request", "id", id, "level", level, "col", col, "row", row, "format", format)

	res, err := h.resolver.Resolve(usecase.TileRequest{
		PlatefileID:   int32(id),
		Level:         level,
		Col:           col,
		Row:           row,
		Format:        format,
		TransactionID: q.TransactionID,
		Exact:         q.Exact,
		NoCache:       q.NoCache,
	})
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	// Set the content type and cache policy before any body decision so
	// HEAD replies carry them too.
	c.Header("Content-Type", contentType(format))
	if res.Policy.NoCache {
		c.Header("Cache-Control", "no-cache")
	} else {
		c.Header("Cache-Control", "max-age="+strconv.Itoa(res.Policy.MaxAge))
	}

	// The resolution above already validated the dataset and the tile, so
	// a header-only reply is accurate without touching the blob.
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}

	key := payload.Key{
		PlatefileID: res.Entry.ID,
		Level:       level,
		Col:         col,
		Row:         row,
		Transaction: res.Transaction,
	}

	if h.payload != nil && !q.NoCache {
		data, exists, err := h.payload.Get(key)
		if err != nil {
			l.Error("payload cache lookup failed", "key", key, "error", err)
		} else if exists {
			metrics.PayloadCacheHits.Inc()
			c.Data(http.StatusOK, contentType(format), data)
			return
		} else {
			metrics.PayloadCacheMisses.Inc()
		}
	}

	filename, offset, size, err := h.resolver.Sendfile(res)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	// The transfer reads through a request-scoped handle so the file is
	// released on every exit path, even when the copy fails midway.
	f, err := os.Open(filename)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	defer f.Close()

	section := io.NewSectionReader(f, int64(offset), int64(size))

	if h.payload != nil && !q.NoCache {
		data, err := io.ReadAll(section)
		if err != nil {
			h.RespondWithError(c, err)
			return
		}
		if err := h.payload.Set(key, data); err != nil {
			l.Error("failed to store tile in payload cache", "key", key, "error", err)
		}
		c.Data(http.StatusOK, contentType(format), data)
		return
	}

	c.Header("Content-Length", strconv.FormatUint(size, 10))
	c.Status(http.StatusOK)

	sent, err := io.Copy(c.Writer, section)
	if err != nil {
		l.Error("server error [recovered]", "path", c.Request.URL.Path, "error", err)
		return
	}
	if uint64(sent) != size {
		l.Error("server error [recovered]", "path", c.Request.URL.Path,
			"error", "short write", "expected", size, "sent", sent)
	}
}
