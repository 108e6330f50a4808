package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/internal/remote"
	"github.com/jaennil/plateserve/internal/repository/blob"
	"github.com/jaennil/plateserve/internal/repository/index"
	"github.com/jaennil/plateserve/internal/repository/payload"
	"github.com/jaennil/plateserve/internal/usecase"
	"github.com/jaennil/plateserve/pkg/logger"
)

type fakeIndexService struct {
	names   []string
	headers map[string]remote.Header

	resolveRec remote.Record
	resolveErr error

	resolveCalls int
}

func (f *fakeIndexService) ListDatasets() ([]string, error) { return f.names, nil }

func (f *fakeIndexService) IndexHeader(name string) (remote.Header, error) {
	hdr, ok := f.headers[name]
	if !ok {
		return remote.Header{}, errors.New("no such index")
	}
	return hdr, nil
}

func (f *fakeIndexService) ResolveTile(id int32, col, row, level, transactionID int, exact bool) (remote.Record, error) {
	f.resolveCalls++
	return f.resolveRec, f.resolveErr
}

func (f *fakeIndexService) Close() error { return nil }

// newTestServer wires a full handler stack over a fake index service and a
// single on-disk blob holding tilePayload.
func newTestServer(t *testing.T, payloadCache payload.Cache) (*gin.Engine, *fakeIndexService) {
	t.Helper()

	dir := t.TempDir()
	b, err := blob.Open(blob.Filename(dir, 1))
	if err != nil {
		t.Fatalf("failed to open blob: %v", err)
	}
	offset, err := b.Append([]byte(tilePayload))
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	b.Close()

	f := &fakeIndexService{
		names: []string{"mars"},
		headers: map[string]remote.Header{
			"mars": {PlatefileID: 5, Filename: dir, Description: "Mars MDIM", TileFiletype: "png", NumLevels: 11, TransactionCursor: 42},
		},
		resolveRec: remote.Record{BlobID: 1, BlobOffset: offset},
	}

	idx := index.NewCache(func() (index.RemoteClient, error) { return f, nil }, logger.NewNop())
	resolver := usecase.NewTileResolver(idx, blob.NewCache(logger.NewNop()), logger.NewNop())
	h := NewHandler(validator.New(), resolver, payloadCache)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(h.Dispatch)
	return r, f
}

const tilePayload = "not really a png"

func doRequest(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestTileServed(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "max-age=604800" {
		t.Fatalf("cache control = %q, want the coarse window", got)
	}
	if w.Body.String() != tilePayload {
		t.Fatalf("body = %q, want %q", w.Body.String(), tilePayload)
	}
}

func TestTileFineLevelCacheWindow(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/5/8/1/2.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "max-age=1200" {
		t.Fatalf("cache control = %q, want the fine window", got)
	}
}

func TestTileNoCacheQuery(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png?nocache=true")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache control = %q, want no-cache", got)
	}
}

func TestTileNotFound(t *testing.T) {
	r, f := newTestServer(t, nil)
	f.resolveErr = platerr.New(platerr.KindTileNotFound, "no tile at that address")

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTileIllegalTransaction(t *testing.T) {
	r, f := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png?transaction_id=-2")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if f.resolveCalls != 0 {
		t.Fatal("an illegal transaction_id must not reach the index")
	}
}

func TestTileMalformedQuery(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png?transaction_id=banana")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTileCoordinateOutOfRange(t *testing.T) {
	r, f := newTestServer(t, nil)

	// Digit runs too long for the integer type must be rejected, not
	// silently clamped.
	overflow := strings.Repeat("9", 25)
	targets := []string{
		"/wwt/p/" + overflow + "/3/1/2.png",
		"/wwt/p/5/" + overflow + "/1/2.png",
		"/wwt/p/5/3/" + overflow + "/2.png",
		"/wwt/p/5/3/1/" + overflow + ".png",
	}

	for _, target := range targets {
		w := doRequest(r, http.MethodGet, target)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, w.Code)
		}
	}
	if f.resolveCalls != 0 {
		t.Fatal("out-of-range coordinates must not reach the index")
	}
}

func TestTileUnknownPlatefile(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/99/3/1/2.png")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no such platefile") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestTileIndexFailure(t *testing.T) {
	r, f := newTestServer(t, nil)
	f.resolveErr = errors.New("broker hiccup")

	w := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	// Internal detail must not leak to the client.
	if strings.Contains(w.Body.String(), "broker hiccup") {
		t.Fatalf("body leaks internals: %s", w.Body.String())
	}
}

func TestTileHead(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodHead, "/wwt/p/5/3/1/2.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "max-age=604800" {
		t.Fatalf("cache control = %q", got)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("HEAD reply carries a body of %d bytes", w.Body.Len())
	}
}

func TestTilePayloadCache(t *testing.T) {
	r, f := newTestServer(t, payload.NewMapCache())

	first := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png")
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d", first.Code)
	}

	second := doRequest(r, http.MethodGet, "/wwt/p/5/3/1/2.png")
	if second.Code != http.StatusOK {
		t.Fatalf("status = %d", second.Code)
	}
	if second.Body.String() != tilePayload {
		t.Fatalf("cached body = %q", second.Body.String())
	}
	if f.resolveCalls != 2 {
		// The cache shortcuts the blob read, not the index resolution: a
		// tile's location can change between transactions.
		t.Fatalf("index resolved %d times, want 2", f.resolveCalls)
	}
}

func TestWTMLDocument(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/index.wtml")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/xml") {
		t.Fatalf("content type = %q", got)
	}

	body := w.Body.String()
	if !strings.Contains(body, "<ImageSet") {
		t.Fatalf("document has no ImageSet: %s", body)
	}
	if !strings.Contains(body, "Name='Mars MDIM'") {
		t.Fatalf("document misses the dataset description: %s", body)
	}
	if !strings.Contains(body, "/wwt/p/5/{1}/{2}/{3}.png") {
		t.Fatalf("document misses the tile url template: %s", body)
	}
}

func TestWTMLPropagatesQuery(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/index.wtml?transaction_id=17")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ".png?transaction_id=17") {
		t.Fatalf("tile urls should carry the query through: %s", w.Body.String())
	}
}

func TestDispatchUnmatchedPath(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := doRequest(r, http.MethodGet, "/wwt/p/not/a/tile")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
