package blob

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/pkg/logger"
)

func writeRecord(t *testing.T, dir string, blobID uint32, payload []byte) uint64 {
	t.Helper()
	b, err := Open(Filename(dir, blobID))
	if err != nil {
		t.Fatalf("failed to open blob: %v", err)
	}
	defer b.Close()

	offset, err := b.Append(payload)
	if err != nil {
		t.Fatalf("failed to append record: %v", err)
	}
	return offset
}

func TestReadSendfile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("tile bytes go here")

	first := writeRecord(t, dir, 1, []byte("earlier record"))
	offset := writeRecord(t, dir, 1, payload)
	if first == offset {
		t.Fatal("appended records share an offset")
	}

	b, err := Open(Filename(dir, 1))
	if err != nil {
		t.Fatalf("failed to open blob: %v", err)
	}
	defer b.Close()

	filename, dataOffset, dataLen, err := b.ReadSendfile(offset)
	if err != nil {
		t.Fatalf("ReadSendfile failed: %v", err)
	}
	if filename != Filename(dir, 1) {
		t.Fatalf("filename = %q", filename)
	}
	if dataLen != uint64(len(payload)) {
		t.Fatalf("dataLen = %d, want %d", dataLen, len(payload))
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(io.NewSectionReader(f, int64(dataOffset), int64(dataLen)))
	if err != nil {
		t.Fatalf("failed to read section: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestReadSendfileCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	path := Filename(dir, 1)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF}, 32), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	b, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open blob: %v", err)
	}
	defer b.Close()

	_, _, _, err = b.ReadSendfile(0)
	if err == nil {
		t.Fatal("expected an error for a corrupt header")
	}
	if !platerr.IsServerError(err) {
		t.Fatalf("kind = %v, want server error", platerr.KindOf(err))
	}
}

func TestCacheReturnsSameHandle(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, 1, []byte("x"))

	c := NewCache(logger.NewNop())

	first, err := c.Resolve(5, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := c.Resolve(5, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the identical handle on a cache hit")
	}
	if c.Len() != 1 {
		t.Fatalf("cache holds %d handles, want 1", c.Len())
	}
}

func TestCacheInvalidatesOnDatasetChange(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, 1, []byte("x"))

	c := NewCache(logger.NewNop())

	first, err := c.Resolve(5, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Same filename, different owning dataset: the stale handle must not
	// be served.
	second, err := c.Resolve(6, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first == second {
		t.Fatal("stale handle served for a recreated dataset")
	}

	// And the replacement is now the cached handle for the new dataset.
	third, err := c.Resolve(6, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if second != third {
		t.Fatal("expected the replacement handle to be cached")
	}
}

func TestCacheDistinguishesBlobIDs(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, 1, []byte("x"))
	writeRecord(t, dir, 2, []byte("y"))

	c := NewCache(logger.NewNop())

	a, err := c.Resolve(5, dir, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	b, err := c.Resolve(5, dir, 2)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if a == b {
		t.Fatal("distinct blob ids share a handle")
	}
	if c.Len() != 2 {
		t.Fatalf("cache holds %d handles, want 2", c.Len())
	}
}

func TestOpenCreatesMissingBlob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plate_9.blob")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer b.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("blob file was not created: %v", err)
	}
}
