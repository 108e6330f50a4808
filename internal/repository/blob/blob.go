// Package blob reads tile payloads out of append-only blob files and
// caches the open file handles.
package blob

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jaennil/plateserve/internal/platerr"
)

// Each record is a fixed binary header followed by the payload bytes.
const (
	recordMagic   uint32 = 0x504C4254 // "PLBT"
	recordHdrSize        = 16
)

type recordHeader struct {
	Magic    uint32
	Reserved uint32
	DataLen  uint64
}

// Blob is an open, reusable handle onto one append-only blob file. Reads
// use ReadAt, so one handle may serve many requests concurrently. The
// serving path never writes through it.
type Blob struct {
	filename string
	file     *os.File
}

// Open opens the blob file, creating it if it does not exist yet.
func Open(filename string) (*Blob, error) {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, platerr.Wrap(platerr.KindServerError, fmt.Sprintf("failed to open blob %s", filename), err)
	}
	return &Blob{filename: filename, file: f}, nil
}

func (b *Blob) Filename() string { return b.filename }

// ReadSendfile translates a record offset into the (filename, byte offset,
// byte length) triple of the record's payload, suitable for zero-copy
// transfer by the HTTP layer.
func (b *Blob) ReadSendfile(offset uint64) (filename string, dataOffset, dataLen uint64, err error) {
	var raw [recordHdrSize]byte
	if _, err := b.file.ReadAt(raw[:], int64(offset)); err != nil {
		return "", 0, 0, platerr.Wrap(platerr.KindServerError,
			fmt.Sprintf("failed to read record header at %d in %s", offset, b.filename), err)
	}

	hdr := recordHeader{
		Magic:    binary.BigEndian.Uint32(raw[0:4]),
		Reserved: binary.BigEndian.Uint32(raw[4:8]),
		DataLen:  binary.BigEndian.Uint64(raw[8:16]),
	}
	if hdr.Magic != recordMagic {
		return "", 0, 0, platerr.Errorf(platerr.KindServerError,
			"corrupt record header at %d in %s", offset, b.filename)
	}

	return b.filename, offset + recordHdrSize, hdr.DataLen, nil
}

// Append writes one record at the end of the file and returns its offset.
// The serving path never calls this; it exists for tooling and tests that
// build blob fixtures.
func (b *Blob) Append(payload []byte) (uint64, error) {
	end, err := b.file.Seek(0, 2)
	if err != nil {
		return 0, err
	}

	var raw [recordHdrSize]byte
	binary.BigEndian.PutUint32(raw[0:4], recordMagic)
	binary.BigEndian.PutUint64(raw[8:16], uint64(len(payload)))

	if _, err := b.file.Write(raw[:]); err != nil {
		return 0, err
	}
	if _, err := b.file.Write(payload); err != nil {
		return 0, err
	}
	return uint64(end), nil
}

func (b *Blob) Close() error { return b.file.Close() }
