// Package payload caches decoded tile payload bytes so hot tiles can be
// answered without touching the blob files. It is optional: when disabled,
// tiles are served zero-copy straight from the blobs.
package payload

type Key struct {
	PlatefileID int32
	Level       int
	Col         int
	Row         int
	Transaction int
}

type Value []byte

type Cache interface {
	Get(Key) (Value, bool, error)
	Set(Key, Value) error
}
