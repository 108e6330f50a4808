package payload

import "sync"

type MapCache struct {
	m sync.Map
}

func NewMapCache() *MapCache {
	return &MapCache{}
}

var _ Cache = (*MapCache)(nil)

func (c *MapCache) Get(k Key) (Value, bool, error) {
	v, exists := c.m.Load(k)
	if !exists {
		return nil, false, nil
	}
	return v.(Value), true, nil
}

func (c *MapCache) Set(k Key, v Value) error {
	c.m.Store(k, v)
	return nil
}
