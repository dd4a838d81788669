package reconcile

import (
	"golang.org/x/sync/singleflight"
)

// Coalescer shares one in-flight pass between concurrent callers asking for
// the same key, so repeated triggers do not stampede the stores.
type Coalescer struct {
	sf singleflight.Group
}

// Do runs fn unless a pass for key is already running, in which case it waits
// for that pass and returns its report. shared is true for joined callers.
func (c *Coalescer) Do(key string, fn func() (*Report, error)) (report *Report, shared bool, err error) {
	v, err, shared := c.sf.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*Report), shared, nil
}
