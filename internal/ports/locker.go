package ports

import "context"

// Locker serializes writers of one aggregate row. Lock blocks until the key is
// free or ctx ends; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
