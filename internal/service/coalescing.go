package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

// requestCoalescer folds concurrent fetches for the same key into one
// upstream call. Waiters give up after timeout or when their context ends;
// the shared call keeps running for the others.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. shared is true
// when the result was delivered to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.ProviderResponse, error)) (resp models.ProviderResponse, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		return fn()
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ProviderResponse{}, res.Shared, res.Err
		}
		return res.Val.(models.ProviderResponse), res.Shared, nil
	case <-waitCtx.Done():
		return models.ProviderResponse{}, false, waitCtx.Err()
	}
}
