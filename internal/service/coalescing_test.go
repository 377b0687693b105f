package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() (models.ProviderResponse, error) {
		calls.Add(1)
		<-release
		return models.ProviderResponse{Latitude: 40.1}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.ProviderResponse, 10)
	errs := make([]error, 10)
	shared := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if results[i].Latitude != 40.1 {
			t.Errorf("Request %d latitude = %v, want 40.1", i, results[i].Latitude)
		}
		if !shared[i] {
			t.Errorf("Request %d shared = false, want true", i)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", n)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("archive failure")
	_, _, err := coalescer.GetOrDo(context.Background(), "k", func() (models.ProviderResponse, error) {
		return models.ProviderResponse{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	_, _, err := coalescer.GetOrDo(context.Background(), "k", func() (models.ProviderResponse, error) {
		<-release
		return models.ProviderResponse{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32
	fn := func() (models.ProviderResponse, error) {
		calls.Add(1)
		return models.ProviderResponse{}, nil
	}
	for _, key := range []string{"a", "b", "c"} {
		if _, _, err := coalescer.GetOrDo(context.Background(), key, fn); err != nil {
			t.Fatalf("GetOrDo(%s) error = %v", key, err)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("fn call count = %d, want 3", n)
	}
}
