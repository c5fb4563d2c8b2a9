// Package cost estimates per-file token costs for selection rollups and
// summaries. Estimates are cheap deterministic length-based approximations,
// memoized by path for the process lifetime.
package cost

import (
	"context"
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// estimationBytesPerToken divides the content length in the estimate.
	estimationBytesPerToken = 4
	// minimumNonEmptyEstimate floors the estimate for non-empty content.
	minimumNonEmptyEstimate = 1
	// warmUpConcurrencyLimit bounds concurrent reads during WarmUp.
	warmUpConcurrencyLimit = 8
)

// FallbackSource supplies file content when the path cannot be read from
// disk, such as a version-control blob for a deleted file.
type FallbackSource interface {
	Content(path string) (string, bool)
}

// Estimator memoizes per-path cost estimates. The cache is append-only and
// safe to share across trees; entries leave only through Invalidate.
type Estimator struct {
	mutex    sync.Mutex
	memo     map[string]int
	fallback FallbackSource
}

// NewEstimator constructs an Estimator. The fallback source may be nil.
func NewEstimator(fallback FallbackSource) *Estimator {
	return &Estimator{
		memo:     make(map[string]int),
		fallback: fallback,
	}
}

// Estimate returns the cost of the file at path: one token per four bytes of
// content rounded up, at least one for non-empty content, zero for empty or
// unreadable content without a fallback. The first result per path is cached
// for the process lifetime.
func (estimator *Estimator) Estimate(path string) int {
	estimator.mutex.Lock()
	if memoizedEstimate, found := estimator.memo[path]; found {
		estimator.mutex.Unlock()
		return memoizedEstimate
	}
	estimator.mutex.Unlock()

	computedEstimate := estimator.computeEstimate(path)

	estimator.mutex.Lock()
	estimator.memo[path] = computedEstimate
	estimator.mutex.Unlock()
	return computedEstimate
}

// Invalidate evicts the memoized estimate for path. Nothing evicts entries
// automatically; callers that know content changed must do so.
func (estimator *Estimator) Invalidate(path string) {
	estimator.mutex.Lock()
	delete(estimator.memo, path)
	estimator.mutex.Unlock()
}

// WarmUp populates the cache for the provided paths with bounded concurrency.
// Cancellation stops scheduling and is not reported as an error.
func (estimator *Estimator) WarmUp(ctx context.Context, paths []string) error {
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(warmUpConcurrencyLimit)
	for _, path := range paths {
		group.Go(func() error {
			select {
			case <-groupContext.Done():
				return groupContext.Err()
			default:
			}
			estimator.Estimate(path)
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil && !errors.Is(waitError, context.Canceled) {
		return waitError
	}
	return nil
}

func (estimator *Estimator) computeEstimate(path string) int {
	contentLength := -1
	fileData, readError := os.ReadFile(path)
	if readError == nil {
		contentLength = len(fileData)
	} else if estimator.fallback != nil {
		if fallbackContent, available := estimator.fallback.Content(path); available {
			contentLength = len(fallbackContent)
		}
	}
	if contentLength <= 0 {
		return 0
	}
	estimate := (contentLength + estimationBytesPerToken - 1) / estimationBytesPerToken
	if estimate < minimumNonEmptyEstimate {
		estimate = minimumNonEmptyEstimate
	}
	return estimate
}
