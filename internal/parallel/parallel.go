// Package parallel runs independent per-item work on a bounded set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of worker goroutines.
	MinChunkSize int  // Minimum items per goroutine.
}

// DefaultConfig returns defaults for heavy per-item work such as one model
// inference per item: one worker per CPU, chunks of a single item.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// WithWorkers returns cfg limited to n workers. Non-positive n keeps cfg.
func (cfg Config) WithWorkers(n int) Config {
	if n > 0 {
		cfg.NumWorkers = n
		cfg.Enabled = n > 1
	}
	return cfg
}

// For executes f(i) for i in [0, n) on at most cfg.NumWorkers goroutines.
// It runs sequentially when parallelism is disabled or n is below the chunk size.
func For(n int, f func(i int), cfg Config) {
	workers := max(cfg.NumWorkers, 1)
	minChunk := max(cfg.MinChunkSize, 1)
	if !cfg.Enabled || workers == 1 || n <= minChunk {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+workers-1)/workers, minChunk)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Map applies f to every item and returns the results in input order.
func Map[T, R any](items []T, f func(item T) R, cfg Config) []R {
	out := make([]R, len(items))
	For(len(items), func(i int) {
		out[i] = f(items[i])
	}, cfg)
	return out
}
