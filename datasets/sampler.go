package datasets

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// sampler selects the indices of each batch yielded by a dataset.
type sampler struct {
	// mu protects counter, order and shuffle.
	mu sync.Mutex

	numExamples int
	batchSize   int
	infinite    bool

	// shuffle is nil when examples are visited in index order.
	shuffle *rand.Rand

	counter int
	order   []int
}

func newSampler(numExamples int, cfg Config) *sampler {
	s := &sampler{
		numExamples: numExamples,
		batchSize:   cfg.BatchSize,
		infinite:    cfg.Infinite,
	}
	if cfg.Shuffle {
		s.shuffle = newRand(cfg.Seed)
	}
	s.reset()
	return s
}

// reset restarts the epoch, reshuffling the visiting order if configured.
func (s *sampler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter = 0
	if s.infinite || s.shuffle == nil {
		return
	}
	if len(s.order) != s.numExamples {
		s.order = make([]int, s.numExamples)
		for i := range s.order {
			s.order[i] = i
		}
	}
	s.shuffle.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

// next returns the indices of the next batch. At the end of a finite epoch it
// returns io.EOF; the last batch of an epoch may be smaller than batchSize.
func (s *sampler) next() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numExamples == 0 {
		return nil, io.EOF
	}
	indices := make([]int, 0, s.batchSize)
	for len(indices) < s.batchSize {
		switch {
		case s.infinite && s.shuffle != nil:
			// Sample with replacement.
			indices = append(indices, s.shuffle.Intn(s.numExamples))
		case s.infinite:
			indices = append(indices, s.counter)
			s.counter = (s.counter + 1) % s.numExamples
		default:
			if s.counter >= s.numExamples {
				if len(indices) == 0 {
					return nil, io.EOF
				}
				return indices, nil
			}
			if s.shuffle != nil {
				indices = append(indices, s.order[s.counter])
			} else {
				indices = append(indices, s.counter)
			}
			s.counter++
		}
	}
	return indices, nil
}

// retrier loads examples, replacing failing indices by random ones.
type retrier struct {
	// mu protects rng.
	mu  sync.Mutex
	rng *rand.Rand

	numExamples int
	maxAttempts int
}

func newRetrier(numExamples int, cfg Config) *retrier {
	return &retrier{
		rng:         newRand(cfg.Seed),
		numExamples: numExamples,
		maxAttempts: cfg.MaxLoadAttempts,
	}
}

func (r *retrier) randomIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(r.numExamples)
}

// load calls fn with index and, while it fails, with random replacement
// indices. Each failure is logged. It returns the index that loaded
// successfully, or the last error once maxAttempts indices have failed. That
// error names the requested index and the last replacement tried.
func (r *retrier) load(index int, describe func(int) string, fn func(int) error) (int, error) {
	if index < 0 || index >= r.numExamples {
		return index, errors.Errorf("index %d out of range [0, %d)", index, r.numExamples)
	}
	requested := index
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(index); err == nil {
			return index, nil
		}
		if attempt >= r.maxAttempts {
			break
		}
		next := r.randomIndex()
		klog.Warningf("failed to load %s (index %d): %v; retrying with index %d", describe(index), index, err, next)
		index = next
	}
	if index == requested {
		return index, errors.Wrapf(err, "failed to load %s (index %d) after %d attempts", describe(requested), requested, r.maxAttempts)
	}
	return index, errors.Wrapf(err, "failed to load %s (index %d) after %d attempts, last tried %s (index %d)",
		describe(requested), requested, r.maxAttempts, describe(index), index)
}
