package swarm

import (
	"sync"
	"time"
)

// AIMD adjusts the worker count: additive increase while sources answer quickly,
// multiplicative decrease when they push back.
type AIMD struct {
	mu          sync.Mutex
	concurrency int
	minWorkers  int
	maxWorkers  int
	step        int
	healthy     time.Duration
	cooldown    time.Duration
	lastChange  time.Time
	now         func() time.Time
}

func NewAIMD(start, min, max int) *AIMD {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &AIMD{
		concurrency: start,
		minWorkers:  min,
		maxWorkers:  max,
		step:        1,
		healthy:     2 * time.Second,
		cooldown:    100 * time.Millisecond,
		lastChange:  time.Now(),
		now:         time.Now,
	}
}

func (a *AIMD) GetConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.concurrency
}

// Feedback reports one task outcome. Changes closer together than the cooldown are dropped
// to dampen oscillation.
func (a *AIMD) Feedback(lat time.Duration, throttled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if now.Sub(a.lastChange) < a.cooldown {
		return
	}

	if throttled {
		a.concurrency /= 2
		if a.concurrency < a.minWorkers {
			a.concurrency = a.minWorkers
		}
		a.lastChange = now
		return
	}

	if lat < a.healthy {
		a.concurrency += a.step
		if a.concurrency > a.maxWorkers {
			a.concurrency = a.maxWorkers
		}
		a.lastChange = now
	}
}
