package audio

import (
	"sync"
	"time"
)

// Ring is a thread-safe circular sample buffer that remembers when its newest
// sample arrived, so readers can recover the wall-clock time of any sample.
type Ring struct {
	mu    sync.Mutex
	buf   []float64
	head  int // next write position
	count int
	rate  int
	last  time.Time // arrival of the end of the newest sample
	lost  int64     // samples overwritten before anyone read them
}

func NewRing(capacity, rate int) *Ring {
	return &Ring{
		buf:  make([]float64, capacity),
		rate: rate,
	}
}

// Write appends samples that finished arriving at the given time,
// overwriting the oldest if full. Single writer.
func (r *Ring) Write(samples []float64, arrival time.Time) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % capacity
		if r.count < capacity {
			r.count++
		} else {
			r.lost++
		}
	}
	r.last = arrival
}

// Get returns up to n samples and the time of the first one.
func (r *Ring) Get(n int, mode GetMode) ([]float64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 || n <= 0 {
		return nil, r.last
	}
	if n > r.count {
		n = r.count
	}

	capacity := len(r.buf)
	oldest := (r.head - r.count + capacity) % capacity

	var start, behind int // behind: samples between the first returned one and the end of the stream
	switch mode {
	case DiscardOlder:
		start = (r.head - n + capacity) % capacity
		behind = n
		r.count = 0
	default:
		start = oldest
		behind = r.count
		r.count -= n
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = r.buf[(start+i)%capacity]
	}

	first := r.last.Add(-samplesToDuration(behind, r.rate))
	return out, first
}

// Len is the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Lost reports how many samples were overwritten unread.
func (r *Ring) Lost() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

func samplesToDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}
