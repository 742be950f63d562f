package jobs

import (
	"sync"
)

// Lane runs submitted functions one at a time in submission order. Its
// goroutine exits when the lane drains and is restarted by the next Submit.
type Lane struct {
	key     string
	wg      *sync.WaitGroup
	mu      sync.Mutex
	pending []func()
	running bool
}

// Key returns the lane's key.
func (l *Lane) Key() string {
	return l.key
}

// Submit queues fn behind everything already submitted to this lane.
func (l *Lane) Submit(fn func()) {
	l.wg.Add(1)

	l.mu.Lock()
	l.pending = append(l.pending, fn)
	start := !l.running
	l.running = true
	l.mu.Unlock()

	if start {
		go l.drain()
	}
}

// Waiting returns how many functions are queued behind the running one.
func (l *Lane) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Lane) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.mu.Unlock()

		func() {
			defer l.wg.Done()
			fn()
		}()
	}
}

// Lanes hands out one Lane per key. Lanes are created on first use and kept
// for the life of the process; the number of distinct keys is the number of
// conversations with outgoing traffic.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*Lane
	wg    sync.WaitGroup
}

func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[string]*Lane)}
}

// LaneFor returns the serial lane for key, creating it if needed.
func (ls *Lanes) LaneFor(key string) *Lane {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	lane, ok := ls.lanes[key]
	if !ok {
		lane = &Lane{key: key, wg: &ls.wg}
		ls.lanes[key] = lane
	}
	return lane
}

// Submit runs fn on the lane for key. An empty key runs fn on its own
// goroutine with no ordering against other work.
func (ls *Lanes) Submit(key string, fn func()) {
	if key == "" {
		ls.wg.Add(1)
		go func() {
			defer ls.wg.Done()
			fn()
		}()
		return
	}
	ls.LaneFor(key).Submit(fn)
}

// Count returns the number of lanes created so far.
func (ls *Lanes) Count() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.lanes)
}

// Wait blocks until every submitted function has returned.
func (ls *Lanes) Wait() {
	ls.wg.Wait()
}
