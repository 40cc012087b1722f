package sched

// RoundRobin gives every runnable task an equal share of the core: a new
// task joins at the back, and picking the next task first rotates whichever
// task was running back to the end of the line before popping the new
// front.
type RoundRobin struct {
	queue   []Handle
	current Handle
	hasCur  bool
}

// NewRoundRobin returns an empty round-robin scheduler.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Add appends h to the back of the queue. Priority is accepted but ignored.
func (r *RoundRobin) Add(h Handle, _ Priority) {
	r.queue = append(r.queue, h)
}

// Next rotates the previously current task to the back, if there was one,
// then pops and returns the new front.
func (r *RoundRobin) Next() (Handle, bool) {
	if r.hasCur {
		r.queue = append(r.queue, r.current)
		r.hasCur = false
	}
	if len(r.queue) == 0 {
		return 0, false
	}
	h := r.queue[0]
	r.queue = r.queue[1:]
	r.current, r.hasCur = h, true
	return h, true
}

// Complete removes h from the queue and, if it was current, clears current
// without rotating it back in on the next call to Next.
func (r *RoundRobin) Complete(h Handle) {
	r.remove(h)
	if r.hasCur && r.current == h {
		r.hasCur = false
	}
}

// Current reports the most recently returned task from Next, if any.
func (r *RoundRobin) Current() (Handle, bool) { return r.current, r.hasCur }

// Yield removes h from wherever it sits in the queue and appends it to the
// back.
func (r *RoundRobin) Yield(h Handle) {
	r.remove(h)
	r.queue = append(r.queue, h)
	if r.hasCur && r.current == h {
		r.hasCur = false
	}
}

// SetPriority is unimplemented; round robin gives every task an equal share
// regardless of priority.
func (r *RoundRobin) SetPriority(Handle, Priority) {}

func (r *RoundRobin) remove(h Handle) {
	for i, v := range r.queue {
		if v == h {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}
