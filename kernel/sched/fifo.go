package sched

// FIFO runs tasks in the order they become runnable, with one twist: a task
// that yields goes to the back of the queue, same as in round robin, but a
// newly added task enters at the front — it will be the very next one
// chosen unless something yields ahead of it first.
type FIFO struct {
	queue   []Handle
	current Handle
	hasCur  bool
}

// NewFIFO returns an empty FIFO scheduler.
func NewFIFO() *FIFO { return &FIFO{} }

// Add inserts h at the front of the queue. Priority is accepted but ignored.
func (f *FIFO) Add(h Handle, _ Priority) {
	f.queue = append([]Handle{h}, f.queue...)
}

// Next pops the task at the front of the queue and marks it current.
func (f *FIFO) Next() (Handle, bool) {
	if len(f.queue) == 0 {
		f.hasCur = false
		return 0, false
	}
	h := f.queue[0]
	f.queue = f.queue[1:]
	f.current, f.hasCur = h, true
	return h, true
}

// Complete removes h from the queue and, if it was current, clears current.
func (f *FIFO) Complete(h Handle) {
	f.remove(h)
	if f.hasCur && f.current == h {
		f.hasCur = false
	}
}

// Current reports the most recently returned task from Next, if any.
func (f *FIFO) Current() (Handle, bool) { return f.current, f.hasCur }

// Yield removes h from wherever it sits in the queue and appends it to the
// back.
func (f *FIFO) Yield(h Handle) {
	f.remove(h)
	f.queue = append(f.queue, h)
}

// SetPriority is unimplemented; FIFO never reorders on priority.
func (f *FIFO) SetPriority(Handle, Priority) {}

func (f *FIFO) remove(h Handle) {
	for i, v := range f.queue {
		if v == h {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return
		}
	}
}
