package engine

// DelayLine is a bounded deque of cohort sizes indexed by age: index 0 is
// the most recently pushed cohort. It is backed by a ring buffer so both
// Push and Evict are O(1).
type DelayLine struct {
	buf   []int64
	start int
	n     int
}

// NewDelayLine returns a line holding length zero-valued cohorts with room
// for one more, matching the push/evict rhythm of a simulated day.
func NewDelayLine(length int) *DelayLine {
	if length < 0 {
		length = 0
	}
	return &DelayLine{buf: make([]int64, length+1), n: length}
}

// Len reports the number of cohorts currently held.
func (d *DelayLine) Len() int { return d.n }

// Push inserts v as the newest cohort. It panics if the line is full, which
// only happens when Push is called twice without an Evict in between.
func (d *DelayLine) Push(v int64) {
	if d.n == len(d.buf) {
		panic("engine: delay line overflow")
	}
	d.start = (d.start - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.start] = v
	d.n++
}

// Evict removes and returns the oldest cohort, or zero when empty.
func (d *DelayLine) Evict() int64 {
	if d.n == 0 {
		return 0
	}
	idx := (d.start + d.n - 1) % len(d.buf)
	v := d.buf[idx]
	d.buf[idx] = 0
	d.n--
	return v
}

// At returns the cohort of the given age, or zero when out of range.
func (d *DelayLine) At(age int) int64 {
	if age < 0 || age >= d.n {
		return 0
	}
	return d.buf[(d.start+age)%len(d.buf)]
}

// Add adjusts the cohort of the given age by delta. Out of range ages are
// ignored.
func (d *DelayLine) Add(age int, delta int64) {
	if age < 0 || age >= d.n {
		return
	}
	d.buf[(d.start+age)%len(d.buf)] += delta
}

// Sum totals every cohort in the line.
func (d *DelayLine) Sum() int64 {
	var s int64
	for i := 0; i < d.n; i++ {
		s += d.buf[(d.start+i)%len(d.buf)]
	}
	return s
}

// Snapshot returns the cohorts from newest to oldest.
func (d *DelayLine) Snapshot() []int64 {
	out := make([]int64, d.n)
	for i := range out {
		out[i] = d.At(i)
	}
	return out
}
