package signal

import "math"

// Window is a fixed-capacity ring of samples. Once full, each Push evicts the
// oldest sample. Aggregates are recomputed from the samples in insertion
// order, so identical contents always produce identical results.
type Window struct {
	buf  []float64
	head int // index of the oldest sample
	n    int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

func (w *Window) Push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

func (w *Window) Len() int { return w.n }

func (w *Window) Cap() int { return len(w.buf) }

func (w *Window) Full() bool { return w.n == len(w.buf) }

func (w *Window) at(i int) float64 { return w.buf[(w.head+i)%len(w.buf)] }

// Last returns the newest sample.
func (w *Window) Last() (float64, bool) {
	if w.n == 0 {
		return 0, false
	}
	return w.at(w.n - 1), true
}

// Values copies the samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

func (w *Window) Mean() float64 {
	return w.TailMean(w.n)
}

// TailMean averages the newest k samples (all of them if k exceeds Len).
func (w *Window) TailMean(k int) float64 {
	if k > w.n {
		k = w.n
	}
	if k <= 0 {
		return 0
	}
	var sum float64
	for i := w.n - k; i < w.n; i++ {
		sum += w.at(i)
	}
	return sum / float64(k)
}

// StdDev is the population standard deviation.
func (w *Window) StdDev() float64 {
	if w.n == 0 {
		return 0
	}
	mean := w.Mean()
	var ss float64
	for i := 0; i < w.n; i++ {
		d := w.at(i) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.n))
}
