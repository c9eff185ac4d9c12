package analytics

// DrawdownTracker keeps a running equity peak. The zero value is ready.
type DrawdownTracker struct {
	peak    float64
	current float64
	max     float64
}

// Add feeds the next equity value in chronological order.
func (d *DrawdownTracker) Add(v float64) {
	if v > d.peak {
		d.peak = v
	}
	if d.peak <= 0 {
		d.current = 0
		return
	}
	d.current = (d.peak - v) / d.peak
	if d.current > d.max {
		d.max = d.current
	}
}

// Peak returns the highest value seen.
func (d *DrawdownTracker) Peak() float64 { return d.peak }

// Current returns the drawdown of the last value.
func (d *DrawdownTracker) Current() float64 { return d.current }

// Max returns the largest drawdown seen by this tracker. It never decreases;
// Session builds a new tracker when it corrects its last sample.
func (d *DrawdownTracker) Max() float64 { return d.max }
