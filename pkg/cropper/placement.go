package cropper

// place returns the span of length size on one axis that keeps pivot p at the
// same fractional position it had within [lo, hi].
func place(p, lo, hi, size float64) (float64, float64) {
	t := 0.5
	if hi > lo {
		t = (p - lo) / (hi - lo)
	}
	near := p - size*t
	return near, near + size
}

// contain shifts [lo, hi] so that it covers [safeLo, safeHi]. When the near
// side leaves the safe span exposed the far edges are aligned, when the far
// side does the near edges are. The length never changes.
func contain(lo, hi, safeLo, safeHi float64) (float64, float64) {
	size := hi - lo
	switch {
	case lo > safeLo:
		hi = safeHi
		lo = hi - size
	case hi < safeHi:
		lo = safeLo
		hi = lo + size
	}
	return lo, hi
}
