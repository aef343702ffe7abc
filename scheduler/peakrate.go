package scheduler

// Weight-raising lasts proportionally longer on slower devices, because
// loading an interactive application takes proportionally longer there:
// duration = (R / r) * T, where r is the measured peak rate and (R, T) are
// reference peak-rate/time pairs. Four pairs cover rotational and
// non-rotational devices in a slow and a fast speed class; the class is
// re-detected every time the estimate is updated.
//
// Reference rates are in sectors/usec left-shifted by rateShift; reference
// times in milliseconds. The values are empirical device calibrations.
const (
	rateShift       = 16
	peakRateSamples = 32
)

var (
	refRateSlow = [2]int64{1536, 10752}  // [rotational, non-rotational]
	refRateFast = [2]int64{17415, 34791} // [rotational, non-rotational]
	refTimeSlow = [2]Ticks{3500, 1500}
	refTimeFast = [2]Ticks{8000, 3000}
)

func speedThreshold(rotational bool) int64 {
	i := speedIndex(rotational)
	return (refRateSlow[i] + refRateFast[i]) / 2
}

func speedIndex(rotational bool) int {
	if rotational {
		return 0
	}
	return 1
}

// peakRateEstimator keeps a smoothed estimate of the device peak rate from
// observed request service (sectors over elapsed time), and derives the
// interactive weight-raising duration from it.
type peakRateEstimator struct {
	rotational bool
	rate       int64 // sectors/usec << rateShift
	samples    int
	fast       bool
	rtProd     int64 // reference R * T for the detected class
}

func newPeakRateEstimator(rotational bool) *peakRateEstimator {
	p := &peakRateEstimator{rotational: rotational}
	p.redetectClass()
	return p
}

// observe folds one completed request into the estimate. The estimate only
// climbs: transient slow service (seeks, contention) must not shrink the
// detected peak.
func (p *peakRateEstimator) observe(sectors int64, elapsed Ticks) {
	if sectors <= 0 || elapsed <= 0 {
		return
	}
	usecs := int64(elapsed) * 1000
	rate := (sectors << rateShift) / usecs
	if p.samples < peakRateSamples {
		p.samples++
	}
	if rate > p.rate {
		if p.rate == 0 {
			p.rate = rate
		} else {
			p.rate = (7*p.rate + rate) / 8
		}
		p.redetectClass()
	}
}

func (p *peakRateEstimator) redetectClass() {
	i := speedIndex(p.rotational)
	p.fast = p.rate > speedThreshold(p.rotational)
	if p.fast {
		p.rtProd = refRateFast[i] * int64(refTimeFast[i])
	} else {
		p.rtProd = refRateSlow[i] * int64(refTimeSlow[i])
	}
}

// valid reports whether enough completions were sampled for the estimate to
// drive autotuning.
func (p *peakRateEstimator) valid() bool {
	return p.samples >= peakRateSamples
}

// peakRate returns the current estimate, in sectors/usec << rateShift.
func (p *peakRateEstimator) peakRate() int64 {
	return p.rate
}

// wrDuration returns the interactive weight-raising duration for the
// measured device. Before any measurement, the reference time of the
// detected class is used as-is.
func (p *peakRateEstimator) wrDuration() Ticks {
	i := speedIndex(p.rotational)
	if p.rate <= 0 {
		if p.fast {
			return refTimeFast[i]
		}
		return refTimeSlow[i]
	}
	return Ticks(p.rtProd / p.rate)
}
