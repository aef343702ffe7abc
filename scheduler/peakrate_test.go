package scheduler

import "testing"

func TestPeakRateOnlyClimbs(t *testing.T) {
	p := newPeakRateEstimator(false)

	p.observe(1024, 1) // 1024 sectors in 1ms
	first := p.peakRate()
	if first <= 0 {
		t.Fatalf("expected a positive estimate, got %d", first)
	}

	// A slow, seek-bound completion must not drag the peak down.
	p.observe(8, 10)
	if p.peakRate() != first {
		t.Errorf("slow sample changed the estimate: %d -> %d", first, p.peakRate())
	}

	// A faster completion raises it, smoothed rather than jumping.
	p.observe(4096, 1)
	if p.peakRate() <= first {
		t.Errorf("fast sample should raise the estimate, got %d", p.peakRate())
	}
	instant := (int64(4096) << rateShift) / 1000
	if p.peakRate() >= instant {
		t.Errorf("estimate %d should be smoothed below the instant rate %d", p.peakRate(), instant)
	}
}

func TestPeakRateValidAfterEnoughSamples(t *testing.T) {
	p := newPeakRateEstimator(false)
	for i := 0; i < peakRateSamples-1; i++ {
		p.observe(64, 1)
		if p.valid() {
			t.Fatalf("estimate valid after only %d samples", i+1)
		}
	}
	p.observe(64, 1)
	if !p.valid() {
		t.Error("estimate should be valid once fully sampled")
	}
}

func TestWrDurationShrinksOnFasterDevices(t *testing.T) {
	slow := newPeakRateEstimator(false)
	fast := newPeakRateEstimator(false)

	slow.observe(512, 1)
	fast.observe(16384, 1)

	if slow.wrDuration() <= fast.wrDuration() {
		t.Errorf("slower device should raise longer: slow=%d fast=%d",
			slow.wrDuration(), fast.wrDuration())
	}
}

func TestPeakRateSpeedClassRedetect(t *testing.T) {
	p := newPeakRateEstimator(false)
	if p.fast {
		t.Fatal("fresh estimator should start in the slow class")
	}
	if got := p.wrDuration(); got != refTimeSlow[1] {
		t.Fatalf("unmeasured duration = %d, want %d", got, refTimeSlow[1])
	}

	// Observations far above the class threshold flip the detected class.
	for i := 0; i < 64; i++ {
		p.observe(1<<20, 1)
	}
	if !p.fast {
		t.Error("sustained high rate should detect the fast class")
	}
	if p.rtProd != refRateFast[1]*int64(refTimeFast[1]) {
		t.Error("reference product should follow the detected class")
	}
}
