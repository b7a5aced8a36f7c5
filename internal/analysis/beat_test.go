package analysis

import "testing"

func flatPower(level float64, bins int) []float64 {
	p := make([]float64, bins)
	for i := range p {
		p[i] = level
	}
	return p
}

func TestBeatFirstCycleOnlySeeds(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	if detected, strength := d.Detect(flatPower(10, 64)); detected || strength != 0 {
		t.Error("first cycle must never detect a beat")
	}
}

func TestBeatSteadyToneConverges(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	power := flatPower(1.0, 64)

	// The baseline starts far below the signal, so early cycles may
	// legitimately fire while it converges.
	for i := 0; i < 30; i++ {
		d.Detect(power)
	}

	// After convergence a constant-energy input must never trigger.
	for i := 0; i < 50; i++ {
		if detected, _ := d.Detect(power); detected {
			t.Fatalf("steady input triggered a beat at cycle %d after convergence", i)
		}
	}
}

func TestBeatDetectsEnergyJump(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	quiet := flatPower(1.0, 64)
	loud := flatPower(4.0, 64)

	for i := 0; i < 30; i++ {
		d.Detect(quiet)
	}

	detected, strength := d.Detect(loud)
	if !detected {
		t.Fatal("expected beat on 4x energy jump")
	}
	if strength <= 1.5 {
		t.Errorf("expected strength above the multiplier, got %f", strength)
	}

	// Falling back to quiet is a ratio below 1 and must not trigger.
	if detected, _ := d.Detect(quiet); detected {
		t.Error("energy drop must not register as a beat")
	}
}

func TestBeatBaselineAdaptsSlowly(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	quiet := flatPower(1.0, 64)
	loud := flatPower(4.0, 64)

	for i := 0; i < 30; i++ {
		d.Detect(quiet)
	}

	// A sustained jump keeps firing only while the baseline catches up,
	// then goes quiet: with 0.9 smoothing that takes several cycles.
	fired := 0
	for i := 0; i < 40; i++ {
		if detected, _ := d.Detect(loud); detected {
			fired++
		}
	}
	if fired == 0 {
		t.Error("expected at least one beat at the start of a sustained jump")
	}
	if fired > 20 {
		t.Errorf("baseline failed to adapt: %d of 40 cycles fired", fired)
	}

	for i := 0; i < 10; i++ {
		if detected, _ := d.Detect(loud); detected {
			t.Fatalf("beat still firing after baseline convergence (cycle %d)", i)
		}
	}
}

func TestBeatReset(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	for i := 0; i < 10; i++ {
		d.Detect(flatPower(5, 64))
	}
	d.Reset()
	if detected, _ := d.Detect(flatPower(100, 64)); detected {
		t.Error("first cycle after Reset must only seed the baseline")
	}
}

func TestBeatDetectZeroAllocs(t *testing.T) {
	d := NewBeatDetector(1.5, 0.9)
	power := flatPower(2.0, 513)

	d.Detect(power)
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = d.Detect(power)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Detect, got %.1f", allocs)
	}
}
