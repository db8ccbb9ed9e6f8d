package telemetry

import (
	"testing"
	"time"
)

func TestHumanTimeZero(t *testing.T) {
	if got := HumanTime(0); got != "0 seconds" {
		t.Errorf("HumanTime(0) = %q, want %q", got, "0 seconds")
	}
}

func TestHumanTimeScenario(t *testing.T) {
	d := 90_061 * time.Second
	want := "1 day, 1 hour, 1 minute, 1 second"
	if got := HumanTime(d); got != want {
		t.Errorf("HumanTime(90061s) = %q, want %q", got, want)
	}
}

func TestHumanTimeOmitsZeroUnits(t *testing.T) {
	d := 125 * time.Second // 2 minutes, 5 seconds
	want := "2 minutes, 5 seconds"
	if got := HumanTime(d); got != want {
		t.Errorf("HumanTime(125s) = %q, want %q", got, want)
	}
}

func TestToPercentFloorsSmallValues(t *testing.T) {
	if got := ToPercent(0.001); got != "0%" {
		t.Errorf("ToPercent(0.001) = %q, want %q", got, "0%")
	}
	if got := ToPercent(99.123); got != "99.12%" {
		t.Errorf("ToPercent(99.123) = %q, want %q", got, "99.12%")
	}
}

func TestFromUint64Commas(t *testing.T) {
	if got := FromUint64(1234567); got != "1,234,567" {
		t.Errorf("FromUint64(1234567) = %q, want %q", got, "1,234,567")
	}
}

func TestFromHashrateNullable(t *testing.T) {
	a, b := 123.0, 311.2
	arr := [3]*float64{&a, &b, nil}
	want := "[123 H/s, 311 H/s, ??? H/s]"
	if got := FromHashrate(arr); got != want {
		t.Errorf("FromHashrate() = %q, want %q", got, want)
	}
}
