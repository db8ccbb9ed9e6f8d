package telemetry

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// commaPrinter formats integers with an English thousands separator; it
// replaces the num_format crate used by the original implementation.
var commaPrinter = message.NewPrinter(language.English)

// HumanTime renders a duration as "N years, N months, N days, N hours,
// N minutes, N seconds", omitting zero units, using 365.25-day years and
// 30.44-day months. A zero duration renders as "0 seconds".
func HumanTime(d time.Duration) string {
	secs := uint64(d.Seconds())
	if secs == 0 {
		return "0 seconds"
	}

	const (
		secsPerYear  = 31_557_600 // 365.25 days
		secsPerMonth = 2_630_016  // 30.44 days
		secsPerDay   = 86400
		secsPerHour  = 3600
		secsPerMin   = 60
	)

	years := secs / secsPerYear
	ydays := secs % secsPerYear
	months := ydays / secsPerMonth
	mdays := ydays % secsPerMonth
	days := mdays / secsPerDay
	daySecs := mdays % secsPerDay
	hours := daySecs / secsPerHour
	minutes := daySecs % secsPerHour / secsPerMin
	seconds := daySecs % secsPerMin

	var parts []string
	parts = appendUnit(parts, years, "year")
	parts = appendUnit(parts, months, "month")
	parts = appendUnit(parts, days, "day")
	parts = appendUnit(parts, hours, "hour")
	parts = appendUnit(parts, minutes, "minute")
	parts = appendUnit(parts, seconds, "second")
	return strings.Join(parts, ", ")
}

func appendUnit(parts []string, value uint64, name string) []string {
	if value == 0 {
		return parts
	}
	if value > 1 {
		name += "s"
	}
	return append(parts, fmt.Sprintf("%d %s", value, name))
}

// Unknown is rendered for nullable scalars that were not present.
const Unknown = "???"

// ToPercent renders a fraction-of-100 percentage with two decimals, flooring
// anything below 0.01 to "0%".
func ToPercent(f float64) string {
	if f < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", f)
}

// FromUint64 renders u with comma thousands separators.
func FromUint64(u uint64) string {
	return commaPrinter.Sprintf("%d", u)
}

// FromFloat64Commas casts f to an integer and renders it with commas,
// dropping the fractional part.
func FromFloat64Commas(f float64) string {
	return commaPrinter.Sprintf("%d", int64(f))
}

// FromHashrate renders a 3-element nullable hashrate vector as
// "[123 H/s, 456 H/s, ??? H/s]".
func FromHashrate(arr [3]*float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range arr {
		if v != nil {
			b.WriteString(commaPrinter.Sprintf("%d", int64(*v)))
			b.WriteString(" H/s")
		} else {
			b.WriteString(Unknown + " H/s")
		}
		if i != len(arr)-1 {
			b.WriteString(", ")
		}
	}
	b.WriteByte(']')
	return b.String()
}

// FromLoad renders a 3-element nullable load-average vector as
// "[12.5, 11.4, ???]" with no unit conversion.
func FromLoad(arr [3]*float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range arr {
		if v != nil {
			fmt.Fprintf(&b, "%g", *v)
		} else {
			b.WriteString(Unknown)
		}
		if i != len(arr)-1 {
			b.WriteString(", ")
		}
	}
	b.WriteByte(']')
	return b.String()
}
