package core

import (
	"testing"
	"time"
)

func unixMs(year int, month time.Month, day, hour int) uint64 {
	t := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
	return uint64(t.UnixMilli())
}

func TestSameDayMonthYear(t *testing.T) {
	a := unixMs(2026, time.March, 15, 10)
	sameDayLater := unixMs(2026, time.March, 15, 23)
	nextDay := unixMs(2026, time.March, 16, 0)
	sameMonthOtherDay := unixMs(2026, time.March, 1, 0)
	nextMonth := unixMs(2026, time.April, 1, 0)
	sameYearOtherMonth := unixMs(2026, time.December, 31, 0)
	nextYear := unixMs(2027, time.January, 1, 0)

	if !sameDay(a, sameDayLater) {
		t.Fatalf("expected same calendar day")
	}
	if sameDay(a, nextDay) {
		t.Fatalf("expected different calendar day")
	}
	if !sameMonth(a, sameMonthOtherDay) {
		t.Fatalf("expected same calendar month")
	}
	if sameMonth(a, nextMonth) {
		t.Fatalf("expected different calendar month")
	}
	if !sameYear(a, sameYearOtherMonth) {
		t.Fatalf("expected same calendar year")
	}
	if sameYear(a, nextYear) {
		t.Fatalf("expected different calendar year")
	}
}

func TestTimestampServiceReadsContextOnly(t *testing.T) {
	ts := NewTimestampService()
	ctx := NewServiceContext(Address{1}, nil, 10, 123456, 1_000_000)
	if ts.Now(ctx) != 123456 {
		t.Fatalf("expected TimestampService to read the context's block timestamp verbatim")
	}
}
