package core

import "time"

// TimestampService is the single source of "now" available to any core
// service. No component may read the wall clock directly; every
// time-sensitive decision (the quota
// engine's calendar resets, in particular) goes through this service,
// which in turn only ever reads the deterministic timestamp carried on the
// ServiceContext (set once per block by the external block-production
// collaborator).
type TimestampService struct{}

// NewTimestampService constructs the (stateless) timestamp service.
func NewTimestampService() *TimestampService { return &TimestampService{} }

// Now returns the context's block timestamp in Unix milliseconds.
func (t *TimestampService) Now(ctx *ServiceContext) uint64 { return ctx.Timestamp }

// calendarParts decomposes a Unix-millisecond timestamp into its UTC
// (year, month, day) tuple, the comparison unit bucket resets need.
func calendarParts(ms uint64) (year int, month time.Month, day int) {
	t := time.UnixMilli(int64(ms)).UTC()
	return t.Year(), t.Month(), t.Day()
}

func sameDay(a, b uint64) bool {
	ya, ma, da := calendarParts(a)
	yb, mb, db := calendarParts(b)
	return ya == yb && ma == mb && da == db
}

func sameMonth(a, b uint64) bool {
	ya, ma, _ := calendarParts(a)
	yb, mb, _ := calendarParts(b)
	return ya == yb && ma == mb
}

func sameYear(a, b uint64) bool {
	ya, _, _ := calendarParts(a)
	yb, _, _ := calendarParts(b)
	return ya == yb
}
