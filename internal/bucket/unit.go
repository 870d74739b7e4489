package bucket

import (
	"fmt"
	"time"
)

// Unit is one of the closed set of aggregate granularities. Each unit runs
// its own rollup state machine with its own checkpoint.
type Unit string

const (
	Unit15Min Unit = "15min"
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
)

// AllUnits lists every supported granularity, finest first.
var AllUnits = []Unit{Unit15Min, UnitHour, UnitDay}

// ParseUnit resolves a config string into a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case Unit15Min, UnitHour, UnitDay:
		return Unit(s), nil
	}
	return "", fmt.Errorf("unknown interval unit %q", s)
}

// Duration returns the interval length of the unit.
func (u Unit) Duration() time.Duration {
	switch u {
	case Unit15Min:
		return 15 * time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	}
	return 0
}

func (u Unit) String() string {
	return string(u)
}

// Finer returns the next finer granularity whose aggregates this unit folds,
// or false when the unit aggregates directly from raw data.
func (u Unit) Finer() (Unit, bool) {
	switch u {
	case UnitHour:
		return Unit15Min, true
	case UnitDay:
		return UnitHour, true
	}
	return "", false
}
