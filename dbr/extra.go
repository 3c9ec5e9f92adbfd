package dbr

import (
	"fmt"
	"math"
	"time"
)

// EpochOffset is the number of seconds between the Unix epoch and the EPICS
// epoch, 1990-01-01 00:00:00 UTC.
const EpochOffset = 631152000

// AlarmStatus is the alarm condition reported alongside a value.
type AlarmStatus int16

var alarmStatusNames = [...]string{
	"NO_ALARM", "READ", "WRITE", "HIHI", "HIGH", "LOLO", "LOW", "STATE",
	"COS", "COMM", "TIMEOUT", "HWLIMIT", "CALC", "SCAN", "LINK", "SOFT",
	"BAD_SUB", "UDF", "DISABLE", "SIMM", "READ_ACCESS", "WRITE_ACCESS",
}

func (s AlarmStatus) String() string {
	if s >= 0 && int(s) < len(alarmStatusNames) {
		return alarmStatusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", int16(s))
}

// AlarmSeverity is the severity of the alarm condition.
type AlarmSeverity int16

const (
	NoAlarm AlarmSeverity = iota
	MinorAlarm
	MajorAlarm
	InvalidAlarm
)

var severityNames = [...]string{"NO_ALARM", "MINOR", "MAJOR", "INVALID"}

func (s AlarmSeverity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("SEVERITY(%d)", int16(s))
}

// StatusSeverity is the alarm state carried by every non-plain record.
type StatusSeverity struct {
	Status   AlarmStatus
	Severity AlarmSeverity
}

// Timestamp is a raw EPICS timestamp.
type Timestamp struct {
	Secs uint32 // seconds since the EPICS epoch
	Nsec uint32
}

// Time converts the timestamp to a time.Time. The conversion is exact.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts.Secs)+EpochOffset, int64(ts.Nsec)).UTC()
}

// TimestampOf is the inverse of Timestamp.Time for instants representable
// in an EPICS timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Secs: uint32(t.Unix() - EpochOffset), Nsec: uint32(t.Nanosecond())}
}

// Limits is an upper/lower pair from a control record. All basic numeric
// types convert to float64 without loss.
type Limits struct {
	Upper float64
	Lower float64
}

// Ctrl is the control metadata of a channel.
type Ctrl struct {
	Units     string
	Precision int16 // only present for FLOAT and DOUBLE
	Display   Limits
	Alarm     Limits
	Warning   Limits
	Control   Limits

	// EnumStrings holds the state labels of an ENUM channel, truncated to
	// the number of states it reports.
	EnumStrings []string
}

// Extra is the metadata decoded from a record header.
type Extra struct {
	Family Family
	StatusSeverity
	Timestamp Timestamp // FamilyTime only
	Ctrl      *Ctrl     // FamilyCtrl only
}

// DecodeExtra decodes the metadata preceding the values of a record. A
// plain record has none and yields an Extra with only Family set.
func DecodeExtra(t Type, rec []byte) (Extra, error) {
	if !t.Valid() {
		return Extra{}, &DecodeError{Type: t, Message: "unsupported type code"}
	}
	extra := Extra{Family: t.Family()}
	if extra.Family == FamilyPlain {
		return extra, nil
	}
	if need := t.HeaderSize(); len(rec) < need {
		return Extra{}, shortRecord(t, len(rec), need)
	}

	extra.StatusSeverity = StatusSeverity{
		Status:   AlarmStatus(order.Uint16(rec[0:])),
		Severity: AlarmSeverity(order.Uint16(rec[2:])),
	}

	switch extra.Family {
	case FamilyTime:
		extra.Timestamp = Timestamp{
			Secs: order.Uint32(rec[4:]),
			Nsec: order.Uint32(rec[8:]),
		}
	case FamilyCtrl:
		ctrl := decodeCtrl(t.Basic(), rec)
		extra.Ctrl = &ctrl
	}
	return extra, nil
}

// limit readers for the eight-entry limit block of each numeric ctrl record
var limitReaders = map[Type]func(p []byte, i int) float64{
	Short:  func(p []byte, i int) float64 { return float64(int16(order.Uint16(p[2*i:]))) },
	Float:  func(p []byte, i int) float64 { return float64(math.Float32frombits(order.Uint32(p[4*i:]))) },
	Char:   func(p []byte, i int) float64 { return float64(p[i]) },
	Long:   func(p []byte, i int) float64 { return float64(int32(order.Uint32(p[4*i:]))) },
	Double: func(p []byte, i int) float64 { return math.Float64frombits(order.Uint64(p[8*i:])) },
}

func decodeCtrl(basic Type, rec []byte) Ctrl {
	var ctrl Ctrl
	switch basic {
	case String:
		// DBR_CTRL_STRING carries status and severity only.
		return ctrl
	case Enum:
		n := int(int16(order.Uint16(rec[4:])))
		n = max(0, min(n, MaxEnumStates))
		ctrl.EnumStrings = make([]string, n)
		for i := range ctrl.EnumStrings {
			off := 6 + i*MaxEnumStringSize
			ctrl.EnumStrings[i] = decodeString(rec[off : off+MaxEnumStringSize])
		}
		return ctrl
	}

	unitsAt, limitsAt := 4, 12
	if basic == Float || basic == Double {
		ctrl.Precision = int16(order.Uint16(rec[4:]))
		unitsAt, limitsAt = 8, 16
	}
	ctrl.Units = decodeString(rec[unitsAt : unitsAt+MaxUnitsSize])

	// upper_disp, lower_disp, upper_alarm, upper_warning, lower_warning,
	// lower_alarm, upper_ctrl, lower_ctrl
	read := limitReaders[basic]
	p := rec[limitsAt:]
	ctrl.Display = Limits{Upper: read(p, 0), Lower: read(p, 1)}
	ctrl.Alarm = Limits{Upper: read(p, 2), Lower: read(p, 5)}
	ctrl.Warning = Limits{Upper: read(p, 3), Lower: read(p, 4)}
	ctrl.Control = Limits{Upper: read(p, 6), Lower: read(p, 7)}
	return ctrl
}
