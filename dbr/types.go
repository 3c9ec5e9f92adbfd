package dbr

import "fmt"

// Type is a DBR type code: a basic element type combined with a record family.
type Type int16

// Basic element types. These are also the native field types reported for a
// connected channel.
const (
	String Type = 0
	Short  Type = 1
	Float  Type = 2
	Enum   Type = 3
	Char   Type = 4
	Long   Type = 5
	Double Type = 6
)

// Family selects how much metadata surrounds the value in a record.
type Family int16

const (
	FamilyPlain  Family = 0  // bare value
	FamilyStatus Family = 7  // status + severity + value
	FamilyTime   Family = 14 // status + severity + timestamp + value
	FamilyCtrl   Family = 28 // status + severity + control metadata + value
)

// Fixed buffer sizes from db_access.h.
const (
	MaxStringSize     = 40
	MaxUnitsSize      = 8
	MaxEnumStringSize = 26
	MaxEnumStates     = 16
)

// Full type codes, for readability at call sites and in tests.
const (
	StsString  = Type(FamilyStatus) + String
	StsShort   = Type(FamilyStatus) + Short
	StsFloat   = Type(FamilyStatus) + Float
	StsEnum    = Type(FamilyStatus) + Enum
	StsChar    = Type(FamilyStatus) + Char
	StsLong    = Type(FamilyStatus) + Long
	StsDouble  = Type(FamilyStatus) + Double
	TimeString = Type(FamilyTime) + String
	TimeShort  = Type(FamilyTime) + Short
	TimeFloat  = Type(FamilyTime) + Float
	TimeEnum   = Type(FamilyTime) + Enum
	TimeChar   = Type(FamilyTime) + Char
	TimeLong   = Type(FamilyTime) + Long
	TimeDouble = Type(FamilyTime) + Double
	CtrlString = Type(FamilyCtrl) + String
	CtrlShort  = Type(FamilyCtrl) + Short
	CtrlFloat  = Type(FamilyCtrl) + Float
	CtrlEnum   = Type(FamilyCtrl) + Enum
	CtrlChar   = Type(FamilyCtrl) + Char
	CtrlLong   = Type(FamilyCtrl) + Long
	CtrlDouble = Type(FamilyCtrl) + Double
)

var basicNames = [...]string{"STRING", "SHORT", "FLOAT", "ENUM", "CHAR", "LONG", "DOUBLE"}

// element widths indexed by basic type
var widths = [...]int{MaxStringSize, 2, 4, 2, 1, 4, 8}

// Offset of the first value inside a record, indexed by basic type.
// The padding is dictated by the C structure layout of each record.
var (
	stsHeader  = [...]int{4, 4, 4, 4, 5, 4, 8}
	timeHeader = [...]int{12, 14, 12, 14, 15, 12, 16}
	ctrlHeader = [...]int{4, 28, 48, 422, 21, 44, 80}
)

// Compose returns the type code for basic type b in family f.
func Compose(b Type, f Family) Type {
	return Type(f) + b
}

// Basic returns the basic element type of t.
func (t Type) Basic() Type {
	switch f := t.Family(); f {
	case FamilyPlain, FamilyStatus, FamilyTime, FamilyCtrl:
		return t - Type(f)
	}
	return -1
}

// Family returns the record family of t, or -1 if t is not a supported code.
func (t Type) Family() Family {
	switch {
	case t >= 0 && t <= Double:
		return FamilyPlain
	case t >= StsString && t <= StsDouble:
		return FamilyStatus
	case t >= TimeString && t <= TimeDouble:
		return FamilyTime
	case t >= CtrlString && t <= CtrlDouble:
		return FamilyCtrl
	}
	return -1
}

// Valid reports whether t is a type code this package can decode.
func (t Type) Valid() bool {
	return t.Family() >= 0
}

// IsBasic reports whether t is one of the seven basic types.
func (t Type) IsBasic() bool {
	return t >= String && t <= Double
}

// Width is the size in bytes of one element of t.
func (t Type) Width() int {
	if !t.Valid() {
		return 0
	}
	return widths[t.Basic()]
}

// HeaderSize is the offset of the first element within a record of type t.
func (t Type) HeaderSize() int {
	if !t.Valid() {
		return 0
	}
	b := t.Basic()
	switch t.Family() {
	case FamilyStatus:
		return stsHeader[b]
	case FamilyTime:
		return timeHeader[b]
	case FamilyCtrl:
		return ctrlHeader[b]
	}
	return 0
}

// Size is the number of bytes in a record of type t carrying count elements.
func (t Type) Size(count int) int {
	return t.HeaderSize() + count*t.Width()
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("DBR(%d)", int16(t))
	}
	name := basicNames[t.Basic()]
	switch t.Family() {
	case FamilyStatus:
		return "DBR_STS_" + name
	case FamilyTime:
		return "DBR_TIME_" + name
	case FamilyCtrl:
		return "DBR_CTRL_" + name
	}
	return "DBR_" + name
}

func (f Family) String() string {
	switch f {
	case FamilyPlain:
		return "plain"
	case FamilyStatus:
		return "status"
	case FamilyTime:
		return "time"
	case FamilyCtrl:
		return "ctrl"
	}
	return fmt.Sprintf("family(%d)", int16(f))
}
