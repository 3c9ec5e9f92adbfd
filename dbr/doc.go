// Package dbr decodes the fixed binary records ("DBR" types) that the EPICS
// Channel Access client library hands to read callbacks.
//
// The package is pure: no I/O, no goroutines, no state. It maps a numeric
// type code and a byte buffer to typed Go values and metadata, and provides
// the matching encoder for simulators and tests.
//
// # Type Codes
//
// A Type combines one of seven basic element types with a record family:
//
//   - Basic types: String, Short, Float, Enum, Char, Long, Double
//   - Families: FamilyPlain, FamilyStatus, FamilyTime, FamilyCtrl
//
// Compose builds a code from its parts; Type.Basic and Type.Family split
// it again:
//
//	t := dbr.Compose(dbr.Double, dbr.FamilyTime) // dbr.TimeDouble, code 20
//
// # Element Types
//
// Each basic type decodes to one Go type:
//
//	String -> string     Enum  -> EnumValue   Char   -> uint8
//	Short  -> int16      Long  -> int32
//	Float  -> float32    Double -> float64
//
// Strings occupy 40-byte slots. A slot is read up to its first NUL byte, or
// in full if there is none, and invalid UTF-8 is replaced with U+FFFD.
//
// # Decoding
//
// The typed accessors check that the requested Go type matches the record:
//
//	v, err := dbr.Value[float64](dbr.TimeDouble, rec)
//	vs, err := dbr.Vector[int32](dbr.Long, rec, count)
//	extra, err := dbr.DecodeExtra(dbr.TimeDouble, rec)
//	stamp := extra.Timestamp.Time()
//
// DecodeValue and DecodeVector do the same with the element type picked
// from the record itself, returning any.
//
// Records carry no length field. The element count passed to Vector must be
// the count reported by the connection or by the callback envelope; a
// buffer shorter than the count implies is reported as a *DecodeError.
//
// # Layout
//
// Values are in host byte order. The header preceding the first value
// depends on both the family and the basic type because of the padding in
// the C structures; Type.HeaderSize and Type.Width describe it, and
// Type.Size gives the total record length for a given element count.
package dbr
