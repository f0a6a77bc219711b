package model

// ElemType identifies the element type of a Variable's payload.  The set is
// closed: adapters map their native types onto it or fail with
// ErrUnsupportedFeature.
type ElemType int

const (
	TypeNone ElemType = iota // sentinel, never stored in a variable
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString // fixed-width byte string, held as Go string
)

var elemTypeNames = map[ElemType]string{
	TypeInt8:    "byte",
	TypeUint8:   "ubyte",
	TypeInt16:   "short",
	TypeUint16:  "ushort",
	TypeInt32:   "int",
	TypeUint32:  "uint",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat32: "float",
	TypeFloat64: "double",
	TypeString:  "string",
}

// String returns the CDL-style name of the type.
func (t ElemType) String() string {
	name, has := elemTypeNames[t]
	if !has {
		return "none"
	}
	return name
}

func (t ElemType) valid() bool {
	_, has := elemTypeNames[t]
	return has
}

// TypeOf reports the element type and length of a flat payload slice.
// It returns TypeNone for anything that is not a supported slice.
func TypeOf(data any) (ElemType, int) {
	switch d := data.(type) {
	case []int8:
		return TypeInt8, len(d)
	case []uint8:
		return TypeUint8, len(d)
	case []int16:
		return TypeInt16, len(d)
	case []uint16:
		return TypeUint16, len(d)
	case []int32:
		return TypeInt32, len(d)
	case []uint32:
		return TypeUint32, len(d)
	case []int64:
		return TypeInt64, len(d)
	case []uint64:
		return TypeUint64, len(d)
	case []float32:
		return TypeFloat32, len(d)
	case []float64:
		return TypeFloat64, len(d)
	case []string:
		return TypeString, len(d)
	}
	return TypeNone, 0
}

// MakeSlice returns a zeroed flat payload slice of the given type and length.
func (t ElemType) MakeSlice(n int) any {
	switch t {
	case TypeInt8:
		return make([]int8, n)
	case TypeUint8:
		return make([]uint8, n)
	case TypeInt16:
		return make([]int16, n)
	case TypeUint16:
		return make([]uint16, n)
	case TypeInt32:
		return make([]int32, n)
	case TypeUint32:
		return make([]uint32, n)
	case TypeInt64:
		return make([]int64, n)
	case TypeUint64:
		return make([]uint64, n)
	case TypeFloat32:
		return make([]float32, n)
	case TypeFloat64:
		return make([]float64, n)
	case TypeString:
		return make([]string, n)
	}
	return nil
}

// Size returns the width of one element in bytes, or 0 for strings, whose
// width is format-dependent.
func (t ElemType) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	}
	return 0
}
