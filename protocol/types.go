package protocol

// Type is the one-byte tag identifying a Part variant on the wire
type Type uint8

const (
	TypeRecord Type = 0
	TypeString Type = 1
	// 2 is reserved for enumerations

	TypeDouble Type = 3
	TypeFloat  Type = 4

	TypeUint8  Type = 5
	TypeUint16 Type = 6
	TypeUint32 Type = 7
	TypeUint64 Type = 8

	TypeInt8  Type = 9
	TypeInt16 Type = 10
	TypeInt32 Type = 11
	TypeInt64 Type = 12
)

var typeNames = map[Type]string{
	TypeRecord: "record",
	TypeString: "string",
	TypeDouble: "double",
	TypeFloat:  "float",
	TypeUint8:  "uint8",
	TypeUint16: "uint16",
	TypeUint32: "uint32",
	TypeUint64: "uint64",
	TypeInt8:   "int8",
	TypeInt16:  "int16",
	TypeInt32:  "int32",
	TypeInt64:  "int64",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Size returns the fixed value width of a numeric type, 0 otherwise
func (t Type) Size() int {
	switch t {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat:
		return 4
	case TypeUint64, TypeInt64, TypeDouble:
		return 8
	}
	return 0
}

// IsNumeric reports whether t is one of the fixed-width number tags
func (t Type) IsNumeric() bool {
	return t.Size() != 0
}
