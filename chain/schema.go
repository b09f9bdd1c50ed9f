package chain

// AttrType names a value's wire representation, one of the nine
// (key_type, value_type) combinations the map engine dispatches over plus
// the three scalar element encodings they are built from (spec.md §4.9).
type AttrType uint16

const (
	TypeString AttrType = iota
	TypeInt64
	TypeFloat64
	TypeMapGeneric
	TypeMapStringString
	TypeMapStringInt64
	TypeMapStringFloat64
	TypeMapInt64String
	TypeMapInt64Int64
	TypeMapInt64Float64
	TypeMapFloat64String
	TypeMapFloat64Int64
	TypeMapFloat64Float64
)

// Attribute describes one non-key column of a space.
type Attribute struct {
	Name string
	Type AttrType
}

// Schema describes a space: its primary key's type and the ordered
// attributes that make up Value. Which attribute picks each subspace's
// hash dimension is not part of Schema; chain/config's SubspaceSpec.HashAttr
// carries it.
type Schema struct {
	Space      SpaceId
	KeyType    AttrType
	Attributes []Attribute
}

// ValidateKey reports whether b is well-formed for the schema's primary
// attribute type. Only string and int64 keys are supported; map types
// cannot be keys.
func (s *Schema) ValidateKey(b []byte) bool {
	switch s.KeyType {
	case TypeString:
		return true // any byte sequence is a valid string
	case TypeInt64:
		return len(b) == 8
	default:
		return false
	}
}
