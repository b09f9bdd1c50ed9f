package microop

import (
	"github.com/chainkv/chainkv/chain"
)

// Predicate is a client check's comparison against an attribute's
// current value (spec.md §4.3 "validating client-supplied checks").
type Predicate uint8

const (
	PredEQ Predicate = iota
	PredLT
	PredLE
	PredGT
	PredGE
	PredNE
)

// Check is one client-supplied precondition: "attribute Attr's current
// value satisfies Predicate against Value".
type Check struct {
	Attr      uint16
	Predicate Predicate
	Value     []byte
}

func isMapType(t chain.AttrType) bool {
	return t >= chain.TypeMapStringString && t <= chain.TypeMapFloat64Float64
}

func scalarLess(t chain.AttrType, a, b []byte) bool {
	switch t {
	case chain.TypeInt64:
		return compareInt64Less(a, b)
	case chain.TypeFloat64:
		return compareFloat64Less(a, b)
	default:
		return compareStringLess(a, b)
	}
}

func checkPasses(attrType chain.AttrType, current, want []byte, pred Predicate) bool {
	switch pred {
	case PredEQ:
		return scalarEqual(attrType, current, want)
	case PredNE:
		return !scalarEqual(attrType, current, want)
	case PredLT:
		return scalarLess(attrType, current, want)
	case PredLE:
		return !scalarLess(attrType, want, current)
	case PredGT:
		return scalarLess(attrType, want, current)
	case PredGE:
		return !scalarLess(attrType, current, want)
	default:
		return false
	}
}

func scalarEqual(t chain.AttrType, a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplyChecksAndOps is apply_checks_and_ops (spec.md §4.3 step 7): it
// validates checks against old against attribute's current value, then
// applies ops grouped by attribute, in the order each attribute first
// appears in ops, returning the new value vector. passed
// reports how many of len(checks)+len(ops) succeeded before the first
// failure, mirroring the original's early-exit accounting so the caller
// can distinguish CMPFAIL (a check failed) from an op error.
func ApplyChecksAndOps(schema *chain.Schema, checks []Check, ops []Op, old chain.Value) (newValue chain.Value, passed int, microErr *Error) {
	result := old.Clone()
	for len(result) < len(schema.Attributes) {
		result = append(result, nil)
	}

	for _, chk := range checks {
		idx := int(chk.Attr)
		if idx >= len(schema.Attributes) {
			return nil, passed, &Error{Kind: KindMalformed, Attr: chk.Attr}
		}
		attrType := schema.Attributes[idx].Type
		if isMapType(attrType) {
			return nil, passed, &Error{Kind: KindWrongType, Attr: chk.Attr}
		}
		var current []byte
		if idx < len(result) {
			current = result[idx]
		}
		if !checkPasses(attrType, current, chk.Value, chk.Predicate) {
			return nil, passed, nil
		}
		passed++
	}

	byAttr := make(map[uint16][]Op)
	order := make([]uint16, 0)
	for _, op := range ops {
		if _, ok := byAttr[op.Attr]; !ok {
			order = append(order, op.Attr)
		}
		byAttr[op.Attr] = append(byAttr[op.Attr], op)
	}

	for _, attr := range order {
		idx := int(attr)
		if idx >= len(schema.Attributes) {
			return nil, passed, &Error{Kind: KindMalformed, Attr: attr}
		}
		attrType := schema.Attributes[idx].Type
		attrOps := byAttr[attr]

		if isMapType(attrType) {
			next, mErr := ApplyMap(attrType, result[idx], attrOps)
			if mErr != nil {
				return nil, passed, mErr
			}
			result[idx] = next
			passed += len(attrOps)
			continue
		}

		cur := result[idx]
		for _, op := range attrOps {
			var next []byte
			var kind Kind
			switch attrType {
			case chain.TypeInt64:
				next, kind = ApplyInt64(cur, op.Arg1, op.Action)
			case chain.TypeFloat64:
				next, kind = ApplyFloat64(cur, op.Arg1, op.Action)
			default:
				next, kind = ApplyString(cur, op.Arg1, op.Action)
			}
			if kind != KindNone {
				return nil, passed, &Error{Kind: kind, Attr: attr}
			}
			cur = next
			passed++
		}
		result[idx] = cur
	}

	return result, passed, nil
}
