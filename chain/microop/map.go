package microop

import (
	"sort"

	"github.com/chainkv/chainkv/chain"
)

type stepFn func(buf []byte) (elem, rest []byte, err error)
type writeFn func(dst, elem []byte) []byte
type lessFn func(a, b []byte) bool
type validateFn func(b []byte) bool
type applyFn func(old, operand []byte, action Action) ([]byte, Kind)

// codec bundles the per-(key type, value type) functions the original
// engine generated once per combination via its APPLY_MAP macro; here
// they are built once and looked up by container type.
type codec struct {
	keyType, valType chain.AttrType
	stepKey, stepVal stepFn
	writeKey, writeVal writeFn
	keyLess          lessFn
	validateKey      validateFn
	validateVal      validateFn
	applyVal         applyFn
}

var codecs = buildCodecs()

func buildCodecs() map[chain.AttrType]*codec {
	str := struct {
		step  stepFn
		write writeFn
		less  lessFn
		valid validateFn
	}{stepString, writeString, compareStringLess, validateString}
	i64 := struct {
		step  stepFn
		write writeFn
		less  lessFn
		valid validateFn
	}{stepFixed8, writeFixed8, compareInt64Less, validateInt64}
	f64 := struct {
		step  stepFn
		write writeFn
		less  lessFn
		valid validateFn
	}{stepFixed8, writeFixed8, compareFloat64Less, validateFloat64}

	m := map[chain.AttrType]*codec{
		chain.TypeMapStringString: {
			chain.TypeString, chain.TypeString,
			str.step, str.step, str.write, str.write, str.less, str.valid, str.valid, ApplyString,
		},
		chain.TypeMapStringInt64: {
			chain.TypeString, chain.TypeInt64,
			str.step, i64.step, str.write, i64.write, str.less, str.valid, i64.valid, ApplyInt64,
		},
		chain.TypeMapStringFloat64: {
			chain.TypeString, chain.TypeFloat64,
			str.step, f64.step, str.write, f64.write, str.less, str.valid, f64.valid, ApplyFloat64,
		},
		chain.TypeMapInt64String: {
			chain.TypeInt64, chain.TypeString,
			i64.step, str.step, i64.write, str.write, i64.less, i64.valid, str.valid, ApplyString,
		},
		chain.TypeMapInt64Int64: {
			chain.TypeInt64, chain.TypeInt64,
			i64.step, i64.step, i64.write, i64.write, i64.less, i64.valid, i64.valid, ApplyInt64,
		},
		chain.TypeMapInt64Float64: {
			chain.TypeInt64, chain.TypeFloat64,
			i64.step, f64.step, i64.write, f64.write, i64.less, i64.valid, f64.valid, ApplyFloat64,
		},
		chain.TypeMapFloat64String: {
			chain.TypeFloat64, chain.TypeString,
			f64.step, str.step, f64.write, str.write, f64.less, f64.valid, str.valid, ApplyString,
		},
		chain.TypeMapFloat64Int64: {
			chain.TypeFloat64, chain.TypeInt64,
			f64.step, i64.step, f64.write, i64.write, f64.less, f64.valid, i64.valid, ApplyInt64,
		},
		chain.TypeMapFloat64Float64: {
			chain.TypeFloat64, chain.TypeFloat64,
			f64.step, f64.step, f64.write, f64.write, f64.less, f64.valid, f64.valid, ApplyFloat64,
		},
	}
	return m
}

type entry struct {
	key, val []byte
}

// decodeBody parses a sequence of (key, val) pairs with the given step
// functions and checks they are strictly sorted ascending by key -
// spec.md §4.9's validation rule, shared by old-value decode and a SET
// op's replacement body.
func decodeBody(stepKey, stepVal stepFn, keyLess lessFn, buf []byte) ([]entry, error) {
	var entries []entry
	var prev []byte
	have := false
	for len(buf) > 0 {
		k, rest, err := stepKey(buf)
		if err != nil {
			return nil, err
		}
		v, rest2, err := stepVal(rest)
		if err != nil {
			return nil, err
		}
		if have && !keyLess(prev, k) {
			return nil, errOutOfOrder
		}
		entries = append(entries, entry{k, v})
		prev, have, buf = k, true, rest2
	}
	return entries, nil
}

// ValidateMapBytes reports whether buf is a well-formed, strictly sorted
// encoding of containerType (spec.md §8 invariant 5/6).
func ValidateMapBytes(containerType chain.AttrType, buf []byte) bool {
	c, ok := codecs[containerType]
	if !ok {
		return false
	}
	_, err := decodeBody(c.stepKey, c.stepVal, c.keyLess, buf)
	return err == nil
}

// ApplyMap runs ops against the map encoded in oldValue and returns the
// canonically re-encoded result (spec.md §4.9 "Apply"). ops must already
// be filtered to the ones targeting this attribute.
func ApplyMap(containerType chain.AttrType, oldValue []byte, ops []Op) ([]byte, *Error) {
	c, ok := codecs[containerType]
	if !ok {
		return nil, &Error{Kind: KindWrongType}
	}

	entries, err := decodeBody(c.stepKey, c.stepVal, c.keyLess, oldValue)
	if err != nil {
		return nil, &Error{Kind: KindMalformed}
	}
	m := make(map[string][]byte, len(entries))
	for _, e := range entries {
		m[string(e.key)] = e.val
	}

	for _, op := range ops {
		switch op.Action {
		case OpSet:
			if op.Arg1Type == chain.TypeMapGeneric && len(op.Arg1) == 0 {
				m = make(map[string][]byte)
				continue
			}
			if op.Arg1Type == chain.TypeMapGeneric {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			if op.Arg1Type != containerType {
				return nil, &Error{Kind: KindWrongType, Attr: op.Attr}
			}
			replacement, err := decodeBody(c.stepKey, c.stepVal, c.keyLess, op.Arg1)
			if err != nil {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			m = make(map[string][]byte, len(replacement))
			for _, e := range replacement {
				m[string(e.key)] = e.val
			}

		case OpMapAdd:
			if op.Arg2Type != c.keyType {
				return nil, &Error{Kind: KindWrongType, Attr: op.Attr}
			}
			if !c.validateKey(op.Arg2) {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			if op.Arg1Type != c.valType {
				return nil, &Error{Kind: KindWrongType, Attr: op.Attr}
			}
			if !c.validateVal(op.Arg1) {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			m[string(op.Arg2)] = append([]byte(nil), op.Arg1...)

		case OpMapRemove:
			if op.Arg2Type != c.keyType {
				return nil, &Error{Kind: KindWrongType, Attr: op.Attr}
			}
			if !c.validateKey(op.Arg2) {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			delete(m, string(op.Arg2))

		case OpStringAppend, OpStringPrepend,
			OpNumAdd, OpNumSub, OpNumMul, OpNumDiv, OpNumMod, OpNumAnd, OpNumOr, OpNumXor:
			if op.Arg2Type != c.keyType {
				return nil, &Error{Kind: KindWrongType, Attr: op.Attr}
			}
			if !c.validateKey(op.Arg2) {
				return nil, &Error{Kind: KindMalformed, Attr: op.Attr}
			}
			old := m[string(op.Arg2)]
			next, kind := c.applyVal(old, op.Arg1, op.Action)
			if kind != KindNone {
				return nil, &Error{Kind: kind, Attr: op.Attr}
			}
			m[string(op.Arg2)] = next

		default:
			return nil, &Error{Kind: KindWrongAction, Attr: op.Attr}
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.keyLess([]byte(keys[i]), []byte(keys[j])) })

	var out []byte
	for _, k := range keys {
		out = c.writeKey(out, []byte(k))
		out = c.writeVal(out, m[k])
	}
	return out, nil
}
