package graph

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

type coercer func(v any) (any, bool)

// coercers convert Go values to the canonical representation of each
// builtin datatype. Datatypes without an entry (BaseDataType, Structure, ...)
// accept any value unchanged.
var coercers = map[NodeId]coercer{
	BooleanID: func(v any) (any, bool) {
		b, ok := v.(bool)
		return b, ok
	},
	SByteID:  signed(math.MinInt8, math.MaxInt8, func(n int64) any { return int8(n) }),
	Int16ID:  signed(math.MinInt16, math.MaxInt16, func(n int64) any { return int16(n) }),
	Int32ID:  signed(math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) }),
	Int64ID:  signed(math.MinInt64, math.MaxInt64, func(n int64) any { return n }),
	ByteID:   unsigned(math.MaxUint8, func(n uint64) any { return uint8(n) }),
	UInt16ID: unsigned(math.MaxUint16, func(n uint64) any { return uint16(n) }),
	UInt32ID: unsigned(math.MaxUint32, func(n uint64) any { return uint32(n) }),
	UInt64ID: unsigned(math.MaxUint64, func(n uint64) any { return n }),
	FloatID: func(v any) (any, bool) {
		f, ok := toFloat64(v)
		if !ok || (!math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32) {
			return nil, false
		}
		return float32(f), true
	},
	DoubleID: func(v any) (any, bool) {
		f, ok := toFloat64(v)
		return f, ok
	},
	NumberID: func(v any) (any, bool) {
		_, ok := toFloat64(v)
		return v, ok
	},
	IntegerID:     signed(math.MinInt64, math.MaxInt64, func(n int64) any { return n }),
	UIntegerID:    unsigned(math.MaxUint64, func(n uint64) any { return n }),
	EnumerationID: signed(math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) }),
	StringID: func(v any) (any, bool) {
		s, ok := v.(string)
		return s, ok
	},
	DateTimeID: func(v any) (any, bool) {
		switch t := v.(type) {
		case time.Time:
			return t, true
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			return parsed, err == nil
		}
		return nil, false
	},
	NodeIdTypeID: func(v any) (any, bool) {
		switch id := v.(type) {
		case NodeId:
			return id, true
		case string:
			parsed, err := ParseNodeId(id)
			return parsed, err == nil
		}
		return nil, false
	},
	QualifiedNameID: func(v any) (any, bool) {
		switch q := v.(type) {
		case QualifiedName:
			return q, true
		case string:
			parsed, err := ParseQualifiedName(q)
			return parsed, err == nil
		}
		return nil, false
	},
	LocalizedTextID: func(v any) (any, bool) {
		switch lt := v.(type) {
		case LocalizedText:
			return lt, true
		case *LocalizedText:
			if lt == nil {
				return nil, false
			}
			return *lt, true
		case string:
			return LocalizedText{Text: lt}, true
		case map[string]any:
			text, _ := lt["text"].(string)
			locale, _ := lt["locale"].(string)
			return LocalizedText{Text: text, Locale: locale}, true
		}
		return nil, false
	},
}

func signed(lo, hi int64, conv func(int64) any) coercer {
	return func(v any) (any, bool) {
		n, ok := toInt64(v)
		if !ok || n < lo || n > hi {
			return nil, false
		}
		return conv(n), true
	}
}

func unsigned(hi uint64, conv func(uint64) any) coercer {
	return func(v any) (any, bool) {
		n, ok := toUint64(v)
		if !ok || n > hi {
			return nil, false
		}
		return conv(n), true
	}
}

func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// InferDataType picks the datatype used when a value is written to a
// variable whose datatype is unset. Numbers other than float32 default to
// Double.
func InferDataType(v any) NodeId {
	switch v.(type) {
	case bool:
		return BooleanID
	case string:
		return StringID
	case float32:
		return FloatID
	case time.Time:
		return DateTimeID
	case LocalizedText, *LocalizedText:
		return LocalizedTextID
	case QualifiedName:
		return QualifiedNameID
	case NodeId:
		return NodeIdTypeID
	}
	if _, ok := toFloat64(v); ok {
		return DoubleID
	}
	return BaseDataTypeID
}

// builtinAncestorLocked returns the closest datatype with a coercer on the
// inverse HasSubtype chain of dt, or BaseDataTypeID if there is none.
// Must be called with the lock held.
func (s *AddressSpace) builtinAncestorLocked(dt NodeId) NodeId {
	seen := make(map[NodeId]bool)
	for cur := dt; !cur.IsNull() && !seen[cur]; {
		if _, ok := coercers[cur]; ok {
			return cur
		}
		seen[cur] = true
		next := NullNodeId
		for _, ref := range s.adjacency[cur] {
			if !ref.IsForward && ref.ReferenceType == HasSubtypeID {
				next = ref.Target
				break
			}
		}
		cur = next
	}
	return BaseDataTypeID
}

// coerceLocked converts v to the representation of dt.
// Must be called with the lock held.
func (s *AddressSpace) coerceLocked(dt NodeId, v any) (any, error) {
	builtin := s.builtinAncestorLocked(dt)
	conv, ok := coercers[builtin]
	if !ok {
		return v, nil
	}
	out, ok := conv(v)
	if !ok {
		return nil, fmt.Errorf("%w: value %v (%T) is not coercible to %s", ErrShape, v, v, s.typeNameLocked(dt))
	}
	return out, nil
}

func (s *AddressSpace) typeNameLocked(dt NodeId) string {
	if n, ok := s.nodes[dt]; ok {
		return n.BrowseName.Name
	}
	return dt.String()
}
