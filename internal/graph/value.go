package graph

import (
	"fmt"
	"reflect"
	"slices"
)

// Value ranks with a protocol-defined meaning besides scalar (-1) and
// N-dimensional (N >= 1).
const (
	ValueRankScalarOrOneDimension = -3
	ValueRankAny                  = -2
	ValueRankScalar               = -1
	ValueRankOneOrMoreDimensions  = 0
)

// VariableAttributes are the value attributes of Variable and VariableType
// nodes.
type VariableAttributes struct {
	// DataType references a DataType node; NullNodeId while unset.
	DataType NodeId `json:"data_type"`

	// ValueRank is -1 for scalars and N for N-dimensional arrays.
	ValueRank int `json:"value_rank"`

	// Dimensions has ValueRank entries when ValueRank >= 1. A zero entry
	// means the length of that dimension is unknown.
	Dimensions []uint32 `json:"dimensions,omitempty"`

	// Value is nil until a value is written.
	Value *Value `json:"value,omitempty"`
}

// Value is a variable value. Arrays of any rank are stored flat in row-major
// (last dimension fastest) order; the shape lives in the owning
// VariableAttributes.
type Value struct {
	Scalar   any   `json:"scalar,omitempty"`
	Elements []any `json:"elements,omitempty"`
	IsArray  bool  `json:"is_array,omitempty"`
}

// Flat returns a copy of the array elements.
func (v *Value) Flat() []any {
	return slices.Clone(v.Elements)
}

// Len returns the number of array elements, or 1 for a scalar.
func (v *Value) Len() int {
	if v.IsArray {
		return len(v.Elements)
	}
	return 1
}

func newVariableAttributes() *VariableAttributes {
	return &VariableAttributes{ValueRank: ValueRankScalar}
}

// Clone returns a deep copy.
func (va *VariableAttributes) Clone() *VariableAttributes {
	c := *va
	c.Dimensions = slices.Clone(va.Dimensions)
	if va.Value != nil {
		v := *va.Value
		v.Elements = slices.Clone(va.Value.Elements)
		c.Value = &v
	}
	return &c
}

// Row returns the i-th slice along the first dimension, e.g. the i-th row of
// a matrix.
func (va *VariableAttributes) Row(i int) ([]any, error) {
	if va.Value == nil || !va.Value.IsArray {
		return nil, fmt.Errorf("%w: value is not an array", ErrShape)
	}
	if !dimensionsKnown(va.Dimensions) || product(va.Dimensions) != len(va.Value.Elements) {
		return nil, fmt.Errorf("%w: dimensions %v do not describe %d elements", ErrShape, va.Dimensions, len(va.Value.Elements))
	}
	if i < 0 || i >= int(va.Dimensions[0]) {
		return nil, fmt.Errorf("%w: row %d out of range [0,%d)", ErrShape, i, va.Dimensions[0])
	}
	rowLen := product(va.Dimensions[1:])
	return slices.Clone(va.Value.Elements[i*rowLen : (i+1)*rowLen]), nil
}

// At returns the element at the given multi-dimensional index.
func (va *VariableAttributes) At(index ...int) (any, error) {
	if va.Value == nil || !va.Value.IsArray {
		return nil, fmt.Errorf("%w: value is not an array", ErrShape)
	}
	if len(index) != len(va.Dimensions) {
		return nil, fmt.Errorf("%w: %d indices for %d dimensions", ErrShape, len(index), len(va.Dimensions))
	}
	offset := 0
	for d, i := range index {
		if i < 0 || i >= int(va.Dimensions[d]) {
			return nil, fmt.Errorf("%w: index %v out of range %v", ErrShape, index, va.Dimensions)
		}
		offset = offset*int(va.Dimensions[d]) + i
	}
	if offset >= len(va.Value.Elements) {
		return nil, fmt.Errorf("%w: index %v beyond %d elements", ErrShape, index, len(va.Value.Elements))
	}
	return va.Value.Elements[offset], nil
}

func dimensionsKnown(dims []uint32) bool {
	if len(dims) == 0 {
		return false
	}
	for _, d := range dims {
		if d == 0 {
			return false
		}
	}
	return true
}

func product(dims []uint32) int {
	p := 1
	for _, d := range dims {
		p *= int(d)
	}
	return p
}

// variableLocked returns the stored node if it carries value attributes.
// Must be called with the lock held.
func (s *AddressSpace) variableLocked(id NodeId) (*Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	if n.Variable == nil {
		return nil, fmt.Errorf("%w: node %s is a %s, not a variable", ErrSchema, id, n.Class)
	}
	return n, nil
}

// SetDataType sets the datatype of a variable. An existing value is coerced
// to the new datatype; if that fails nothing changes.
func (s *AddressSpace) SetDataType(id, dataType NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.variableLocked(id)
	if err != nil {
		return err
	}
	dt, ok := s.nodes[dataType]
	if !ok {
		return fmt.Errorf("%w: datatype %s", ErrNotFound, dataType)
	}
	if dt.Class != NodeClassDataType {
		return fmt.Errorf("%w: %s is a %s, not a DataType", ErrSchema, dataType, dt.Class)
	}

	var coerced *Value
	if n.Variable.Value != nil {
		coerced, err = s.coerceValueLocked(dataType, n.Variable.Value)
		if err != nil {
			return err
		}
	}
	n.Variable.DataType = dataType
	n.Variable.Value = coerced
	return nil
}

// SetValueRank sets the value rank. Dimensions that no longer match the rank
// are cleared.
func (s *AddressSpace) SetValueRank(id NodeId, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.variableLocked(id)
	if err != nil {
		return err
	}
	if rank < ValueRankScalarOrOneDimension {
		return fmt.Errorf("%w: invalid value rank %d", ErrShape, rank)
	}
	va := n.Variable
	if va.Value != nil {
		if va.Value.IsArray && rank == ValueRankScalar {
			return fmt.Errorf("%w: node %s holds an array, cannot become scalar", ErrShape, id)
		}
		if !va.Value.IsArray && rank >= ValueRankOneOrMoreDimensions {
			return fmt.Errorf("%w: node %s holds a scalar, cannot become rank %d", ErrShape, id, rank)
		}
	}
	va.ValueRank = rank
	if rank < 1 || len(va.Dimensions) != rank {
		va.Dimensions = nil
	}
	return nil
}

// SetDimensions sets the array dimensions.
//
// While the current rank is below 2 the rank follows the number of
// dimensions. Once the rank is 2 or more, dimensions of a different length
// are rejected with ErrShape and the node is left unchanged.
func (s *AddressSpace) SetDimensions(id NodeId, dims []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.variableLocked(id)
	if err != nil {
		return err
	}
	va := n.Variable
	if len(dims) == 0 {
		va.Dimensions = nil
		return nil
	}
	if va.Value != nil && !va.Value.IsArray {
		return fmt.Errorf("%w: node %s holds a scalar, cannot take dimensions %v", ErrShape, id, dims)
	}
	if va.ValueRank >= 2 && len(dims) != va.ValueRank {
		return fmt.Errorf("%w: node %s has rank %d, cannot take %d dimensions %v", ErrShape, id, va.ValueRank, len(dims), dims)
	}
	if va.ValueRank < 2 {
		va.ValueRank = len(dims)
	}
	va.Dimensions = slices.Clone(dims)
	return nil
}

// SetValue writes the value of a variable.
//
// Slices and arrays are array values and must be flat (row-major for
// matrices). Writing an array while the rank is below 2 makes the variable
// one-dimensional with the array's length. At rank 2 and above the shape is
// kept as is: dimensions describe the value but do not bound its length, so
// Row and At fail until they match again. A nil value clears the value. An
// unset datatype is inferred from the value.
func (s *AddressSpace) SetValue(id NodeId, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.variableLocked(id)
	if err != nil {
		return err
	}
	return s.setValueLocked(n, value)
}

func (s *AddressSpace) setValueLocked(n *Node, value any) error {
	va := n.Variable
	if value == nil {
		va.Value = nil
		return nil
	}

	raw, err := toValue(value)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	if !raw.IsArray && va.ValueRank >= ValueRankOneOrMoreDimensions {
		return fmt.Errorf("%w: node %s has rank %d, got scalar %v", ErrShape, n.ID, va.ValueRank, value)
	}

	dataType := va.DataType
	if dataType.IsNull() {
		sample := raw.Scalar
		if raw.IsArray && len(raw.Elements) > 0 {
			sample = raw.Elements[0]
		}
		if sample != nil {
			dataType = InferDataType(sample)
		}
	}

	coerced, err := s.coerceValueLocked(dataType, raw)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	va.DataType = dataType
	va.Value = coerced
	if raw.IsArray {
		if va.ValueRank < 2 {
			va.ValueRank = 1
			va.Dimensions = []uint32{uint32(len(raw.Elements))}
		}
	} else {
		va.Dimensions = nil
	}
	return nil
}

func (s *AddressSpace) coerceValueLocked(dataType NodeId, v *Value) (*Value, error) {
	if !v.IsArray {
		scalar, err := s.coerceLocked(dataType, v.Scalar)
		if err != nil {
			return nil, err
		}
		return &Value{Scalar: scalar}, nil
	}
	elems := make([]any, len(v.Elements))
	for i, e := range v.Elements {
		c, err := s.coerceLocked(dataType, e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = c
	}
	return &Value{Elements: elems, IsArray: true}, nil
}

// toValue splits a Go value into scalar or flat array form.
func toValue(value any) (*Value, error) {
	if v, ok := value.(*Value); ok {
		return &Value{Scalar: v.Scalar, Elements: slices.Clone(v.Elements), IsArray: v.IsArray}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &Value{Scalar: value}, nil
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		e := rv.Index(i).Interface()
		if k := reflect.ValueOf(e).Kind(); k == reflect.Slice || k == reflect.Array {
			return nil, fmt.Errorf("%w: nested arrays must be written flat in row-major order", ErrShape)
		}
		elems[i] = e
	}
	return &Value{Elements: elems, IsArray: true}, nil
}
