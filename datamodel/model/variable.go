package model

// Variable is a named N-dimensional payload plus its own AttributeBag.
// The payload is a flat slice in row-major order; shape gives the extents.
// Element type and shape are fixed at creation.
type Variable struct {
	name   string
	shape  []int
	etype  ElemType
	data   any
	attrs  *AttributeBag
	parent *Group
}

// NewVariable builds a variable from a flat payload slice.
//
// It fails with ErrInvalidElementType if etype is outside the supported set
// or data is not the matching slice type, and with ErrShapeMismatch if the
// slice length disagrees with the product of the shape, or a dimension is
// negative.
func NewVariable(name string, shape []int, etype ElemType, data any) (*Variable, error) {
	if !etype.valid() {
		return nil, ErrInvalidElementType
	}
	actual, n := TypeOf(data)
	if actual != etype {
		return nil, ErrInvalidElementType
	}
	want := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, ErrShapeMismatch
		}
		want *= dim
	}
	if want != n {
		return nil, ErrShapeMismatch
	}
	v := &Variable{
		name:  name,
		shape: make([]int, len(shape)),
		etype: etype,
		data:  data,
		attrs: NewAttributes(),
	}
	copy(v.shape, shape)
	return v, nil
}

// Name returns the variable's name.  Uniqueness is the owning Group's
// responsibility, not the variable's.
func (v *Variable) Name() string {
	return v.name
}

// Shape returns the extents of each dimension.  Scalars have an empty shape.
func (v *Variable) Shape() []int {
	shape := make([]int, len(v.shape))
	copy(shape, v.shape)
	return shape
}

// Type returns the element type.
func (v *Variable) Type() ElemType {
	return v.etype
}

// Data returns the flat payload slice.
func (v *Variable) Data() any {
	return v.data
}

// Len returns the total number of elements.
func (v *Variable) Len() int {
	_, n := TypeOf(v.data)
	return n
}

// Attributes returns the variable's own bag, not a copy.
func (v *Variable) Attributes() *AttributeBag {
	return v.attrs
}

func (v *Variable) owner() *Group {
	return v.parent
}

func (v *Variable) setOwner(g *Group) {
	v.parent = g
}
