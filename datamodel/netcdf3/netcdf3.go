// Package netcdf3 maps NetCDF classic files (v1, v2 and v5 headers) onto
// the data model, delegating the on-disk format to github.com/ctessum/cdf.
//
// NetCDF classic has a flat namespace, so loaded trees are always one level
// deep and trees with nested groups cannot be stored.
package netcdf3

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/ctessum/cdf"

	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/internal"
)

// Load reads a NetCDF classic file into a root group.  Global attributes
// become the root's bag; every file variable becomes a 1:1 model variable
// with its own attributes.
func Load(fname string) (*model.Group, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cf, err := cdf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFormat, err)
	}

	root := model.NewGroup(filepath.Base(fname))
	copyAttrs(cf, "", root.Attributes())

	for _, name := range cf.Header.Variables() {
		v, err := loadVar(cf, name)
		if err != nil {
			return nil, err
		}
		copyAttrs(cf, name, v.Attributes())
		if err := root.AddChild(v); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func loadVar(cf *cdf.File, name string) (*model.Variable, error) {
	shape := cf.Header.Lengths(name)
	r := cf.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", model.ErrFormat, name, err)
	}
	etype, _ := model.TypeOf(buf)
	if etype == model.TypeNone {
		return nil, fmt.Errorf("%w: variable %q has type %T",
			model.ErrUnsupportedFeature, name, buf)
	}
	return model.NewVariable(name, shape, etype, buf)
}

func copyAttrs(cf *cdf.File, varName string, bag *model.AttributeBag) {
	for _, key := range cf.Header.Attributes(varName) {
		bag.Set(key, scalarize(cf.Header.GetAttribute(varName, key)))
	}
}

// scalarize unwraps single-element attribute slices, which NetCDF stores
// for every scalar attribute.
func scalarize(val any) any {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice && rv.Len() == 1 {
		return rv.Index(0).Interface()
	}
	return val
}

// Store writes a group as a new NetCDF classic file, through a temporary
// file published atomically on success.
//
// Nested groups fail with ErrUnsupportedFeature.  Element types the classic
// format lacks (unsigned, 64-bit, strings) fail with ErrInvalidElementType.
func Store(g *model.Group, fname string) error {
	vars, err := flatVars(g)
	if err != nil {
		return err
	}

	h, err := buildHeader(g, vars)
	if err != nil {
		return err
	}
	for _, err := range h.Check() {
		return fmt.Errorf("%w: %v", model.ErrFormat, err)
	}

	aw, err := internal.NewAtomicWriter(fname)
	if err != nil {
		return err
	}
	defer aw.Abort()

	cf, err := cdf.Create(aw.File(), h)
	if err != nil {
		return err
	}
	for _, v := range vars {
		shape := v.Shape()
		if len(shape) == 0 {
			shape = []int{1}
		}
		begin := make([]int, len(shape))
		w := cf.Writer(v.Name(), begin, shape)
		if _, err := w.Write(v.Data()); err != nil {
			return err
		}
	}
	return aw.Publish()
}

func flatVars(g *model.Group) ([]*model.Variable, error) {
	var vars []*model.Variable
	for name, node := range g.Children() {
		v, ok := node.(*model.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: NetCDF classic cannot hold nested group %q",
				model.ErrUnsupportedFeature, name)
		}
		if _, ok := prototype(v.Type()); !ok {
			return nil, fmt.Errorf("%w: NetCDF classic cannot hold %s variable %q",
				model.ErrInvalidElementType, v.Type(), name)
		}
		if !internal.IsValidName(name) {
			return nil, fmt.Errorf("%w: invalid NetCDF name %q",
				model.ErrUnsupportedFeature, name)
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func buildHeader(g *model.Group, vars []*model.Variable) (*cdf.Header, error) {
	var dimNames []string
	var dimLens []int
	varDims := make(map[string][]string)
	for _, v := range vars {
		shape := v.Shape()
		if len(shape) == 0 {
			// scalars are stored as single-element vectors
			shape = []int{1}
		}
		dims := make([]string, len(shape))
		for i, n := range shape {
			dims[i] = fmt.Sprintf("%s_d%d", v.Name(), i)
			dimNames = append(dimNames, dims[i])
			dimLens = append(dimLens, n)
		}
		varDims[v.Name()] = dims
	}

	h := cdf.NewHeader(dimNames, dimLens)
	for _, v := range vars {
		proto, _ := prototype(v.Type())
		h.AddVariable(v.Name(), varDims[v.Name()], proto)
		for key, val := range v.Attributes().Items() {
			h.AddAttribute(v.Name(), key, attrValue(val))
		}
	}
	for key, val := range g.Attributes().Items() {
		h.AddAttribute("", key, attrValue(val))
	}
	h.Define()
	return h, nil
}

// prototype returns a one-element slice of the Go type the cdf library
// expects for a variable definition, or false for types the classic format
// cannot hold.
func prototype(t model.ElemType) (any, bool) {
	switch t {
	case model.TypeInt8:
		return []int8{0}, true
	case model.TypeInt16:
		return []int16{0}, true
	case model.TypeInt32:
		return []int32{0}, true
	case model.TypeFloat32:
		return []float32{0}, true
	case model.TypeFloat64:
		return []float64{0}, true
	}
	return nil, false
}

// attrValue converts a bag value to a form the cdf library will accept:
// strings stay strings, scalars become one-element slices.
func attrValue(val any) any {
	switch v := val.(type) {
	case string:
		return v
	case int8:
		return []int8{v}
	case int16:
		return []int16{v}
	case int32:
		return []int32{v}
	case int:
		return []int32{int32(v)}
	case int64:
		return []int32{int32(v)}
	case float32:
		return []float32{v}
	case float64:
		return []float64{v}
	}
	return val
}
