// Package hdf5 maps HDF5-family files (plain HDF5, NetCDF4, Matlab v7.3+)
// onto the data model, delegating the on-disk format to the pure-Go reader
// in github.com/batchatco/go-native-netcdf.
//
// HDF5 groups nest, so this is the one adapter that produces trees deeper
// than one level.  The adapter is read-only; Store fails with
// ErrUnsupportedOperation.
package hdf5

import (
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	h5 "github.com/batchatco/go-native-netcdf/netcdf/hdf5"

	"github.com/spacephys/go-datamodel/datamodel/model"
)

// Load reads an HDF5 file into a root group: datasets become variables,
// HDF5 groups become nested groups, and attributes ride along at every
// level.
func Load(fname string) (*model.Group, error) {
	ag, err := h5.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFormat, err)
	}
	defer ag.Close()
	return convertGroup(ag, filepath.Base(fname))
}

// Store always fails: writing HDF5 is not supported.
func Store(_ *model.Group, _ string) error {
	return fmt.Errorf("%w: HDF5 is read-only", model.ErrUnsupportedOperation)
}

func convertGroup(ag api.Group, name string) (*model.Group, error) {
	g := model.NewGroup(name)
	copyAttrs(ag.Attributes(), g.Attributes())

	for _, varName := range ag.ListVariables() {
		v, err := convertVar(ag, varName)
		if err != nil {
			return nil, err
		}
		if err := g.AddChild(v); err != nil {
			return nil, err
		}
	}

	for _, subName := range ag.ListSubgroups() {
		sub, err := ag.GetGroup(subName)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", model.ErrFormat, subName, err)
		}
		converted, err := convertGroup(sub, subName)
		sub.Close()
		if err != nil {
			return nil, err
		}
		if err := g.AddChild(converted); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func convertVar(ag api.Group, name string) (*model.Variable, error) {
	vg, err := ag.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %q: %v", model.ErrFormat, name, err)
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: variable %q: %v", model.ErrFormat, name, err)
	}
	shape64 := vg.Shape()
	shape := make([]int, len(shape64))
	for i, n := range shape64 {
		shape[i] = int(n)
	}
	flat, etype, err := Flatten(vals, shape)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v, err := model.NewVariable(name, shape, etype, flat)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	copyAttrs(vg.Attributes(), v.Attributes())
	return v, nil
}

func copyAttrs(am api.AttributeMap, bag *model.AttributeBag) {
	if am == nil {
		return
	}
	for _, key := range am.Keys() {
		if val, has := am.Get(key); has {
			bag.Set(key, val)
		}
	}
}

// Flatten converts the nested slices the HDF5 library returns for
// multi-dimensional data into a flat row-major payload slice.  A scalar
// value becomes a one-element slice with an empty shape.  Element types
// outside the model's set (compound, opaque, vlen of non-string) fail with
// ErrUnsupportedFeature.
func Flatten(vals any, shape []int) (any, model.ElemType, error) {
	total := 1
	for _, n := range shape {
		total *= n
	}
	if etype, n := model.TypeOf(vals); etype != model.TypeNone && n == total {
		return vals, etype, nil
	}
	etype := leafType(reflect.TypeOf(vals), len(shape))
	if etype == model.TypeNone {
		return nil, model.TypeNone, fmt.Errorf("%w: element type %T",
			model.ErrUnsupportedFeature, vals)
	}
	flat := reflect.ValueOf(etype.MakeSlice(total))
	idx := 0
	var fill func(v reflect.Value, depth int) error
	fill = func(v reflect.Value, depth int) error {
		if depth == 0 {
			if idx >= total {
				return fmt.Errorf("%w: more elements than shape allows",
					model.ErrShapeMismatch)
			}
			flat.Index(idx).Set(v)
			idx++
			return nil
		}
		if v.Kind() != reflect.Slice {
			return fmt.Errorf("%w: expected nesting depth %d",
				model.ErrShapeMismatch, depth)
		}
		for i := 0; i < v.Len(); i++ {
			if err := fill(v.Index(i), depth-1); err != nil {
				return err
			}
		}
		return nil
	}
	if len(shape) == 0 {
		// scalar dataset: vals itself is the single element
		flat.Index(0).Set(reflect.ValueOf(vals))
		idx = 1
	} else if err := fill(reflect.ValueOf(vals), len(shape)); err != nil {
		return nil, model.TypeNone, err
	}
	if idx != total {
		return nil, model.TypeNone, fmt.Errorf("%w: got %d elements, shape wants %d",
			model.ErrShapeMismatch, idx, total)
	}
	return flat.Interface(), etype, nil
}

// leafType digs through depth levels of slice nesting to the element type.
func leafType(t reflect.Type, depth int) model.ElemType {
	for i := 0; i < depth; i++ {
		if t == nil || t.Kind() != reflect.Slice {
			break
		}
		t = t.Elem()
	}
	if t == nil {
		return model.TypeNone
	}
	switch t.Kind() {
	case reflect.Int8:
		return model.TypeInt8
	case reflect.Uint8:
		return model.TypeUint8
	case reflect.Int16:
		return model.TypeInt16
	case reflect.Uint16:
		return model.TypeUint16
	case reflect.Int32:
		return model.TypeInt32
	case reflect.Uint32:
		return model.TypeUint32
	case reflect.Int64:
		return model.TypeInt64
	case reflect.Uint64:
		return model.TypeUint64
	case reflect.Float32:
		return model.TypeFloat32
	case reflect.Float64:
		return model.TypeFloat64
	case reflect.String:
		return model.TypeString
	}
	return model.TypeNone
}
