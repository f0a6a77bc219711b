package model

import (
	"errors"
	"testing"
)

func TestNewVariable(t *testing.T) {
	v, err := NewVariable("flux", []int{2, 3}, TypeFloat64,
		[]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name() != "flux" {
		t.Error("wrong name", v.Name())
	}
	shape := v.Shape()
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 3 {
		t.Error("wrong shape", shape)
	}
	if v.Type() != TypeFloat64 {
		t.Error("wrong type", v.Type())
	}
	if v.Len() != 6 {
		t.Error("wrong length", v.Len())
	}
}

func TestNewVariableScalar(t *testing.T) {
	v, err := NewVariable("t0", nil, TypeInt64, []int64{42})
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Shape()) != 0 || v.Len() != 1 {
		t.Error("scalar shape wrong", v.Shape())
	}
}

func TestNewVariableShapeMismatch(t *testing.T) {
	_, err := NewVariable("flux", []int{5}, TypeFloat64, []float64{1, 2, 3})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Error("expected ErrShapeMismatch, got", err)
	}
	_, err = NewVariable("flux", []int{-1}, TypeFloat64, []float64{})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Error("expected ErrShapeMismatch for negative dim, got", err)
	}
}

func TestNewVariableBadType(t *testing.T) {
	_, err := NewVariable("flux", []int{1}, TypeNone, []float64{1})
	if !errors.Is(err, ErrInvalidElementType) {
		t.Error("expected ErrInvalidElementType, got", err)
	}
	// payload type disagrees with declared type
	_, err = NewVariable("flux", []int{1}, TypeInt32, []float64{1})
	if !errors.Is(err, ErrInvalidElementType) {
		t.Error("expected ErrInvalidElementType, got", err)
	}
	// complex payloads are outside the supported set
	_, err = NewVariable("flux", []int{1}, TypeFloat64, []complex128{1})
	if !errors.Is(err, ErrInvalidElementType) {
		t.Error("expected ErrInvalidElementType, got", err)
	}
}

func TestVariableAttributesShared(t *testing.T) {
	v, err := NewVariable("flux", []int{1}, TypeFloat64, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	v.Attributes().Set("units", "W/m^2")
	// Attributes returns the bag itself, not a copy.
	if got, _ := v.Attributes().Get("units"); got != "W/m^2" {
		t.Error("attribute mutation lost")
	}
}

func TestTypeOf(t *testing.T) {
	ty, n := TypeOf([]int16{1, 2, 3})
	if ty != TypeInt16 || n != 3 {
		t.Error("TypeOf int16 failed", ty, n)
	}
	ty, _ = TypeOf("not a slice")
	if ty != TypeNone {
		t.Error("TypeOf should reject non-slices")
	}
	ty, n = TypeOf([]string{"a", "b"})
	if ty != TypeString || n != 2 {
		t.Error("TypeOf string failed", ty, n)
	}
}
