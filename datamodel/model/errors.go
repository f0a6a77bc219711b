package model

import (
	"errors"
)

var (
	// ErrKeyNotFound is returned when a named attribute or child does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrDuplicateName is returned when adding a child whose name is taken.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrCycleDetected is returned when adding a node to itself or a descendant.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrAlreadyOwned is returned when adding a node that has another parent.
	// Ownership transfer requires an explicit RemoveChild first.
	ErrAlreadyOwned = errors.New("node already owned by another group")
	// ErrShapeMismatch is returned when a payload's extents disagree with
	// its declared shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidElementType is returned for element types outside the
	// supported set, or payloads whose Go type does not match.
	ErrInvalidElementType = errors.New("invalid element type")

	// ErrFormat indicates a file is not valid for the adapter reading it.
	ErrFormat = errors.New("invalid file format")
	// ErrUnsupportedFeature indicates a file or tree uses a construct the
	// adapter cannot map, such as a nested group in a flat format.
	ErrUnsupportedFeature = errors.New("unsupported feature")
	// ErrUnsupportedOperation indicates the adapter does not implement the
	// requested operation, such as storing to a read-only format.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
