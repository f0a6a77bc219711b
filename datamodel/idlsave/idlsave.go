// Package idlsave reads IDL save sets (.sav files) into the data model.
// Both the normal and the record-compressed layout are handled.  The
// format is flat: every saved variable lands in the root group, and the
// session metadata records (timestamp, version, notice) become root
// attributes.
//
// Writing save sets is not supported.
package idlsave

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/batchatco/go-thrower"
	"github.com/klauspost/compress/zlib"

	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/internal"
)

var logger = internal.NewLogger()

// SetLogLevel adjusts the verbosity of parse diagnostics and returns
// the previous level.
func SetLogLevel(level internal.LogLevel) internal.LogLevel {
	return logger.SetLogLevel(level)
}

// Record types that carry content.  Anything else is skipped using the
// next-record offset in the record header.
const (
	recVariable  = 2
	recEndMarker = 6
	recTimestamp = 10
	recVersion   = 14
	recNotice    = 19
)

// IDL type codes.
const (
	idlByte      = 1
	idlInt16     = 2
	idlInt32     = 3
	idlFloat32   = 4
	idlFloat64   = 5
	idlComplex   = 6
	idlString    = 7
	idlStruct    = 8
	idlComplex64 = 9
	idlHeap      = 10
	idlObject    = 11
	idlUint16    = 12
	idlUint32    = 13
	idlInt64     = 14
	idlUint64    = 15
)

const (
	flagArray = 0x04

	signature     = "SR"
	recfmtNormal  = 0x0004
	recfmtZlib    = 0x0006
	recHeaderSize = 16
)

// Load reads a save set from disk.
func Load(fname string) (g *model.Group, err error) {
	defer thrower.RecoverError(&err)
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	g, err = New(raw, filepath.Base(fname))
	if err != nil {
		return nil, err
	}
	return g, nil
}

// New parses save set bytes already in memory.
func New(raw []byte, name string) (g *model.Group, err error) {
	defer thrower.RecoverError(&err)
	if len(raw) < 4 || string(raw[:2]) != signature {
		return nil, fmt.Errorf("%w: not an IDL save set", model.ErrFormat)
	}
	recfmt := binary.BigEndian.Uint16(raw[2:4])
	switch recfmt {
	case recfmtNormal:
	case recfmtZlib:
		raw = inflateRecords(raw)
	default:
		return nil, fmt.Errorf("%w: unknown record format %#04x",
			model.ErrFormat, recfmt)
	}

	g = model.NewGroup(name)
	c := &cursor{buf: raw, pos: 4}
	for {
		start := c.pos
		rectype := c.int32()
		nextrec := int64(c.uint32())
		nextrec += int64(c.uint32()) << 32
		c.skip(4)
		switch rectype {
		case recEndMarker:
			return g, nil
		case recVariable:
			readVariable(c, g)
		case recTimestamp:
			// the timestamp strings sit past a fixed gap
			c.pos = start + recHeaderSize + 1024
			g.Attributes().Set("date", c.str())
			g.Attributes().Set("user", c.str())
			g.Attributes().Set("host", c.str())
		case recVersion:
			g.Attributes().Set("format", c.int32())
			g.Attributes().Set("arch", c.str())
			g.Attributes().Set("os", c.str())
			g.Attributes().Set("release", c.str())
		case recNotice:
			g.Attributes().Set("notice", c.str())
		default:
			logger.Infof("skipping record type %d", rectype)
		}
		if nextrec <= int64(start) || nextrec > int64(len(c.buf)) {
			fail(fmt.Sprintf("bad next-record offset %d", nextrec))
		}
		c.pos = int(nextrec)
	}
}

// Store always fails: save sets are read-only here.
func Store(_ *model.Group, _ string) error {
	return fmt.Errorf("%w: IDL save sets are read-only", model.ErrUnsupportedOperation)
}

// inflateRecords rewrites a record-compressed save set into the normal
// layout: each record keeps its 16-byte header, and the payload up to
// the next-record offset is one zlib stream.
func inflateRecords(raw []byte) []byte {
	var out bytes.Buffer
	out.Write(raw[:2])
	binary.Write(&out, binary.BigEndian, uint16(recfmtNormal))

	c := &cursor{buf: raw, pos: 4}
	for {
		rectype := c.int32()
		nextrec := int64(c.uint32())
		nextrec += int64(c.uint32()) << 32
		unknown := c.bytes(4)
		if rectype == recEndMarker {
			hdr := out.Len()
			binary.Write(&out, binary.BigEndian, rectype)
			binary.Write(&out, binary.BigEndian, uint32(hdr+recHeaderSize))
			binary.Write(&out, binary.BigEndian, uint32(0))
			out.Write(unknown)
			return out.Bytes()
		}
		if nextrec <= int64(c.pos) || nextrec > int64(len(raw)) {
			fail(fmt.Sprintf("bad next-record offset %d", nextrec))
		}
		zr, err := zlib.NewReader(bytes.NewReader(raw[c.pos:nextrec]))
		thrower.ThrowIfError(err)
		payload, err := io.ReadAll(zr)
		zr.Close()
		thrower.ThrowIfError(err)
		hdr := out.Len()
		binary.Write(&out, binary.BigEndian, rectype)
		binary.Write(&out, binary.BigEndian, uint32(hdr+recHeaderSize+len(payload)))
		binary.Write(&out, binary.BigEndian, uint32(0))
		out.Write(unknown)
		out.Write(payload)
		c.pos = int(nextrec)
	}
}

func readVariable(c *cursor, g *model.Group) {
	name := c.str()
	typecode := c.int32()
	varflags := c.int32()

	etype := elemType(typecode)

	var dims []int
	nelements := 1
	if varflags&flagArray != 0 {
		dims, nelements = readArrayDesc(c)
	}

	varstart := c.int32()
	if varstart != 7 {
		fail(fmt.Sprintf("variable %q: bad data marker %d", name, varstart))
	}

	data := readData(c, typecode, nelements, varflags&flagArray != 0)
	v, err := model.NewVariable(name, dims, etype, data)
	thrower.ThrowIfError(err)
	thrower.ThrowIfError(g.AddChild(v))
}

// readArrayDesc returns the dimensions in row-major order.  IDL stores
// arrays column-major, so the declared dimension list is reversed.
func readArrayDesc(c *cursor) ([]int, int) {
	arrstart := c.int32()
	if arrstart != 8 {
		fail(fmt.Sprintf("bad array descriptor marker %d", arrstart))
	}
	c.skip(8) // bytesEl, nbytes
	nelements := int(c.int32())
	ndims := int(c.int32())
	c.skip(8)
	nmax := int(c.int32())
	if ndims < 0 || nmax < ndims || nmax > 16 {
		fail(fmt.Sprintf("bad array rank %d/%d", ndims, nmax))
	}
	all := make([]int, nmax)
	for i := range all {
		all[i] = int(c.int32())
	}
	dims := make([]int, ndims)
	for i := 0; i < ndims; i++ {
		dims[i] = all[ndims-1-i]
	}
	return dims, nelements
}

func readData(c *cursor, typecode int32, n int, isArray bool) any {
	switch typecode {
	case idlByte:
		if !isArray {
			// scalar bytes are widened to a long
			return []uint8{uint8(c.int32())}
		}
		nbytes := int(c.int32())
		if nbytes != n {
			fail(fmt.Sprintf("byte array length %d, expected %d", nbytes, n))
		}
		out := make([]uint8, n)
		copy(out, c.bytes(n))
		c.align4()
		return out
	case idlInt16:
		out := make([]int16, n)
		for i := range out {
			// each element occupies a 4-byte word
			out[i] = int16(c.int32())
		}
		return out
	case idlUint16:
		out := make([]uint16, n)
		for i := range out {
			out[i] = uint16(c.int32())
		}
		return out
	case idlInt32:
		out := make([]int32, n)
		for i := range out {
			out[i] = c.int32()
		}
		return out
	case idlUint32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = c.uint32()
		}
		return out
	case idlInt64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(c.uint64())
		}
		return out
	case idlUint64:
		out := make([]uint64, n)
		for i := range out {
			out[i] = c.uint64()
		}
		return out
	case idlFloat32:
		out := make([]float32, n)
		raw := c.bytes(4 * n)
		for i := range out {
			bits := binary.BigEndian.Uint32(raw[4*i:])
			out[i] = math.Float32frombits(bits)
		}
		return out
	case idlFloat64:
		out := make([]float64, n)
		raw := c.bytes(8 * n)
		for i := range out {
			bits := binary.BigEndian.Uint64(raw[8*i:])
			out[i] = math.Float64frombits(bits)
		}
		return out
	case idlString:
		out := make([]string, n)
		for i := range out {
			out[i] = c.strData()
		}
		return out
	}
	thrower.Throw(fmt.Errorf("%w: IDL type code %d", model.ErrUnsupportedFeature, typecode))
	panic("unreachable")
}

func elemType(typecode int32) model.ElemType {
	switch typecode {
	case idlByte:
		return model.TypeUint8
	case idlInt16:
		return model.TypeInt16
	case idlInt32:
		return model.TypeInt32
	case idlFloat32:
		return model.TypeFloat32
	case idlFloat64:
		return model.TypeFloat64
	case idlString:
		return model.TypeString
	case idlUint16:
		return model.TypeUint16
	case idlUint32:
		return model.TypeUint32
	case idlInt64:
		return model.TypeInt64
	case idlUint64:
		return model.TypeUint64
	}
	thrower.Throw(fmt.Errorf("%w: IDL type code %d", model.ErrUnsupportedFeature, typecode))
	panic("unreachable")
}

// cursor walks a byte buffer, throwing on short reads so the parser can
// stay linear.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) bytes(n int) []byte {
	if n < 0 || c.pos+n > len(c.buf) {
		fail("truncated save set")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *cursor) skip(n int) { c.bytes(n) }

func (c *cursor) int32() int32 {
	return int32(binary.BigEndian.Uint32(c.bytes(4)))
}

func (c *cursor) uint32() uint32 {
	return binary.BigEndian.Uint32(c.bytes(4))
}

func (c *cursor) uint64() uint64 {
	return binary.BigEndian.Uint64(c.bytes(8))
}

func (c *cursor) align4() {
	if rem := c.pos % 4; rem != 0 {
		c.skip(4 - rem)
	}
}

// str reads a counted string: int32 length, bytes, pad to four.
func (c *cursor) str() string {
	n := int(c.int32())
	if n <= 0 {
		return ""
	}
	s := string(c.bytes(n))
	c.align4()
	return s
}

// strData reads string payload data, where a nonzero length is written
// twice.
func (c *cursor) strData() string {
	n := int(c.int32())
	if n <= 0 {
		return ""
	}
	return c.str()
}

func fail(msg string) {
	thrower.Throw(fmt.Errorf("%w: %s", model.ErrFormat, msg))
}
