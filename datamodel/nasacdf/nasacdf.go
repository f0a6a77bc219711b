// Package nasacdf reads and writes NASA CDF version 3 files.  Only the
// modern subset is handled: single-file CDFs, z-variables, row-major
// ordering, network (big-endian) or PC (little-endian) data encodings,
// and no compression.  Anything outside that subset fails with
// ErrUnsupportedFeature rather than guessing.
//
// CDF has a flat variable namespace, so a loaded file is always a root
// group with no subgroups.
package nasacdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/batchatco/go-thrower"

	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/internal"
)

var logger = internal.NewLogger()

// SetLogLevel adjusts the verbosity of parse diagnostics and returns
// the previous level.
func SetLogLevel(level internal.LogLevel) internal.LogLevel {
	return logger.SetLogLevel(level)
}

// Record types.
const (
	rtCDR    = 1
	rtGDR    = 2
	rtADR    = 4
	rtAgrEDR = 5
	rtVXR    = 6
	rtVVR    = 7
	rtZVDR   = 8
	rtAzEDR  = 9
	rtCVVR   = 13
)

// Data encodings (CDR.Encoding).
const (
	encNetwork = 1
	encIBMPC   = 6
)

// CDF data types.
const (
	cdfInt1    = 1
	cdfInt2    = 2
	cdfInt4    = 4
	cdfInt8    = 8
	cdfUint1   = 11
	cdfUint2   = 12
	cdfUint4   = 14
	cdfReal4   = 21
	cdfReal8   = 22
	cdfEpoch   = 31
	cdfEpoch16 = 32
	cdfTT2000  = 33
	cdfByte    = 41
	cdfFloat   = 44
	cdfDouble  = 45
	cdfChar    = 51
	cdfUchar   = 52
)

const (
	magicV3           = 0xCDF30001
	magicV2           = 0xCDF26002
	magicUncompressed = 0x0000FFFF

	cdrFlagRowMajor   = 0x1
	cdrFlagSingleFile = 0x2

	vdrFlagRecVary  = 0x1
	vdrFlagPad      = 0x2
	vdrFlagCompress = 0x4

	scopeGlobal   = 1
	scopeVariable = 2
)

// Load reads a CDF file from disk.
func Load(fname string) (g *model.Group, err error) {
	defer thrower.RecoverError(&err)
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	return New(raw, filepath.Base(fname))
}

// New parses CDF bytes already in memory.
func New(raw []byte, name string) (g *model.Group, err error) {
	defer thrower.RecoverError(&err)
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: not a CDF file", model.ErrFormat)
	}
	magic := binary.BigEndian.Uint32(raw[0:4])
	compressed := binary.BigEndian.Uint32(raw[4:8])
	switch magic {
	case magicV3:
	case magicV2:
		return nil, fmt.Errorf("%w: CDF version 2 files", model.ErrUnsupportedFeature)
	default:
		return nil, fmt.Errorf("%w: not a CDF file", model.ErrFormat)
	}
	if compressed != magicUncompressed {
		return nil, fmt.Errorf("%w: whole-file compression", model.ErrUnsupportedFeature)
	}

	p := &parser{raw: raw}
	p.parseCDR(8)
	p.parseGDR()
	g = model.NewGroup(name)
	vars := p.readVariables()
	for _, v := range vars {
		thrower.ThrowIfError(g.AddChild(v))
	}
	p.readAttributes(g, vars)
	return g, nil
}

type parser struct {
	raw      []byte
	encoding int32
	gdrAt    int64

	zVDRhead int64
	adrHead  int64
	nzVars   int32
	numAttr  int32
}

// rec positions a cursor at a record body after checking its type tag.
func (p *parser) rec(offset int64, wantType int32) *cursor {
	if offset < 8 || offset+12 > int64(len(p.raw)) {
		fail(fmt.Sprintf("record offset %d out of range", offset))
	}
	c := &cursor{buf: p.raw, pos: offset}
	size := c.int64()
	rt := c.int32()
	if size < 12 || offset+size > int64(len(p.raw)) {
		fail(fmt.Sprintf("record at %d has bad size %d", offset, size))
	}
	if rt != wantType {
		fail(fmt.Sprintf("record at %d has type %d, expected %d", offset, rt, wantType))
	}
	return c
}

func (p *parser) parseCDR(offset int64) {
	c := p.rec(offset, rtCDR)
	p.gdrAt = c.int64()
	c.skip(8) // version, release
	p.encoding = c.int32()
	flags := c.int32()
	if flags&cdrFlagRowMajor == 0 {
		thrower.Throw(fmt.Errorf("%w: column-major CDF", model.ErrUnsupportedFeature))
	}
	if flags&cdrFlagSingleFile == 0 {
		thrower.Throw(fmt.Errorf("%w: multi-file CDF", model.ErrUnsupportedFeature))
	}
	if p.encoding != encNetwork && p.encoding != encIBMPC {
		thrower.Throw(fmt.Errorf("%w: data encoding %d", model.ErrUnsupportedFeature, p.encoding))
	}
}

func (p *parser) parseGDR() {
	c := p.rec(p.gdrAt, rtGDR)
	c.skip(8) // rVDRhead
	p.zVDRhead = c.int64()
	p.adrHead = c.int64()
	c.skip(8) // eof
	nrVars := c.int32()
	p.numAttr = c.int32()
	c.skip(8) // rMaxRec, rNumDims
	p.nzVars = c.int32()
	if nrVars > 0 {
		thrower.Throw(fmt.Errorf("%w: r-variables", model.ErrUnsupportedFeature))
	}
}

func (p *parser) byteOrder() binary.ByteOrder {
	if p.encoding == encIBMPC {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// zVar is a parsed z-variable descriptor.
type zVar struct {
	name     string
	dataType int32
	numElems int32
	maxRec   int32
	vxrHead  int64
	recVary  bool
	dims     []int
	varys    []bool
}

func (p *parser) readVariables() []*model.Variable {
	vars := make([]*model.Variable, 0, p.nzVars)
	offset := p.zVDRhead
	for offset != 0 {
		if int32(len(vars)) == p.nzVars {
			fail(fmt.Sprintf("z-variable chain exceeds header count %d", p.nzVars))
		}
		c := p.rec(offset, rtZVDR)
		next := c.int64()
		z := p.parseZVDR(c)
		vars = append(vars, p.buildVariable(z))
		offset = next
	}
	if int32(len(vars)) != p.nzVars {
		fail(fmt.Sprintf("found %d z-variables, header says %d", len(vars), p.nzVars))
	}
	return vars
}

// parseZVDR consumes a zVDR body, the VDRnext field already read.
func (p *parser) parseZVDR(c *cursor) *zVar {
	z := &zVar{}
	z.dataType = c.int32()
	z.maxRec = c.int32()
	z.vxrHead = c.int64()
	c.skip(8) // VXRtail
	flags := c.int32()
	sRecords := c.int32()
	c.skip(12) // rfuB, rfuC, rfuF
	z.numElems = c.int32()
	c.skip(4) // Num
	cprOffset := c.int64()
	c.skip(4) // BlockingFactor
	z.name = c.name()
	nDims := int(c.int32())
	if nDims < 0 || nDims > 16 {
		fail(fmt.Sprintf("variable %q has %d dimensions", z.name, nDims))
	}
	z.dims = make([]int, nDims)
	for i := range z.dims {
		z.dims[i] = int(c.int32())
	}
	z.varys = make([]bool, nDims)
	for i := range z.varys {
		z.varys[i] = c.int32() != 0
	}
	z.recVary = flags&vdrFlagRecVary != 0
	if flags&vdrFlagPad != 0 {
		logger.Infof("variable %q declares a pad value, ignored", z.name)
	}
	if flags&vdrFlagCompress != 0 || cprOffset > 0 {
		thrower.Throw(fmt.Errorf("%w: compressed variable %q",
			model.ErrUnsupportedFeature, z.name))
	}
	if sRecords != 0 {
		thrower.Throw(fmt.Errorf("%w: sparse records in variable %q",
			model.ErrUnsupportedFeature, z.name))
	}
	return z
}

func (p *parser) buildVariable(z *zVar) *model.Variable {
	etype, width := elemType(z.dataType, z.numElems)

	shape := make([]int, 0, len(z.dims)+1)
	if z.recVary {
		shape = append(shape, int(z.maxRec)+1)
	}
	recValues := 1
	for i, d := range z.dims {
		if z.varys[i] {
			shape = append(shape, d)
			recValues *= d
		}
	}
	numRecs := 1
	if z.recVary {
		numRecs = int(z.maxRec) + 1
	} else if z.maxRec < 0 {
		// declared but never written
		numRecs = 0
		shape = []int{0}
	}
	total := numRecs * recValues
	if numRecs == 0 {
		total = 0
	}

	raw := p.readRecords(z, numRecs, recValues*int(width))
	data := decodeValues(raw, etype, total, int(z.numElems), p.byteOrder())
	v, err := model.NewVariable(z.name, shape, etype, data)
	thrower.ThrowIfError(err)
	return v
}

// readRecords assembles the raw payload bytes for numRecs records of
// recBytes each by walking the VXR chain.
func (p *parser) readRecords(z *zVar, numRecs, recBytes int) []byte {
	out := make([]byte, numRecs*recBytes)
	offset := z.vxrHead
	for offset != 0 {
		c := p.rec(offset, rtVXR)
		next := c.int64()
		if next != 0 && next <= offset {
			fail(fmt.Sprintf("variable %q: index chain does not advance", z.name))
		}
		nEntries := int(c.int32())
		nUsed := int(c.int32())
		if nUsed < 0 || nUsed > nEntries || nEntries > 1<<16 {
			fail(fmt.Sprintf("variable %q: bad index entry count", z.name))
		}
		first := make([]int, nEntries)
		last := make([]int, nEntries)
		recOff := make([]int64, nEntries)
		for i := range first {
			first[i] = int(c.int32())
		}
		for i := range last {
			last[i] = int(c.int32())
		}
		for i := range recOff {
			recOff[i] = c.int64()
		}
		for i := 0; i < nUsed; i++ {
			p.copyEntry(z, out, first[i], last[i], recOff[i], recBytes, false)
		}
		offset = next
	}
	return out
}

// copyEntry copies records first..last from the record at offset, which
// is either a VVR or, at the top level only, a nested VXR.
func (p *parser) copyEntry(z *zVar, out []byte, first, last int, offset int64, recBytes int, nested bool) {
	c := &cursor{buf: p.raw, pos: offset}
	size := c.int64()
	rt := c.int32()
	switch rt {
	case rtVXR:
		if nested {
			fail(fmt.Sprintf("variable %q: doubly nested index", z.name))
		}
		p.copyNestedVXR(z, out, offset, recBytes)
		return
	case rtCVVR:
		thrower.Throw(fmt.Errorf("%w: compressed records in variable %q",
			model.ErrUnsupportedFeature, z.name))
	case rtVVR:
	default:
		fail(fmt.Sprintf("variable %q: unexpected record type %d", z.name, rt))
	}
	n := last - first + 1
	if first < 0 || n <= 0 || (first+n)*recBytes > len(out) {
		fail(fmt.Sprintf("variable %q: bad record range %d..%d", z.name, first, last))
	}
	want := n * recBytes
	if size < int64(12+want) {
		fail(fmt.Sprintf("variable %q: record data truncated", z.name))
	}
	copy(out[first*recBytes:], c.bytes(want))
}

func (p *parser) copyNestedVXR(z *zVar, out []byte, offset int64, recBytes int) {
	c := p.rec(offset, rtVXR)
	next := c.int64()
	if next != 0 {
		fail(fmt.Sprintf("variable %q: chained nested index", z.name))
	}
	nEntries := int(c.int32())
	nUsed := int(c.int32())
	if nUsed < 0 || nUsed > nEntries || nEntries > 1<<16 {
		fail(fmt.Sprintf("variable %q: bad index entry count", z.name))
	}
	first := make([]int, nEntries)
	last := make([]int, nEntries)
	recOff := make([]int64, nEntries)
	for i := range first {
		first[i] = int(c.int32())
	}
	for i := range last {
		last[i] = int(c.int32())
	}
	for i := range recOff {
		recOff[i] = c.int64()
	}
	for i := 0; i < nUsed; i++ {
		p.copyEntry(z, out, first[i], last[i], recOff[i], recBytes, true)
	}
}

func (p *parser) readAttributes(g *model.Group, vars []*model.Variable) {
	offset := p.adrHead
	count := int32(0)
	for offset != 0 {
		if count == p.numAttr {
			fail(fmt.Sprintf("attribute chain exceeds header count %d", p.numAttr))
		}
		c := p.rec(offset, rtADR)
		next := c.int64()
		grHead := c.int64()
		scope := c.int32()
		c.skip(4) // Num
		nGr := c.int32()
		c.skip(8) // MAXgrEntry, rfuA
		azHead := c.int64()
		nZ := c.int32()
		c.skip(8) // MAXzEntry, rfuE
		name := c.name()

		switch scope {
		case scopeGlobal:
			p.readGlobalEntries(g, name, grHead, int(nGr))
		case scopeVariable:
			p.readVarEntries(vars, name, azHead, int(nZ), rtAzEDR)
			p.readVarEntries(vars, name, grHead, int(nGr), rtAgrEDR)
		default:
			fail(fmt.Sprintf("attribute %q has scope %d", name, scope))
		}
		count++
		offset = next
	}
	if count != p.numAttr {
		fail(fmt.Sprintf("found %d attributes, header says %d", count, p.numAttr))
	}
}

// readGlobalEntries collects the gEntries of a global attribute.  A
// single entry becomes a scalar attribute, several become a slice.
func (p *parser) readGlobalEntries(g *model.Group, name string, head int64, n int) {
	var vals []any
	offset := head
	for offset != 0 {
		if len(vals) == n {
			fail(fmt.Sprintf("attribute %q: entry chain exceeds header count %d", name, n))
		}
		c := p.rec(offset, rtAgrEDR)
		next := c.int64()
		vals = append(vals, p.readEntryValue(c))
		offset = next
	}
	if len(vals) != n {
		fail(fmt.Sprintf("attribute %q: found %d entries, header says %d", name, len(vals), n))
	}
	switch len(vals) {
	case 0:
	case 1:
		g.Attributes().Set(name, vals[0])
	default:
		g.Attributes().Set(name, vals)
	}
}

func (p *parser) readVarEntries(vars []*model.Variable, name string, head int64, n int, rt int32) {
	offset := head
	count := 0
	for offset != 0 {
		if count == n {
			fail(fmt.Sprintf("attribute %q: entry chain exceeds header count %d", name, n))
		}
		c := p.rec(offset, rt)
		next := c.int64()
		c.skip(4) // AttrNum
		// peek the entry number before the value fields
		save := c.pos
		c.skip(4) // DataType
		num := int(c.int32())
		c.pos = save
		val := p.readEntryValue2(c)
		if num < 0 || num >= len(vars) {
			fail(fmt.Sprintf("attribute %q: entry for unknown variable %d", name, num))
		}
		vars[num].Attributes().Set(name, val)
		count++
		offset = next
	}
	if count != n {
		fail(fmt.Sprintf("attribute %q: found %d entries, header says %d", name, count, n))
	}
}

// readEntryValue reads DataType, Num, NumElems and the value of an
// attribute entry, the AEDRnext field already consumed.
func (p *parser) readEntryValue(c *cursor) any {
	c.skip(4) // AttrNum
	return p.readEntryValue2(c)
}

func (p *parser) readEntryValue2(c *cursor) any {
	dataType := c.int32()
	c.skip(4) // Num
	numElems := int(c.int32())
	c.skip(20) // NumStrings, rfuB..rfuE
	etype, width := elemType(dataType, int32(numElems))

	if etype == model.TypeString {
		raw := c.bytes(numElems)
		return string(bytes.TrimRight(raw, "\x00"))
	}
	raw := c.bytes(numElems * int(width))
	data := decodeValues(raw, etype, numElems, 1, p.byteOrder())
	return scalarize(data)
}

// scalarize unwraps one-element attribute slices.
func scalarize(data any) any {
	switch d := data.(type) {
	case []int8:
		if len(d) == 1 {
			return d[0]
		}
	case []uint8:
		if len(d) == 1 {
			return d[0]
		}
	case []int16:
		if len(d) == 1 {
			return d[0]
		}
	case []uint16:
		if len(d) == 1 {
			return d[0]
		}
	case []int32:
		if len(d) == 1 {
			return d[0]
		}
	case []uint32:
		if len(d) == 1 {
			return d[0]
		}
	case []int64:
		if len(d) == 1 {
			return d[0]
		}
	case []float32:
		if len(d) == 1 {
			return d[0]
		}
	case []float64:
		if len(d) == 1 {
			return d[0]
		}
	}
	return data
}

// elemType maps a CDF data type to the model element type and the byte
// width of one value.
func elemType(dataType, numElems int32) (model.ElemType, int32) {
	switch dataType {
	case cdfInt1, cdfByte:
		return model.TypeInt8, 1
	case cdfInt2:
		return model.TypeInt16, 2
	case cdfInt4:
		return model.TypeInt32, 4
	case cdfInt8, cdfTT2000:
		return model.TypeInt64, 8
	case cdfUint1:
		return model.TypeUint8, 1
	case cdfUint2:
		return model.TypeUint16, 2
	case cdfUint4:
		return model.TypeUint32, 4
	case cdfReal4, cdfFloat:
		return model.TypeFloat32, 4
	case cdfReal8, cdfDouble, cdfEpoch:
		return model.TypeFloat64, 8
	case cdfChar, cdfUchar:
		// one value is a string of numElems characters
		return model.TypeString, numElems
	case cdfEpoch16:
		thrower.Throw(fmt.Errorf("%w: EPOCH16 values", model.ErrUnsupportedFeature))
	}
	thrower.Throw(fmt.Errorf("%w: CDF data type %d", model.ErrUnsupportedFeature, dataType))
	panic("unreachable")
}

// decodeValues turns raw payload bytes into a flat typed slice of total
// values.  For strings, width is the character count per value.
func decodeValues(raw []byte, etype model.ElemType, total, width int, order binary.ByteOrder) any {
	switch etype {
	case model.TypeInt8:
		out := make([]int8, total)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out
	case model.TypeUint8:
		out := make([]uint8, total)
		copy(out, raw)
		return out
	case model.TypeInt16:
		out := make([]int16, total)
		for i := range out {
			out[i] = int16(order.Uint16(raw[2*i:]))
		}
		return out
	case model.TypeUint16:
		out := make([]uint16, total)
		for i := range out {
			out[i] = order.Uint16(raw[2*i:])
		}
		return out
	case model.TypeInt32:
		out := make([]int32, total)
		for i := range out {
			out[i] = int32(order.Uint32(raw[4*i:]))
		}
		return out
	case model.TypeUint32:
		out := make([]uint32, total)
		for i := range out {
			out[i] = order.Uint32(raw[4*i:])
		}
		return out
	case model.TypeInt64:
		out := make([]int64, total)
		for i := range out {
			out[i] = int64(order.Uint64(raw[8*i:]))
		}
		return out
	case model.TypeUint64:
		out := make([]uint64, total)
		for i := range out {
			out[i] = order.Uint64(raw[8*i:])
		}
		return out
	case model.TypeFloat32:
		out := make([]float32, total)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
		}
		return out
	case model.TypeFloat64:
		out := make([]float64, total)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
		return out
	case model.TypeString:
		out := make([]string, total)
		for i := range out {
			out[i] = string(bytes.TrimRight(raw[i*width:(i+1)*width], "\x00"))
		}
		return out
	}
	fail(fmt.Sprintf("cannot decode element type %v", etype))
	panic("unreachable")
}

// cursor walks the file buffer, throwing on short reads.
type cursor struct {
	buf []byte
	pos int64
}

func (c *cursor) bytes(n int) []byte {
	if n < 0 || c.pos+int64(n) > int64(len(c.buf)) {
		fail("truncated CDF file")
	}
	b := c.buf[c.pos : c.pos+int64(n)]
	c.pos += int64(n)
	return b
}

func (c *cursor) skip(n int) { c.bytes(n) }

func (c *cursor) int32() int32 {
	return int32(binary.BigEndian.Uint32(c.bytes(4)))
}

func (c *cursor) int64() int64 {
	return int64(binary.BigEndian.Uint64(c.bytes(8)))
}

// name reads a fixed 256-byte NUL-padded name field.
func (c *cursor) name() string {
	raw := c.bytes(256)
	return string(bytes.TrimRight(raw, "\x00"))
}

func fail(msg string) {
	thrower.Throw(fmt.Errorf("%w: %s", model.ErrFormat, msg))
}
