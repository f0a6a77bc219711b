package nasacdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/batchatco/go-thrower"

	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/internal"
)

const (
	cdrSize = 312
	gdrSize = 84
	adrSize = 324
	vxrSize = 44

	copyrightText = "Common Data Format (CDF)\nhttps://cdf.gsfc.nasa.gov"
)

// Store writes the group as a version 3 CDF file: single-file layout,
// z-variables only, network encoding, no compression.  CDF has no
// nested namespaces, so groups with subgroups fail with
// ErrUnsupportedFeature.  Every variable is written with record
// variance off and its full shape as z-dimensions, which keeps shapes
// exact on reload.
func Store(g *model.Group, fname string) (err error) {
	defer thrower.RecoverError(&err)

	vars := planVariables(g)
	attrs := planAttributes(g, vars)
	assignOffsets(vars, attrs)

	aw, err := internal.NewAtomicWriter(fname)
	if err != nil {
		return err
	}
	defer aw.Abort()
	if _, err := aw.Write(emit(vars, attrs)); err != nil {
		return err
	}
	return aw.Publish()
}

type varPlan struct {
	v        *model.Variable
	num      int32
	dataType int32
	numElems int32
	dims     []int
	payload  []byte

	vdrAt int64
	vxrAt int64
	vvrAt int64
}

type entryPlan struct {
	num      int32
	dataType int32
	numElems int32
	payload  []byte

	aedrAt int64
}

type attrPlan struct {
	name    string
	scope   int32
	entries []*entryPlan

	adrAt int64
}

func planVariables(g *model.Group) []*varPlan {
	var plans []*varPlan
	for name, node := range g.Children() {
		v, ok := node.(*model.Variable)
		if !ok {
			thrower.Throw(fmt.Errorf("%w: CDF cannot hold nested group %q",
				model.ErrUnsupportedFeature, name))
		}
		if !internal.IsValidName(name) || len(name) > 255 {
			thrower.Throw(fmt.Errorf("%w: variable name %q",
				model.ErrUnsupportedFeature, name))
		}
		p := &varPlan{v: v, num: int32(len(plans)), dims: v.Shape()}
		p.dataType, p.numElems, p.payload = encodeVariable(v)
		plans = append(plans, p)
	}
	return plans
}

func planAttributes(g *model.Group, vars []*varPlan) []*attrPlan {
	var plans []*attrPlan
	seen := map[string]*attrPlan{}

	for name, val := range g.Attributes().Items() {
		a := &attrPlan{name: name, scope: scopeGlobal}
		for i, item := range globalItems(val) {
			dt, ne, payload := encodeAttrValue(name, item)
			a.entries = append(a.entries, &entryPlan{
				num: int32(i), dataType: dt, numElems: ne, payload: payload,
			})
		}
		seen[name] = a
		plans = append(plans, a)
	}

	for _, vp := range vars {
		for name, val := range vp.v.Attributes().Items() {
			a := seen[name]
			if a == nil {
				a = &attrPlan{name: name, scope: scopeVariable}
				seen[name] = a
				plans = append(plans, a)
			} else if a.scope != scopeVariable {
				thrower.Throw(fmt.Errorf(
					"%w: attribute %q is both global and per-variable",
					model.ErrDuplicateName, name))
			}
			dt, ne, payload := encodeAttrValue(name, val)
			a.entries = append(a.entries, &entryPlan{
				num: vp.num, dataType: dt, numElems: ne, payload: payload,
			})
		}
	}
	return plans
}

// globalItems splits a global attribute value into its gEntries.
func globalItems(val any) []any {
	if items, ok := val.([]any); ok {
		return items
	}
	return []any{val}
}

func assignOffsets(vars []*varPlan, attrs []*attrPlan) {
	off := int64(8) + cdrSize + gdrSize
	for _, vp := range vars {
		vp.vdrAt = off
		off += 344 + 8*int64(len(vp.dims))
	}
	for _, a := range attrs {
		a.adrAt = off
		off += adrSize
		for _, e := range a.entries {
			e.aedrAt = off
			off += 56 + int64(len(e.payload))
		}
	}
	for _, vp := range vars {
		if len(vp.payload) == 0 {
			continue
		}
		vp.vxrAt = off
		off += vxrSize
		vp.vvrAt = off
		off += 12 + int64(len(vp.payload))
	}
}

func emit(vars []*varPlan, attrs []*attrPlan) []byte {
	var w bytes.Buffer
	be := func(vals ...any) {
		for _, v := range vals {
			binary.Write(&w, binary.BigEndian, v)
		}
	}
	gdrAt := int64(8) + cdrSize
	eof := endOffset(vars, attrs)

	be(uint32(magicV3), uint32(magicUncompressed))

	// CDR
	be(int64(cdrSize), int32(rtCDR), gdrAt,
		int32(3), int32(8), // version, release
		int32(encNetwork),
		int32(cdrFlagRowMajor|cdrFlagSingleFile),
		int32(0), int32(0), // rfuA, rfuB
		int32(0),  // increment
		int32(2),  // identifier
		int32(-1)) // rfuE
	w.Write(fixed(copyrightText, 256))

	// GDR
	zHead, aHead := int64(0), int64(0)
	if len(vars) > 0 {
		zHead = vars[0].vdrAt
	}
	if len(attrs) > 0 {
		aHead = attrs[0].adrAt
	}
	be(int64(gdrSize), int32(rtGDR),
		int64(0), // rVDRhead
		zHead, aHead, eof,
		int32(0), int32(len(attrs)),
		int32(-1), int32(0), // rMaxRec, rNumDims
		int32(len(vars)),
		int64(0),            // UIRhead
		int32(0), int32(0),  // rfuC, leap second table
		int32(-1))           // rfuE

	for i, vp := range vars {
		next := int64(0)
		if i+1 < len(vars) {
			next = vars[i+1].vdrAt
		}
		maxRec := int32(0)
		if len(vp.payload) == 0 {
			maxRec = -1
		}
		be(int64(344+8*len(vp.dims)), int32(rtZVDR), next,
			vp.dataType, maxRec,
			vp.vxrAt, vp.vxrAt, // head and tail
			int32(0), // record variance off, no pad value
			int32(0),                     // sRecords
			int32(0), int32(0), int32(-1), // rfuB, rfuC, rfuF
			vp.numElems, vp.num,
			int64(0),  // no compression record
			int32(0))  // blocking factor
		w.Write(fixed(vp.v.Name(), 256))
		be(int32(len(vp.dims)))
		for _, d := range vp.dims {
			be(int32(d))
		}
		for range vp.dims {
			be(int32(-1)) // dimension variance on
		}
	}

	for i, a := range attrs {
		next := int64(0)
		if i+1 < len(attrs) {
			next = attrs[i+1].adrAt
		}
		grHead, azHead := int64(0), int64(0)
		nGr, nZ := int32(0), int32(0)
		maxGr, maxZ := int32(-1), int32(-1)
		if len(a.entries) > 0 {
			if a.scope == scopeGlobal {
				grHead = a.entries[0].aedrAt
				nGr = int32(len(a.entries))
				maxGr = a.entries[len(a.entries)-1].num
			} else {
				azHead = a.entries[0].aedrAt
				nZ = int32(len(a.entries))
				maxZ = maxEntryNum(a.entries)
			}
		}
		be(int64(adrSize), int32(rtADR), next,
			grHead, a.scope, int32(i),
			nGr, maxGr,
			int32(0), // rfuA
			azHead, nZ, maxZ,
			int32(-1)) // rfuE
		w.Write(fixed(a.name, 256))

		edrType := int32(rtAgrEDR)
		if a.scope == scopeVariable {
			edrType = rtAzEDR
		}
		for j, e := range a.entries {
			eNext := int64(0)
			if j+1 < len(a.entries) {
				eNext = a.entries[j+1].aedrAt
			}
			numStrings := int32(0)
			if e.dataType == cdfChar {
				numStrings = 1
			}
			be(int64(56+len(e.payload)), edrType, eNext,
				int32(i), // attribute number
				e.dataType, e.num, e.numElems, numStrings,
				int32(0), int32(0), int32(0), int32(-1)) // rfuB..rfuE
			w.Write(e.payload)
		}
	}

	for _, vp := range vars {
		if len(vp.payload) == 0 {
			continue
		}
		be(int64(vxrSize), int32(rtVXR),
			int64(0), // VXRnext
			int32(1), int32(1),
			int32(0), int32(0), // record 0 only
			vp.vvrAt)
		be(int64(12+len(vp.payload)), int32(rtVVR))
		w.Write(vp.payload)
	}
	return w.Bytes()
}

func endOffset(vars []*varPlan, attrs []*attrPlan) int64 {
	off := int64(8) + cdrSize + gdrSize
	for _, vp := range vars {
		off += 344 + 8*int64(len(vp.dims))
		if len(vp.payload) > 0 {
			off += vxrSize + 12 + int64(len(vp.payload))
		}
	}
	for _, a := range attrs {
		off += adrSize
		for _, e := range a.entries {
			off += 56 + int64(len(e.payload))
		}
	}
	return off
}

func maxEntryNum(entries []*entryPlan) int32 {
	max := int32(-1)
	for _, e := range entries {
		if e.num > max {
			max = e.num
		}
	}
	return max
}

// fixed renders s into an n-byte NUL-padded field.
func fixed(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// encodeVariable returns the CDF data type, the per-value element count
// (the character width for strings, 1 otherwise) and the big-endian
// payload for one full record.
func encodeVariable(v *model.Variable) (int32, int32, []byte) {
	dt, ok := cdfType(v.Type())
	if !ok {
		thrower.Throw(fmt.Errorf("%w: variable %q has no CDF representation for %s",
			model.ErrUnsupportedFeature, v.Name(), v.Type()))
	}
	if v.Type() == model.TypeString {
		ss := v.Data().([]string)
		width := 1
		for _, s := range ss {
			if len(s) > width {
				width = len(s)
			}
		}
		var buf bytes.Buffer
		for _, s := range ss {
			buf.Write(fixed(s, width))
		}
		return dt, int32(width), buf.Bytes()
	}
	return dt, 1, encodeNumeric(v.Data())
}

func cdfType(etype model.ElemType) (int32, bool) {
	switch etype {
	case model.TypeInt8:
		return cdfInt1, true
	case model.TypeInt16:
		return cdfInt2, true
	case model.TypeInt32:
		return cdfInt4, true
	case model.TypeInt64:
		return cdfInt8, true
	case model.TypeUint8:
		return cdfUint1, true
	case model.TypeUint16:
		return cdfUint2, true
	case model.TypeUint32:
		return cdfUint4, true
	case model.TypeFloat32:
		return cdfReal4, true
	case model.TypeFloat64:
		return cdfReal8, true
	case model.TypeString:
		return cdfChar, true
	}
	// CDF has no unsigned 8-byte integer
	return 0, false
}

func encodeNumeric(data any) []byte {
	var buf bytes.Buffer
	switch d := data.(type) {
	case []int8:
		for _, x := range d {
			buf.WriteByte(byte(x))
		}
	case []uint8:
		buf.Write(d)
	case []int16:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, x)
		}
	case []uint16:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, x)
		}
	case []int32:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, x)
		}
	case []uint32:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, x)
		}
	case []int64:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, x)
		}
	case []float32:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, math.Float32bits(x))
		}
	case []float64:
		for _, x := range d {
			binary.Write(&buf, binary.BigEndian, math.Float64bits(x))
		}
	default:
		fail(fmt.Sprintf("cannot encode %T", data))
	}
	return buf.Bytes()
}

// encodeAttrValue maps a Go attribute value onto a CDF entry.  Scalars
// and flat slices of the model's numeric types are supported, plus
// strings.  Plain ints are narrowed to int32 the way CDF tools do.
func encodeAttrValue(name string, val any) (int32, int32, []byte) {
	switch x := val.(type) {
	case string:
		n := len(x)
		if n == 0 {
			n = 1
		}
		return cdfChar, int32(n), fixed(x, n)
	case int:
		return cdfInt4, 1, encodeNumeric([]int32{int32(x)})
	case int8:
		return cdfInt1, 1, encodeNumeric([]int8{x})
	case uint8:
		return cdfUint1, 1, encodeNumeric([]uint8{x})
	case int16:
		return cdfInt2, 1, encodeNumeric([]int16{x})
	case uint16:
		return cdfUint2, 1, encodeNumeric([]uint16{x})
	case int32:
		return cdfInt4, 1, encodeNumeric([]int32{x})
	case uint32:
		return cdfUint4, 1, encodeNumeric([]uint32{x})
	case int64:
		return cdfInt8, 1, encodeNumeric([]int64{x})
	case float32:
		return cdfReal4, 1, encodeNumeric([]float32{x})
	case float64:
		return cdfReal8, 1, encodeNumeric([]float64{x})
	}

	if etype, n := model.TypeOf(val); etype != model.TypeNone && etype != model.TypeString {
		if dt, ok := cdfType(etype); ok {
			return dt, int32(n), encodeNumeric(val)
		}
	}
	thrower.Throw(fmt.Errorf("%w: attribute %q value of type %T",
		model.ErrUnsupportedFeature, name, val))
	panic("unreachable")
}
