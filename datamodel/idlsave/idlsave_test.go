package idlsave

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacephys/go-datamodel/datamodel/model"
)

// savBuilder assembles synthetic save sets record by record.
type savBuilder struct {
	buf      bytes.Buffer
	compress bool
}

func newSav(compress bool) *savBuilder {
	b := &savBuilder{compress: compress}
	b.buf.WriteString(signature)
	recfmt := uint16(recfmtNormal)
	if compress {
		recfmt = recfmtZlib
	}
	binary.Write(&b.buf, binary.BigEndian, recfmt)
	return b
}

func (b *savBuilder) record(rectype int32, payload []byte) {
	if b.compress && rectype != recEndMarker {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		zw.Write(payload)
		zw.Close()
		payload = zbuf.Bytes()
	}
	start := b.buf.Len()
	binary.Write(&b.buf, binary.BigEndian, rectype)
	binary.Write(&b.buf, binary.BigEndian, uint32(start+recHeaderSize+len(payload)))
	binary.Write(&b.buf, binary.BigEndian, uint32(0))
	b.buf.Write(make([]byte, 4))
	b.buf.Write(payload)
}

func (b *savBuilder) done() []byte {
	b.record(recEndMarker, nil)
	return b.buf.Bytes()
}

// payload helpers, all big-endian like the format itself

func putInt32(w *bytes.Buffer, vals ...int32) {
	for _, v := range vals {
		binary.Write(w, binary.BigEndian, v)
	}
}

func putStr(w *bytes.Buffer, s string) {
	putInt32(w, int32(len(s)))
	if len(s) == 0 {
		return
	}
	w.WriteString(s)
	for w.Len()%4 != 0 {
		w.WriteByte(0)
	}
}

func scalarVar(name string, typecode int32, data func(*bytes.Buffer)) []byte {
	var w bytes.Buffer
	putStr(&w, name)
	putInt32(&w, typecode, 0) // typecode, varflags
	putInt32(&w, 7)           // data marker
	data(&w)
	return w.Bytes()
}

func arrayVar(name string, typecode int32, idlDims []int32, data func(*bytes.Buffer)) []byte {
	var w bytes.Buffer
	putStr(&w, name)
	putInt32(&w, typecode, flagArray)
	nelem := int32(1)
	for _, d := range idlDims {
		nelem *= d
	}
	putInt32(&w, 8, 0, 0, nelem, int32(len(idlDims)), 0, 0, 8)
	for i := 0; i < 8; i++ {
		if i < len(idlDims) {
			putInt32(&w, idlDims[i])
		} else {
			putInt32(&w, 1)
		}
	}
	putInt32(&w, 7)
	data(&w)
	return w.Bytes()
}

func buildSample(compress bool) []byte {
	b := newSav(compress)

	var ts bytes.Buffer
	ts.Write(make([]byte, 1024))
	putStr(&ts, "Thu Aug 28 12:00:00 2026")
	putStr(&ts, "operator")
	putStr(&ts, "wind-swe")
	b.record(recTimestamp, ts.Bytes())

	var ver bytes.Buffer
	putInt32(&ver, 8)
	putStr(&ver, "x86_64")
	putStr(&ver, "linux")
	putStr(&ver, "8.8.1")
	b.record(recVersion, ver.Bytes())

	b.record(recVariable, scalarVar("PI", idlFloat64, func(w *bytes.Buffer) {
		binary.Write(w, binary.BigEndian, math.Pi)
	}))
	b.record(recVariable, arrayVar("COUNTS", idlInt16, []int32{3}, func(w *bytes.Buffer) {
		putInt32(w, 10, -20, 30) // int16s ride in 4-byte words
	}))
	b.record(recVariable, arrayVar("GRID", idlFloat32, []int32{3, 2}, func(w *bytes.Buffer) {
		for _, f := range []float32{1, 2, 3, 4, 5, 6} {
			binary.Write(w, binary.BigEndian, f)
		}
	}))
	b.record(recVariable, scalarVar("LABEL", idlString, func(w *bytes.Buffer) {
		putInt32(w, 5) // string data repeats the length
		putStr(w, "proto")
	}))
	return b.done()
}

func checkSample(t *testing.T, g *model.Group) {
	t.Helper()

	date, err := g.Attributes().Get("date")
	require.NoError(t, err)
	assert.Equal(t, "Thu Aug 28 12:00:00 2026", date)
	host, err := g.Attributes().Get("host")
	require.NoError(t, err)
	assert.Equal(t, "wind-swe", host)
	release, err := g.Attributes().Get("release")
	require.NoError(t, err)
	assert.Equal(t, "8.8.1", release)

	pi, err := g.Var("PI")
	require.NoError(t, err)
	assert.Empty(t, pi.Shape())
	assert.Equal(t, []float64{math.Pi}, pi.Data())

	counts, err := g.Var("COUNTS")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, counts.Shape())
	assert.Equal(t, []int16{10, -20, 30}, counts.Data())

	grid, err := g.Var("GRID")
	require.NoError(t, err)
	// IDL dims (3, 2) reverse to row-major (2, 3)
	assert.Equal(t, []int{2, 3}, grid.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, grid.Data())

	label, err := g.Var("LABEL")
	require.NoError(t, err)
	assert.Equal(t, []string{"proto"}, label.Data())
}

func TestLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "sample.sav")
	require.NoError(t, os.WriteFile(fname, buildSample(false), 0o644))

	g, err := Load(fname)
	require.NoError(t, err)
	checkSample(t, g)
}

func TestLoadCompressed(t *testing.T) {
	g, err := New(buildSample(true), "sample.sav")
	require.NoError(t, err)
	checkSample(t, g)

	plain, err := New(buildSample(false), "sample.sav")
	require.NoError(t, err)
	assert.True(t, g.Equal(plain))
}

func TestSkipsUnknownRecords(t *testing.T) {
	b := newSav(false)
	b.record(17, []byte{0xde, 0xad, 0xbe, 0xef})
	b.record(recVariable, scalarVar("X", idlInt32, func(w *bytes.Buffer) {
		putInt32(w, 42)
	}))
	g, err := New(b.done(), "skip.sav")
	require.NoError(t, err)

	x, err := g.Var("X")
	require.NoError(t, err)
	assert.Equal(t, []int32{42}, x.Data())
}

func TestBadSignature(t *testing.T) {
	_, err := New([]byte("PK\x03\x04junk"), "bad.sav")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestComplexUnsupported(t *testing.T) {
	b := newSav(false)
	b.record(recVariable, scalarVar("Z", idlComplex, func(w *bytes.Buffer) {
		putInt32(w, 0, 0)
	}))
	_, err := New(b.done(), "cplx.sav")
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
}

func TestTruncated(t *testing.T) {
	raw := buildSample(false)
	_, err := New(raw[:len(raw)-40], "trunc.sav")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestStoreUnsupported(t *testing.T) {
	err := Store(model.NewGroup("root"), filepath.Join(t.TempDir(), "out.sav"))
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)
}
