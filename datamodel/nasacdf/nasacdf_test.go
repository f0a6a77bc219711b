package nasacdf

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacephys/go-datamodel/datamodel/model"
)

func sampleGroup(t *testing.T) *model.Group {
	t.Helper()
	g := model.NewGroup("sample")
	g.Attributes().Set("Project", "WIND")
	g.Attributes().Set("Version", float64(3.1))
	g.Attributes().Set("Rules", []any{"rule one", "rule two"})

	epoch, err := model.NewVariable("Epoch", []int{4}, model.TypeInt64,
		[]int64{1000, 2000, 3000, 4000})
	require.NoError(t, err)
	epoch.Attributes().Set("UNITS", "ns")
	require.NoError(t, g.AddChild(epoch))

	flux, err := model.NewVariable("flux", []int{2, 3}, model.TypeFloat32,
		[]float32{1.5, 2.5, 3.5, 4.5, 5.5, 6.5})
	require.NoError(t, err)
	flux.Attributes().Set("UNITS", "1/cm^2")
	flux.Attributes().Set("FILLVAL", float32(-1e31))
	require.NoError(t, g.AddChild(flux))

	mode, err := model.NewVariable("mode", nil, model.TypeInt32, []int32{7})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(mode))

	labels, err := model.NewVariable("labels", []int{2}, model.TypeString,
		[]string{"Bx", "Byz"})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(labels))
	return g
}

func TestRoundTrip(t *testing.T) {
	g := sampleGroup(t)
	fname := filepath.Join(t.TempDir(), "sample.cdf")
	require.NoError(t, Store(g, fname))

	raw, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Equal(t, uint32(magicV3), binary.BigEndian.Uint32(raw[0:4]))

	got, err := Load(fname)
	require.NoError(t, err)
	assert.True(t, g.Equal(got))

	project, err := got.Attributes().Get("Project")
	require.NoError(t, err)
	assert.Equal(t, "WIND", project)
	rules, err := got.Attributes().Get("Rules")
	require.NoError(t, err)
	assert.Equal(t, []any{"rule one", "rule two"}, rules)

	flux, err := got.Var("flux")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, flux.Shape())
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5, 5.5, 6.5}, flux.Data())
	fill, err := flux.Attributes().Get("FILLVAL")
	require.NoError(t, err)
	assert.Equal(t, float32(-1e31), fill)

	mode, err := got.Var("mode")
	require.NoError(t, err)
	assert.Empty(t, mode.Shape())
	assert.Equal(t, []int32{7}, mode.Data())

	labels, err := got.Var("labels")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bx", "Byz"}, labels.Data())
}

func TestStoreRejectsNestedGroup(t *testing.T) {
	g := model.NewGroup("root")
	require.NoError(t, g.AddChild(model.NewGroup("inner")))

	fname := filepath.Join(t.TempDir(), "nested.cdf")
	err := Store(g, fname)
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
	_, statErr := os.Stat(fname)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStoreRejectsUint64(t *testing.T) {
	g := model.NewGroup("root")
	v, err := model.NewVariable("ticks", []int{2}, model.TypeUint64, []uint64{1, 2})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))

	err = Store(g, filepath.Join(t.TempDir(), "u64.cdf"))
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
}

func TestStoreRejectsGlobalAndVarAttrClash(t *testing.T) {
	g := model.NewGroup("root")
	g.Attributes().Set("UNITS", "global")
	v, err := model.NewVariable("x", []int{1}, model.TypeInt32, []int32{1})
	require.NoError(t, err)
	v.Attributes().Set("UNITS", "km")
	require.NoError(t, g.AddChild(v))

	err = Store(g, filepath.Join(t.TempDir(), "clash.cdf"))
	assert.ErrorIs(t, err, model.ErrDuplicateName)
}

func TestLoadRejectsV2(t *testing.T) {
	raw := make([]byte, 16)
	binary.BigEndian.PutUint32(raw[0:4], magicV2)
	binary.BigEndian.PutUint32(raw[4:8], magicUncompressed)
	_, err := New(raw, "old.cdf")
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
}

func TestLoadRejectsCompressed(t *testing.T) {
	raw := make([]byte, 16)
	binary.BigEndian.PutUint32(raw[0:4], magicV3)
	binary.BigEndian.PutUint32(raw[4:8], 0xCCCC0001)
	_, err := New(raw, "zip.cdf")
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
}

func TestLoadNotCDF(t *testing.T) {
	_, err := New([]byte("definitely not a cdf file"), "junk.cdf")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestLoadTruncated(t *testing.T) {
	g := sampleGroup(t)
	fname := filepath.Join(t.TempDir(), "trunc.cdf")
	require.NoError(t, Store(g, fname))
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)

	_, err = New(raw[:len(raw)-64], "trunc.cdf")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestLoadRejectsLoopingAttrChain(t *testing.T) {
	g := model.NewGroup("root")
	g.Attributes().Set("Project", "WIND")

	fname := filepath.Join(t.TempDir(), "loop.cdf")
	require.NoError(t, Store(g, fname))
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)

	// point the lone ADR's next field back at itself
	adrAt := 8 + cdrSize + gdrSize
	binary.BigEndian.PutUint64(raw[adrAt+12:], uint64(adrAt))
	_, err = New(raw, "loop.cdf")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestLoadRejectsLoopingIndexChain(t *testing.T) {
	g := model.NewGroup("root")
	v, err := model.NewVariable("x", []int{1}, model.TypeInt32, []int32{1})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))

	fname := filepath.Join(t.TempDir(), "loop.cdf")
	require.NoError(t, Store(g, fname))
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)

	// point the variable's VXR next field back at itself
	vxrAt := 8 + cdrSize + gdrSize + 344 + 8
	binary.BigEndian.PutUint64(raw[vxrAt+12:], uint64(vxrAt))
	_, err = New(raw, "loop.cdf")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestLittleEndianEncoding(t *testing.T) {
	g := model.NewGroup("root")
	v, err := model.NewVariable("x", []int{2}, model.TypeInt16, []int16{0x0102, 0x0304})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))

	fname := filepath.Join(t.TempDir(), "le.cdf")
	require.NoError(t, Store(g, fname))
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)

	// flip the declared encoding to ibmpc and byte-swap the payload
	encAt := 8 + 8 + 4 + 8 + 4 + 4
	binary.BigEndian.PutUint32(raw[encAt:], uint32(encIBMPC))
	dataAt := len(raw) - 4
	raw[dataAt], raw[dataAt+1] = raw[dataAt+1], raw[dataAt]
	raw[dataAt+2], raw[dataAt+3] = raw[dataAt+3], raw[dataAt+2]

	got, err := New(raw, "le.cdf")
	require.NoError(t, err)
	x, err := got.Var("x")
	require.NoError(t, err)
	assert.Equal(t, []int16{0x0102, 0x0304}, x.Data())
}
