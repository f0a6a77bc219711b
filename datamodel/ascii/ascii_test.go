package ascii_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacephys/go-datamodel/datamodel/ascii"
	"github.com/spacephys/go-datamodel/datamodel/model"
)

const sample = `# mission = demo
# cadence = 3600
doy seconds_of_day flux
1 0 10.5
1 3600 11.25
2 0 9
`

func TestLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(fname, []byte(sample), 0o644))

	g, err := ascii.Load(fname)
	require.NoError(t, err)

	mission, err := g.Attributes().Get("mission")
	require.NoError(t, err)
	assert.Equal(t, "demo", mission)
	cadence, err := g.Attributes().Get("cadence")
	require.NoError(t, err)
	assert.Equal(t, 3600.0, cadence)

	flux, err := g.Var("flux")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, flux.Shape())
	assert.Equal(t, model.TypeFloat64, flux.Type())
	assert.Equal(t, []float64{10.5, 11.25, 9}, flux.Data())

	var names []string
	for name := range g.Children() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"doy", "seconds_of_day", "flux"}, names)
}

func TestLoadStringColumn(t *testing.T) {
	g, err := ascii.New(strings.NewReader("id station value\n1 thule 4.5\n2 kiruna 3.25\n"),
		"stations", ascii.Options{})
	require.NoError(t, err)
	station, err := g.Var("station")
	require.NoError(t, err)
	assert.Equal(t, model.TypeString, station.Type())
	assert.Equal(t, []string{"thule", "kiruna"}, station.Data())
}

func TestLoadNoHeader(t *testing.T) {
	g, err := ascii.New(strings.NewReader("1 2\n3 4\n"), "bare", ascii.Options{})
	require.NoError(t, err)
	v, err := g.Var("col1")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, v.Data())
}

func TestLoadRaggedRows(t *testing.T) {
	_, err := ascii.New(strings.NewReader("a b\n1 2\n3\n"), "bad", ascii.Options{})
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestRoundTrip(t *testing.T) {
	g := model.NewGroup("")
	g.Attributes().Set("mission", "demo")
	v, err := model.NewVariable("flux", []int{3}, model.TypeFloat64,
		[]float64{1.5, 2.5, 3.5})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))

	fname := filepath.Join(t.TempDir(), "out.dat")
	require.NoError(t, ascii.Store(g, fname))

	back, err := ascii.Load(fname)
	require.NoError(t, err)
	assert.True(t, g.Equal(back), "round trip should preserve structure:\n%s",
		model.Render(back, true))
	flux, err := back.Var("flux")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, flux.Data())
}

func TestRoundTripGzip(t *testing.T) {
	g := model.NewGroup("")
	v, err := model.NewVariable("t", []int{2}, model.TypeFloat64, []float64{0, 1})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))

	fname := filepath.Join(t.TempDir(), "out.txt.gz")
	require.NoError(t, ascii.Store(g, fname))

	// the stored bytes really are gzip
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2])

	back, err := ascii.Load(fname)
	require.NoError(t, err)
	assert.True(t, g.Equal(back))
}

func TestStoreRejectsNestedGroup(t *testing.T) {
	g := model.NewGroup("")
	require.NoError(t, g.AddChild(model.NewGroup("inner")))
	err := ascii.Store(g, filepath.Join(t.TempDir(), "out.txt"))
	assert.ErrorIs(t, err, model.ErrUnsupportedFeature)
}

func TestStoreRejectsRaggedColumns(t *testing.T) {
	g := model.NewGroup("")
	a, err := model.NewVariable("a", []int{2}, model.TypeFloat64, []float64{1, 2})
	require.NoError(t, err)
	b, err := model.NewVariable("b", []int{3}, model.TypeFloat64, []float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(a))
	require.NoError(t, g.AddChild(b))

	fname := filepath.Join(t.TempDir(), "out.txt")
	err = ascii.Store(g, fname)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)

	// failed stores must not leave a file behind
	_, statErr := os.Stat(fname)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
