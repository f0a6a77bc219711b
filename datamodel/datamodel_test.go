package datamodel

import (
	"bytes"
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
	g.Attributes().Set("title", "dispatch sample")
	v, err := model.NewVariable("seconds_of_day", []int{3}, model.TypeFloat64,
		[]float64{0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, g.AddChild(v))
	return g
}

func TestDetect(t *testing.T) {
	cases := []struct {
		prefix []byte
		want   Format
	}{
		{[]byte("\x89HDF\r\n\x1a\n"), FormatHDF5},
		{[]byte("CDF\x01rest"), FormatNetCDF3},
		{[]byte("CDF\x02rest"), FormatNetCDF3},
		{[]byte("CDF\x05rest"), FormatNetCDF3},
		{[]byte{0xCD, 0xF3, 0x00, 0x01}, FormatCDF},
		{[]byte{0xCD, 0xF2, 0x60, 0x02}, FormatCDF},
		{[]byte("SR\x00\x04"), FormatIDLSave},
		{[]byte("time, flux\n1, 2\n"), FormatASCII},
		{[]byte("CDFX"), FormatASCII},
		{nil, FormatASCII},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Detect(c.prefix), "prefix %q", c.prefix)
	}
}

func TestOpenDispatchesByContent(t *testing.T) {
	g := sampleGroup(t)
	dir := t.TempDir()

	for _, ext := range []string{".nc", ".cdf", ".txt", ".gz"} {
		fname := filepath.Join(dir, "sample"+ext)
		require.NoError(t, Store(g, fname), ext)

		// rename away the extension so only content can pick the reader
		blind := filepath.Join(dir, "blind"+ext+".bin")
		if ext == ".gz" {
			// the text reader needs the extension to know it is gzipped
			blind = filepath.Join(dir, "blind.gz")
		}
		require.NoError(t, os.Rename(fname, blind))

		got, err := Open(blind)
		require.NoError(t, err, ext)
		assert.True(t, g.Equal(got), ext)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.nc"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewFromStream(t *testing.T) {
	g := sampleGroup(t)
	fname := filepath.Join(t.TempDir(), "sample.cdf")
	require.NoError(t, Store(g, fname))
	raw, err := os.ReadFile(fname)
	require.NoError(t, err)

	got, err := New(bytes.NewReader(raw), "sample.cdf")
	require.NoError(t, err)
	assert.True(t, g.Equal(got))
}

func TestStoreUnknownExtension(t *testing.T) {
	err := Store(sampleGroup(t), filepath.Join(t.TempDir(), "sample.xyz"))
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "netcdf3", FormatNetCDF3.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}
