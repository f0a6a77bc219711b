// Package datamodel opens self-describing data files without being told
// what format they are in.  The first bytes of the file pick the
// adapter, the way magic-byte dispatch works in netCDF tooling: HDF5
// and NetCDF classic signatures, NASA CDF magic, the IDL save set
// signature and the gzip header are recognized, and anything else is
// treated as delimited text.
//
// Writing goes the other way around: Store picks the adapter from the
// file extension, since a new file has no bytes to sniff.
package datamodel

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacephys/go-datamodel/datamodel/ascii"
	"github.com/spacephys/go-datamodel/datamodel/hdf5"
	"github.com/spacephys/go-datamodel/datamodel/idlsave"
	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/datamodel/nasacdf"
	"github.com/spacephys/go-datamodel/datamodel/netcdf3"
	"github.com/spacephys/go-datamodel/internal"
)

var logger = internal.NewLogger()

// Format identifies a file format this package can dispatch to.
type Format int

const (
	FormatUnknown Format = iota
	FormatASCII
	FormatNetCDF3
	FormatHDF5
	FormatCDF
	FormatIDLSave
)

func (f Format) String() string {
	switch f {
	case FormatASCII:
		return "ascii"
	case FormatNetCDF3:
		return "netcdf3"
	case FormatHDF5:
		return "hdf5"
	case FormatCDF:
		return "cdf"
	case FormatIDLSave:
		return "idlsave"
	}
	return "unknown"
}

// Detect sniffs a file format from the first bytes of its content.
// Eight bytes are enough for every signature; shorter input falls back
// to delimited text.
func Detect(prefix []byte) Format {
	switch {
	case len(prefix) >= 4 && bytes.Equal(prefix[:4], []byte("\x89HDF")):
		return FormatHDF5
	case len(prefix) >= 4 && bytes.Equal(prefix[:3], []byte("CDF")) &&
		(prefix[3] == 1 || prefix[3] == 2 || prefix[3] == 5):
		return FormatNetCDF3
	case len(prefix) >= 2 && prefix[0] == 0xCD &&
		(prefix[1] == 0xF3 || prefix[1] == 0xF2):
		return FormatCDF
	case len(prefix) >= 3 && prefix[0] == 'S' && prefix[1] == 'R' && prefix[2] == 0:
		return FormatIDLSave
	}
	return FormatASCII
}

// DetectFile sniffs the format of a file on disk.
func DetectFile(fname string) (Format, error) {
	f, err := os.Open(fname)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()
	prefix := make([]byte, 8)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	return Detect(prefix[:n]), nil
}

// Open loads a data file, picking the adapter from its content.
func Open(fname string) (*model.Group, error) {
	format, err := DetectFile(fname)
	if err != nil {
		return nil, err
	}
	logger.Infof("%s: detected format %s", fname, format)
	switch format {
	case FormatHDF5:
		return hdf5.Load(fname)
	case FormatNetCDF3:
		return netcdf3.Load(fname)
	case FormatCDF:
		return nasacdf.Load(fname)
	case FormatIDLSave:
		return idlsave.Load(fname)
	}
	return ascii.Load(fname)
}

// New loads data from a stream, picking the adapter from its content.
// The whole stream is consumed.  Formats whose readers need random file
// access go through a temp file.
func New(r io.Reader, name string) (*model.Group, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch Detect(raw) {
	case FormatCDF:
		return nasacdf.New(raw, name)
	case FormatIDLSave:
		return idlsave.New(raw, name)
	case FormatHDF5, FormatNetCDF3:
		return loadViaTempFile(raw, name)
	}
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		return loadViaTempFile(raw, name+".gz")
	}
	return ascii.New(bytes.NewReader(raw), name, ascii.Options{})
}

func loadViaTempFile(raw []byte, name string) (*model.Group, error) {
	dir, err := os.MkdirTemp("", "datamodel")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	tmp := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return nil, err
	}
	g, err := Open(tmp)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Store writes the group to disk, picking the adapter from the file
// extension.  The write is atomic: either the named file appears
// complete or nothing is left behind.
func Store(g *model.Group, fname string) error {
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".nc":
		return netcdf3.Store(g, fname)
	case ".cdf":
		return nasacdf.Store(g, fname)
	case ".txt", ".dat", ".csv", ".gz":
		return ascii.Store(g, fname)
	}
	return fmt.Errorf("%w: no writer for %q", model.ErrUnsupportedOperation, fname)
}
