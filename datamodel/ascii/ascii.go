// Package ascii reads and writes column-oriented delimited text tables.
//
// Header lines introduced by the comment prefix carry file-level metadata as
// "key = value" pairs and become the root group's attributes.  An optional
// column-name row labels the columns; every column becomes one 1-D variable,
// numeric columns as float64 and anything else as strings.  Files ending in
// .gz are compressed and decompressed transparently.
package ascii

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/spacephys/go-datamodel/datamodel/model"
)

// Options configures parsing.  The zero value means: "#" comments, fields
// separated by runs of whitespace, column names taken from the first data
// row when it is not numeric.
type Options struct {
	// Comment is the prefix of metadata/comment lines.  Default "#".
	Comment string
	// Delimiter separates fields.  Empty means any run of whitespace.
	Delimiter string
	// Columns overrides column names.  When set, no header row is expected.
	Columns []string
	// NoHeader disables column-name detection; columns are named col0,
	// col1, ... unless Columns is set.
	NoHeader bool
}

func (o *Options) comment() string {
	if o.Comment == "" {
		return "#"
	}
	return o.Comment
}

func (o *Options) split(line string) []string {
	if o.Delimiter == "" {
		return strings.Fields(line)
	}
	return strings.Split(line, o.Delimiter)
}

// Load reads the named file with default options.
func Load(fname string) (*model.Group, error) {
	return LoadWith(fname, Options{})
}

// LoadWith reads the named file.  The returned root group is named after
// the file.
func LoadWith(fname string, opt Options) (*model.Group, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var r io.Reader = file
	if strings.HasSuffix(fname, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrFormat, err)
		}
		defer zr.Close()
		r = zr
	}
	return New(r, filepath.Base(fname), opt)
}

// New parses a table from r into a flat group named name.
func New(r io.Reader, name string, opt Options) (*model.Group, error) {
	root := model.NewGroup(name)
	comment := opt.comment()

	var rows [][]string
	names := opt.Columns
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, comment) {
			parseHeaderLine(root, strings.TrimPrefix(line, comment))
			continue
		}
		fields := opt.split(line)
		if names == nil && len(rows) == 0 && !opt.NoHeader && !numericRow(fields) {
			names = fields
			continue
		}
		if len(rows) > 0 && len(fields) != len(rows[0]) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d",
				model.ErrFormat, len(rows)+1, len(fields), len(rows[0]))
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return root, nil
	}

	ncols := len(rows[0])
	if names == nil {
		names = make([]string, ncols)
		for i := range names {
			names[i] = fmt.Sprintf("col%d", i)
		}
	}
	if len(names) != ncols {
		return nil, fmt.Errorf("%w: %d column names for %d columns",
			model.ErrFormat, len(names), ncols)
	}

	for col := 0; col < ncols; col++ {
		v, err := buildColumn(names[col], rows, col)
		if err != nil {
			return nil, err
		}
		if err := root.AddChild(v); err != nil {
			return nil, fmt.Errorf("%w: column %q", err, names[col])
		}
	}
	return root, nil
}

// parseHeaderLine splits "key = value" or "key: value" comment lines into
// root attributes.  Unstructured comment lines are ignored.
func parseHeaderLine(root *model.Group, line string) {
	line = strings.TrimSpace(line)
	var key, val string
	if i := strings.Index(line, "="); i >= 0 {
		key, val = line[:i], line[i+1:]
	} else if i := strings.Index(line, ":"); i >= 0 {
		key, val = line[:i], line[i+1:]
	} else {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if key == "" {
		return
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		root.Attributes().Set(key, f)
		return
	}
	root.Attributes().Set(key, val)
}

func numericRow(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return false
		}
	}
	return true
}

func buildColumn(name string, rows [][]string, col int) (*model.Variable, error) {
	vals := make([]float64, len(rows))
	numeric := true
	for i, row := range rows {
		f, err := strconv.ParseFloat(row[col], 64)
		if err != nil {
			numeric = false
			break
		}
		vals[i] = f
	}
	if numeric {
		return model.NewVariable(name, []int{len(rows)}, model.TypeFloat64, vals)
	}
	strs := make([]string, len(rows))
	for i, row := range rows {
		strs[i] = row[col]
	}
	return model.NewVariable(name, []int{len(rows)}, model.TypeString, strs)
}
