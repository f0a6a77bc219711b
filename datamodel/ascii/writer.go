package ascii

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/spacephys/go-datamodel/datamodel/model"
	"github.com/spacephys/go-datamodel/internal"
)

// Store writes a flat group as a delimited text table with default options.
// The target either receives the complete table or is left untouched.
func Store(g *model.Group, fname string) error {
	return StoreWith(g, fname, Options{})
}

// StoreWith writes a flat group as a delimited text table.  Every child must
// be a 1-D variable and all columns must share one length; nested groups
// cannot be represented in a table.
func StoreWith(g *model.Group, fname string, opt Options) error {
	cols, err := tableColumns(g)
	if err != nil {
		return err
	}

	aw, err := internal.NewAtomicWriter(fname)
	if err != nil {
		return err
	}
	defer aw.Abort()

	var w io.Writer = aw
	var zw *gzip.Writer
	if strings.HasSuffix(fname, ".gz") {
		zw = gzip.NewWriter(aw)
		w = zw
	}
	bw := bufio.NewWriter(w)
	if err := writeTable(bw, g, cols, opt); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return aw.Publish()
}

func tableColumns(g *model.Group) ([]*model.Variable, error) {
	var cols []*model.Variable
	nrows := -1
	for name, node := range g.Children() {
		v, ok := node.(*model.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: nested group %q cannot be written to a table",
				model.ErrUnsupportedFeature, name)
		}
		if len(v.Shape()) != 1 {
			return nil, fmt.Errorf("%w: %q has shape %s, tables need 1-D columns",
				model.ErrShapeMismatch, name, model.FormatShape(v.Shape()))
		}
		if nrows < 0 {
			nrows = v.Len()
		} else if v.Len() != nrows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d",
				model.ErrShapeMismatch, name, v.Len(), nrows)
		}
		cols = append(cols, v)
	}
	return cols, nil
}

func writeTable(w *bufio.Writer, g *model.Group, cols []*model.Variable, opt Options) error {
	comment := opt.comment()
	delim := opt.Delimiter
	if delim == "" {
		delim = " "
	}
	for key, val := range g.Attributes().Items() {
		if _, err := fmt.Fprintf(w, "%s %s = %s\n", comment, key, formatAttr(val)); err != nil {
			return err
		}
	}
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, len(cols))
	for i, v := range cols {
		names[i] = v.Name()
	}
	if _, err := fmt.Fprintln(w, strings.Join(names, delim)); err != nil {
		return err
	}
	nrows := cols[0].Len()
	fields := make([]string, len(cols))
	for row := 0; row < nrows; row++ {
		for i, v := range cols {
			fields[i] = formatCell(v, row)
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, delim)); err != nil {
			return err
		}
	}
	return nil
}

func formatAttr(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return fmt.Sprint(val)
}

func formatCell(v *model.Variable, row int) string {
	switch data := v.Data().(type) {
	case []float64:
		return strconv.FormatFloat(data[row], 'g', -1, 64)
	case []float32:
		return strconv.FormatFloat(float64(data[row]), 'g', -1, 32)
	case []string:
		return data[row]
	case []int8:
		return strconv.FormatInt(int64(data[row]), 10)
	case []int16:
		return strconv.FormatInt(int64(data[row]), 10)
	case []int32:
		return strconv.FormatInt(int64(data[row]), 10)
	case []int64:
		return strconv.FormatInt(data[row], 10)
	case []uint8:
		return strconv.FormatUint(uint64(data[row]), 10)
	case []uint16:
		return strconv.FormatUint(uint64(data[row]), 10)
	case []uint32:
		return strconv.FormatUint(uint64(data[row]), 10)
	case []uint64:
		return strconv.FormatUint(data[row], 10)
	}
	return ""
}
