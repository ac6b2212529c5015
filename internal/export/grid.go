// grid.go - Rectangular export grid addressed by allocated columns

package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/shopspring/decimal"
)

// ErrNothingToExport is returned when no result succeeded.
var ErrNothingToExport = errors.New("no successful results to export")

const (
	// FileNameHeader is the label of the first column.
	FileNameHeader = "ファイル名"
	// DefaultBaseName prefixes export file names.
	DefaultBaseName = "抽出データ"
)

// Grid is the header plus data rows; every row has len(Header) cells.
type Grid struct {
	Header []string
	Rows   [][]string
}

// Width is the number of columns.
func (g *Grid) Width() int { return len(g.Header) }

// BuildGrid lays out one row per (successful file, extracted row). Column 0
// holds the file name and each enabled field sits at its column index + 1.
// When two fields share a column the later one wins.
func BuildGrid(fields []model.Field, results []model.ExtractionResult) (*Grid, error) {
	enabled := model.EnabledFields(fields)

	type placed struct {
		field model.Field
		index int
	}
	cols := make([]placed, 0, len(enabled))
	maxIndex := -1
	for _, f := range enabled {
		idx, err := column.ColumnToIndex(f.Column)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Label, err)
		}
		cols = append(cols, placed{field: f, index: idx})
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	hasSuccess := false
	for _, r := range results {
		if r.Success {
			hasSuccess = true
			break
		}
	}
	if !hasSuccess {
		return nil, ErrNothingToExport
	}

	width := maxIndex + 2
	grid := &Grid{Header: make([]string, width)}
	grid.Header[0] = FileNameHeader
	for _, c := range cols {
		grid.Header[c.index+1] = c.field.Label
	}

	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, item := range r.ExtractedValues {
			row := make([]string, width)
			row[0] = r.FileName
			for _, c := range cols {
				row[c.index+1] = FormatCell(item[c.field.ID])
			}
			grid.Rows = append(grid.Rows, row)
		}
	}
	return grid, nil
}

// FormatCell renders one resolved value. Missing values are empty, never "null".
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return ""
		}
		return decimal.NewFromFloat32(t).String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return decimal.NewFromFloat(t).String()
	case decimal.Decimal:
		return t.String()
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimRight(buf.String(), "\n")
	}
}

// FileName returns "<base>_YYYY-MM-DD.<ext>".
func FileName(base, ext string, t time.Time) string {
	if base == "" {
		base = DefaultBaseName
	}
	return fmt.Sprintf("%s_%s.%s", base, t.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}
