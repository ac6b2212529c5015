// csv.go - Delimited-text encoding of the export grid

package export

import (
	"io"
	"strings"
)

const bom = "\uFEFF"

// CSVOptions selects the row separator.
type CSVOptions struct {
	CRLF bool
}

// LineEnding parses the CSV_LINE_ENDING setting.
func LineEnding(setting string) CSVOptions {
	return CSVOptions{CRLF: strings.EqualFold(setting, "crlf")}
}

// WriteCSV writes a BOM-prefixed comma-separated encoding. Cells containing a
// comma, quote or line break are quoted with embedded quotes doubled. Rows are
// joined by the separator with no trailing line break.
func WriteCSV(w io.Writer, g *Grid, opts CSVOptions) error {
	sep := "\n"
	if opts.CRLF {
		sep = "\r\n"
	}

	var b strings.Builder
	b.WriteString(bom)
	writeRow(&b, g.Header)
	for _, row := range g.Rows {
		b.WriteString(sep)
		writeRow(&b, row)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quoteCell(cell))
	}
}

func quoteCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"\n\r") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}
