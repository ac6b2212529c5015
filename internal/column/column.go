// column.go - Spreadsheet column labels (A, B, ..., Z, AA, ...)

package column

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidColumnLabel is returned for empty or non A-Z labels.
var ErrInvalidColumnLabel = errors.New("invalid column label")

// MaxIndex is the last usable field column (XFC). Exports put the file name
// in front of the fields, so a field at XFD would not fit in a worksheet.
const MaxIndex = excelize.MaxColumns - 2

// SingleLetterSlots is the number of columns NextAvailable hands out.
const SingleLetterSlots = 26

// IndexToColumn converts a zero-based index to its column label
// using bijective base-26: 0 -> A, 25 -> Z, 26 -> AA, 701 -> ZZ.
func IndexToColumn(index int) string {
	if index < 0 {
		panic(fmt.Sprintf("column: negative index %d", index))
	}

	var buf []byte
	for index >= 0 {
		buf = append(buf, byte('A'+index%26))
		index = index/26 - 1
	}

	// digits were produced least significant first
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// ColumnToIndex is the inverse of IndexToColumn. Lower-case input is accepted;
// labels past MaxIndex are rejected.
func ColumnToIndex(label string) (int, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidColumnLabel)
	}

	index := 0
	for _, c := range label {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidColumnLabel, label)
		}
		index = index*26 + int(c-'A'+1)
		if index-1 > MaxIndex {
			return 0, fmt.Errorf("%w: %q is past %s", ErrInvalidColumnLabel, label, IndexToColumn(MaxIndex))
		}
	}
	return index - 1, nil
}

// NextAvailable returns the first single-letter column not present in used.
// When all 26 are taken it returns "A"; the collision is accepted.
func NextAvailable(used []string) string {
	taken := make(map[string]bool, len(used))
	for _, label := range used {
		taken[strings.ToUpper(label)] = true
	}

	for i := 0; i < SingleLetterSlots; i++ {
		label := IndexToColumn(i)
		if !taken[label] {
			return label
		}
	}
	return "A"
}
