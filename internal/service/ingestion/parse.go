package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// candidateDelimiters are considered in preference order.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// sniffLines bounds how many leading lines feed delimiter inference.
const sniffLines = 10

// sniffDelimiter guesses the field separator from the leading lines. A
// delimiter that splits every sampled line into the same number (>1) of
// fields wins; otherwise the one splitting the header into the most fields;
// comma by default.
func sniffDelimiter(text string) rune {
	lines := leadingLines(text, sniffLines)
	if len(lines) == 0 {
		return ','
	}

	best, bestFields := rune(0), 1
	for _, d := range candidateDelimiters {
		n := countFields(lines[0], d)
		if n <= 1 {
			continue
		}
		consistent := true
		for _, l := range lines[1:] {
			if countFields(l, d) != n {
				consistent = false
				break
			}
		}
		if consistent && n > bestFields {
			best, bestFields = d, n
		}
	}
	if best != 0 {
		return best
	}

	for _, d := range candidateDelimiters {
		if n := countFields(lines[0], d); n > bestFields {
			best, bestFields = d, n
		}
	}
	if best != 0 {
		return best
	}
	return ','
}

func leadingLines(text string, limit int) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}

// countFields counts d-separated fields in line, ignoring separators inside
// double quotes.
func countFields(line string, d rune) int {
	n, quoted := 1, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// parsedTable is the raw header and records of a delimited file.
type parsedTable struct {
	headers   []string
	records   [][]string
	delimiter rune
	malformed int
}

// parseDelimited reads text as a delimited table. Records with more fields
// than the header are counted as malformed and skipped; short records are
// padded with empty cells.
func parseDelimited(text string) (*parsedTable, error) {
	delim := sniffDelimiter(text)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("file contains no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	pt := &parsedTable{headers: headers, delimiter: delim}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(rec) > len(headers) {
			pt.malformed++
			continue
		}
		for len(rec) < len(headers) {
			rec = append(rec, "")
		}
		pt.records = append(pt.records, rec)
	}
	return pt, nil
}

// delimiterName renders a delimiter for metadata.
func delimiterName(d rune) string {
	if d == '\t' {
		return `\t`
	}
	return string(d)
}
