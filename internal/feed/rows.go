package feed

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	appLog "hallcal/internal/log"
)

// Format selects the payload adapter.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	// ErrEmptyPayload is returned when the feed body has no content at all.
	ErrEmptyPayload = errors.New("feed: empty payload")
	// ErrMalformedTable is returned when a JSON payload has no row table.
	ErrMalformedTable = errors.New("feed: JSON payload has no rows table")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFormat maps a config string onto a Format.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatAuto, "":
		return FormatAuto, true
	case FormatCSV:
		return FormatCSV, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return FormatAuto, false
	}
}

// ReadRows converts a raw payload into rows of trimmed cell strings. The
// header row is kept; the row pipeline skips it.
func ReadRows(raw []byte, format Format) ([][]string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyPayload
	}

	if format == FormatAuto || format == "" {
		format = sniffFormat(raw)
	}

	switch format {
	case FormatJSON:
		return TableRows(raw)
	case FormatCSV:
		return CSVRows(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("feed: unknown format %q", format)
	}
}

func sniffFormat(raw []byte) Format {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	if _, ok := unwrapSetResponse(trimmed); ok {
		return FormatJSON
	}
	return FormatCSV
}

// CSVRows reads RFC 4180 text. Quoted cells may contain commas, newlines and
// doubled quotes. Records the reader rejects are skipped one by one.
//
// A record that spans several physical lines but comes out narrower than the
// header is an unterminated quote swallowing the rows below it; its lines are
// read again one at a time so only the broken row is lost.
func CSVRows(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cr := newCSVReader(bytes.NewReader(data))
	rows := make([][]string, 0)
	width := 0
	var offset int64
	for {
		rec, err := cr.Read()
		start := offset
		offset = cr.InputOffset()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				appLog.Debug("feed csv record skipped", "line", pe.Line, "reason", pe.Err)
				continue
			}
			return nil, err
		}

		if len(rows) == 0 {
			width = len(rec)
		} else if len(rec) < width {
			if lines := physicalLines(data[start:offset]); len(lines) > 1 {
				line, _ := cr.FieldPos(0)
				appLog.Debug("feed csv record re-split", "line", line, "lines", len(lines), "cells", len(rec))
				for _, l := range lines {
					if lr, ok := readLine(l); ok {
						rows = append(rows, lr)
					}
				}
				continue
			}
		}
		rows = append(rows, trimCells(rec))
	}
	return rows, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// physicalLines splits a raw record into its non-blank lines.
func physicalLines(raw []byte) [][]byte {
	var out [][]byte
	for _, l := range bytes.Split(raw, []byte("\n")) {
		l = bytes.TrimRight(l, "\r")
		if len(bytes.TrimSpace(l)) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// readLine parses a single physical line as one record.
func readLine(line []byte) ([]string, bool) {
	rec, err := newCSVReader(bytes.NewReader(line)).Read()
	if err != nil {
		return nil, false
	}
	return trimCells(rec), true
}

func trimCells(rec []string) []string {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	return rec
}

// tablePayload accepts both the plain {rows:[{cells:[...]}]} shape and the
// Google Visualization {table:{rows:[{c:[{v,f}]}]}} shape.
type tablePayload struct {
	Rows  []tableRow `json:"rows"`
	Table *struct {
		Rows []tableRow `json:"rows"`
	} `json:"table"`
}

type tableRow struct {
	Cells []*tableCell `json:"cells"`
	C     []*tableCell `json:"c"`
}

type tableCell struct {
	Value          json.RawMessage `json:"value"`
	V              json.RawMessage `json:"v"`
	FormattedValue string          `json:"formattedValue"`
	F              string          `json:"f"`
}

// TableRows converts a tabular JSON payload into rows of strings. A cell is
// its formatted value when present, else its raw value as text.
func TableRows(raw []byte) ([][]string, error) {
	if inner, ok := unwrapSetResponse(bytes.TrimSpace(raw)); ok {
		raw = inner
	}

	var p tablePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("feed: decode table: %w", err)
	}

	src := p.Rows
	if src == nil && p.Table != nil {
		src = p.Table.Rows
	}
	if src == nil {
		return nil, ErrMalformedTable
	}

	rows := make([][]string, 0, len(src))
	for _, tr := range src {
		cells := tr.Cells
		if cells == nil {
			cells = tr.C
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = strings.TrimSpace(c.text())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *tableCell) text() string {
	if c == nil {
		return ""
	}
	if f := firstNonEmpty(c.FormattedValue, c.F); f != "" {
		return f
	}
	v := c.Value
	if len(v) == 0 {
		v = c.V
	}
	return rawText(v)
}

func rawText(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return string(v)
	}
	switch x := decoded.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return string(v)
	}
}

// unwrapSetResponse strips a google.visualization.Query.setResponse(...)
// JSONP wrapper. The call must open the payload, after optional whitespace
// and a leading /*...*/ comment.
func unwrapSetResponse(raw []byte) ([]byte, bool) {
	head := bytes.TrimSpace(raw)
	if bytes.HasPrefix(head, []byte("/*")) {
		end := bytes.Index(head, []byte("*/"))
		if end < 0 {
			return nil, false
		}
		head = bytes.TrimSpace(head[end+2:])
	}

	open := bytes.IndexByte(head, '(')
	if open < 0 || !isCallee(head[:open]) || !bytes.HasSuffix(head[:open], []byte("setResponse")) {
		return nil, false
	}
	start := bytes.IndexByte(head[open:], '{')
	end := bytes.LastIndexByte(head, '}')
	if start < 0 || end < open+start {
		return nil, false
	}
	return head[open+start : end+1], true
}

// isCallee reports whether b looks like a dotted JS function name.
func isCallee(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '$':
		default:
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
