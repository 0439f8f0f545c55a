package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrEmpty is returned when a source holds no header row.
var ErrEmpty = errors.New("no columns to parse from file")

// missingTokens are the raw values read as missing cells.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// ReadFile loads a table from path, choosing the format from the extension:
// .tsv is tab separated, .json is an array of objects, anything else is
// read as comma separated values.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return ReadDelimited(f, '\t')
	case ".json":
		return ReadJSON(f)
	default:
		return ReadDelimited(f, ',')
	}
}

// ReadDelimited parses delimiter separated values with a header row. Column
// types are inferred: a column whose non-missing values all parse as
// numbers becomes numeric, one whose values are all true/false becomes
// boolean, anything else stays text.
func ReadDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	columns := dedupe(header)

	var raw [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && rec[0] == "" && len(columns) > 1 {
			continue
		}
		if len(rec) > len(columns) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(columns), len(rec))
		}
		for len(rec) < len(columns) {
			rec = append(rec, "")
		}
		raw = append(raw, rec)
	}

	rows := make([][]any, len(raw))
	for i := range rows {
		rows[i] = make([]any, len(columns))
	}
	for c := range columns {
		parse := inferColumn(raw, c)
		for r, rec := range raw {
			rows[r][c] = parse(rec[c])
		}
	}
	return New(columns, rows)
}

// ReadJSON parses a JSON array of objects.
func ReadJSON(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}
	order, err := jsonKeyOrder(data)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		for k, v := range rec {
			switch v.(type) {
			case nil, float64, string, bool:
			default:
				b, _ := json.Marshal(v)
				rec[k] = string(b)
			}
		}
	}
	return FromRecords(records, order)
}

// jsonKeyOrder returns object keys in the order they first appear.
func jsonKeyOrder(data []byte) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var order []string
	for _, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := tok.(string)
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

func inferColumn(raw [][]string, c int) func(string) any {
	numeric, boolean := true, true
	for _, rec := range raw {
		s := strings.TrimSpace(rec[c])
		if missingTokens[s] {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			numeric = false
		}
		if _, ok := parseBool(s); !ok {
			boolean = false
		}
		if !numeric && !boolean {
			break
		}
	}
	switch {
	case numeric:
		return func(s string) any {
			s = strings.TrimSpace(s)
			if missingTokens[s] {
				return nil
			}
			f, _ := strconv.ParseFloat(s, 64)
			return f
		}
	case boolean:
		return func(s string) any {
			b, ok := parseBool(strings.TrimSpace(s))
			if !ok {
				return nil
			}
			return b
		}
	default:
		return func(s string) any {
			if missingTokens[strings.TrimSpace(s)] {
				return nil
			}
			return s
		}
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// dedupe fills blank header names and suffixes repeated ones with .1, .2...
func dedupe(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]int)
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for used[name] > 0 {
			name = fmt.Sprintf("%s.%d", base, used[base])
			used[base]++
		}
		used[name]++
		out[i] = name
	}
	return out
}
