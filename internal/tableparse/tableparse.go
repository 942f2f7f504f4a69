// Package tableparse renders spreadsheet-like JSON payloads into a flat
// pipe-delimited text table. Parse failures degrade silently: the caller
// falls back to showing the raw payload.
package tableparse

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/scienceon/tutor-batch/internal/model"
)

// DefaultMaxLines caps the rendered table body.
const DefaultMaxLines = 30

const (
	msgNoTable    = "표 데이터를 찾을 수 없습니다."
	msgEmptyTable = "표 데이터가 비어 있습니다."
	truncMarker   = "...(이후 생략)"
)

// Render parses the first well-formed JSON object embedded in value and
// renders it as text. ok is false only when no JSON object can be
// extracted at all; an extracted-but-empty table still renders a message.
func Render(value string, maxLines int) (string, bool) {
	jd, err := firstJSON(value)
	if err != nil {
		return "", false
	}
	return RenderValue(jd, maxLines)
}

// RenderValue renders an already-parsed payload.
func RenderValue(v any, maxLines int) (string, bool) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	jd, ok := v.(map[string]any)
	if !ok || len(jd) == 0 {
		return msgNoTable, true
	}

	var sheet map[string]any
	var meta map[string]any

	if _, hasSheets := jd["sheets"]; hasSheets {
		sheet, meta = chooseSheet(jd)
		if sheet == nil {
			return msgNoTable, true
		}
	} else {
		// Implicit single sheet: first non-empty object value.
		name := firstNonEmptyKey(jd)
		if name == "" {
			return msgNoTable, true
		}
		sheet = jd[name].(map[string]any)
		// The whole sheet may have been grabbed; force data.dataTable.
		if data, ok := sheet["data"].(map[string]any); ok {
			if dt, ok := data["dataTable"].(map[string]any); ok {
				meta = sheet
				sheet = dt
			}
		}
	}

	if len(sheet) == 0 {
		return msgEmptyTable, true
	}

	rowKeys := numericKeys(sheet)
	if len(rowKeys) == 0 {
		return msgEmptyTable, true
	}

	colSet := map[string]struct{}{}
	for _, rk := range rowKeys {
		row, _ := sheet[rk].(map[string]any)
		for ck := range row {
			if isDigits(ck) {
				colSet[ck] = struct{}{}
			}
		}
	}
	colKeys := make([]string, 0, len(colSet))
	for ck := range colSet {
		colKeys = append(colKeys, ck)
	}
	sort.Slice(colKeys, func(i, j int) bool {
		a, _ := strconv.Atoi(colKeys[i])
		b, _ := strconv.Atoi(colKeys[j])
		return a < b
	})
	if len(colKeys) == 0 {
		return msgEmptyTable, true
	}

	lines := make([]string, 0, len(rowKeys)+1)
	for _, rk := range rowKeys {
		row, _ := sheet[rk].(map[string]any)
		vals := make([]string, 0, len(colKeys))
		for _, ck := range colKeys {
			vals = append(vals, cellValue(row[ck]))
		}
		lines = append(lines, strings.Join(vals, " | "))
	}

	if header := headerRow(meta, colKeys); header != "" {
		lines = append([]string{header}, lines...)
	}

	if len(lines) > maxLines {
		lines = append(lines[:maxLines], truncMarker)
	}

	return strings.Join(lines, "\n"), true
}

// chooseSheet picks the data table from a multi-sheet container: the
// selected sheet first, then the one matching activeSheetIndex, then the
// first sheet with a non-empty data table.
func chooseSheet(jd map[string]any) (map[string]any, map[string]any) {
	sheets, _ := jd["sheets"].(map[string]any)
	activeIdx, hasActive := jd["activeSheetIndex"]

	names := make([]string, 0, len(sheets))
	for n := range sheets {
		names = append(names, n)
	}
	model.SortNatural(names)

	type candidate struct {
		dt   map[string]any
		meta map[string]any
	}
	cands := make([]candidate, 0, len(names))
	for _, n := range names {
		s, _ := sheets[n].(map[string]any)
		var dt map[string]any
		if data, ok := s["data"].(map[string]any); ok {
			dt, _ = data["dataTable"].(map[string]any)
		}
		cands = append(cands, candidate{dt: dt, meta: s})
	}

	for _, c := range cands {
		if sel, _ := c.meta["isSelected"].(bool); sel && len(c.dt) > 0 {
			return c.dt, c.meta
		}
	}
	if hasActive {
		for _, c := range cands {
			if c.meta["index"] == activeIdx && len(c.dt) > 0 {
				return c.dt, c.meta
			}
		}
	}
	for _, c := range cands {
		if len(c.dt) > 0 {
			return c.dt, c.meta
		}
	}
	return nil, nil
}

func headerRow(meta map[string]any, colKeys []string) string {
	if meta == nil {
		return ""
	}
	chd, _ := meta["colHeaderData"].(map[string]any)
	dt, _ := chd["dataTable"].(map[string]any)
	first, _ := dt["0"].(map[string]any)
	if len(first) == 0 {
		return ""
	}
	vals := make([]string, 0, len(colKeys))
	any := false
	for _, ck := range colKeys {
		v := cellValue(first[ck])
		if v != "" {
			any = true
		}
		vals = append(vals, v)
	}
	if !any {
		return ""
	}
	return strings.Join(vals, " | ")
}

func cellValue(cell any) string {
	if m, ok := cell.(map[string]any); ok {
		if v, ok := m["value"]; ok {
			return scalarString(v)
		}
		if v, ok := m["v"]; ok {
			return scalarString(v)
		}
		return ""
	}
	return scalarString(cell)
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func numericKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if isDigits(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func firstNonEmptyKey(jd map[string]any) string {
	names := make([]string, 0, len(jd))
	for n := range jd {
		names = append(names, n)
	}
	model.SortNatural(names)
	for _, n := range names {
		if m, ok := jd[n].(map[string]any); ok && len(m) > 0 {
			return n
		}
	}
	return ""
}

// firstJSON extracts the first well-formed JSON object from s, tolerating
// leading noise and trailing junk (log text, a second document).
func firstJSON(s string) (any, error) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	for i < len(s) {
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v any
		if err := dec.Decode(&v); err == nil {
			return v, nil
		}
		j := strings.IndexByte(s[i+1:], '{')
		if j == -1 {
			j = strings.IndexByte(s[i+1:], '[')
		}
		if j == -1 {
			break
		}
		i = i + 1 + j
	}
	// Last resort: the span between the first '{' and the last '}'.
	l := strings.IndexByte(s, '{')
	r := strings.LastIndexByte(s, '}')
	if l != -1 && r > l {
		var v any
		if err := json.Unmarshal([]byte(s[l:r+1]), &v); err == nil {
			return v, nil
		}
	}
	return nil, errNoJSON
}

var errNoJSON = jsonError("no JSON object found")

type jsonError string

func (e jsonError) Error() string { return string(e) }
