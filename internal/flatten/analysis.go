package flatten

import (
	"sort"
	"strings"

	"github.com/scienceon/tutor-batch/internal/model"
)

// ListDelimiter separates positions inside the collapsed parallel lists of
// one analysis set.
const ListDelimiter = "$$$"

// placeholder is the store's "no value" token inside analysis lists.
const placeholder = "없음"

// analysisLists holds the three delimiter-joined parallel lists of one
// analysis set: free text, image file references, table-like payloads.
type analysisLists struct {
	Texts  string
	Images string
	Tables string
}

// GroupAnalysisRows collapses raw analysis rows into per-set parallel
// lists. Rows within a set are ordered by their explicit sort-order field;
// a missing field at a position is recorded as the placeholder token so
// the three lists stay position-aligned.
func GroupAnalysisRows(rows []model.AnalysisRow) map[string]analysisLists {
	type position struct {
		text, obj, file string
	}

	bySet := map[string]map[int]*position{}
	for _, r := range rows {
		if r.SetID == "" {
			continue
		}
		set := bySet[r.SetID]
		if set == nil {
			set = map[int]*position{}
			bySet[r.SetID] = set
		}
		pos := set[r.SortOrder]
		if pos == nil {
			pos = &position{text: placeholder, obj: placeholder, file: placeholder}
			set[r.SortOrder] = pos
		}
		if r.Text != "" {
			pos.text = r.Text
		}
		if r.Object != "" {
			pos.obj = r.Object
		}
		if r.FileID != "" {
			pos.file = r.FileID
		}
	}

	out := make(map[string]analysisLists, len(bySet))
	for id, set := range bySet {
		orders := make([]int, 0, len(set))
		for o := range set {
			orders = append(orders, o)
		}
		sort.Ints(orders)

		texts := make([]string, 0, len(orders))
		files := make([]string, 0, len(orders))
		objs := make([]string, 0, len(orders))
		for _, o := range orders {
			texts = append(texts, set[o].text)
			files = append(files, set[o].file)
			objs = append(objs, set[o].obj)
		}
		out[id] = analysisLists{
			Texts:  strings.Join(texts, ListDelimiter),
			Images: strings.Join(files, ListDelimiter),
			Tables: strings.Join(objs, ListDelimiter),
		}
	}
	return out
}

// splitList breaks a delimiter-joined list into positional entries,
// normalizing absent/placeholder tokens ("없음"/"none"/"null"/empty) to "".
func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ListDelimiter)
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch strings.ToLower(p) {
		case "", placeholder, "none", "null":
			out[i] = ""
		default:
			out[i] = p
		}
	}
	return out
}

// BuildAnalysisSet zips the three parallel lists position-wise. A position
// contributes an item only when at least one field survives normalization;
// item positions are 1-based and preserved from the source lists.
func BuildAnalysisSet(texts, images, tables string) model.AnalysisSet {
	tl := splitList(texts)
	il := splitList(images)
	bl := splitList(tables)

	maxLen := len(tl)
	if len(il) > maxLen {
		maxLen = len(il)
	}
	if len(bl) > maxLen {
		maxLen = len(bl)
	}
	if maxLen == 0 {
		return nil
	}

	at := func(l []string, i int) string {
		if i < len(l) {
			return l[i]
		}
		return ""
	}

	var set model.AnalysisSet
	for i := 0; i < maxLen; i++ {
		item := model.AnalysisItem{
			Position: i + 1,
			Text:     at(tl, i),
			Image:    at(il, i),
			Table:    at(bl, i),
		}
		if item.Text == "" && item.Image == "" && item.Table == "" {
			continue
		}
		set = append(set, item)
	}
	return set
}
