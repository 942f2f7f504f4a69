// Package flatten merges raw report, layout and analysis rows into
// normalized, scoring-ready records: a fixed grid of up to 10 question
// slots per report, each resolved to exactly one answer type.
package flatten

import (
	"sort"
	"strings"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/tableparse"
)

// BasicQuestions is the canned prompt list used by basic-form reports.
// Per-slot answers from layout rows are matched positionally against it.
var BasicQuestions = []string{
	"탐구 방법: 탐구 방법에 대해 작성해 주세요.",
	"탐구 내용: 탐구 내용에 대해 작성해 주세요.",
	"탐구 결과: 탐구 결과에 대해 작성해 주세요.",
	"탐구 결론 및 정리",
}

var validImageExts = []string{".jpg", ".jpeg", ".png", ".gif"}

// Config holds the URL bases used to resolve image file references.
type Config struct {
	// UploadBaseURL prefixes bare image file ids.
	UploadBaseURL string
	// FileBaseURL prefixes path+name image references.
	FileBaseURL string
	// MaxTableLines caps rendered table text (0 = tableparse default).
	MaxTableLines int
}

// Flattener turns raw row sets into normalized records.
type Flattener struct {
	cfg Config
}

// New creates a Flattener.
func New(cfg Config) *Flattener {
	return &Flattener{cfg: cfg}
}

// Flatten produces one normalized record per report header, ordered by
// last-modified timestamp ascending. The operation is pure: identical
// inputs yield identical output.
func (f *Flattener) Flatten(headers []model.ReportHeader, layouts []model.LayoutRow, analysis []model.AnalysisRow) []*model.Record {
	layoutsByReport := map[string][]model.LayoutRow{}
	for _, l := range layouts {
		layoutsByReport[l.ReportID] = append(layoutsByReport[l.ReportID], l)
	}
	groups := GroupAnalysisRows(analysis)

	records := make([]*model.Record, 0, len(headers))
	for _, h := range headers {
		records = append(records, f.buildRecord(h, layoutsByReport[h.ReportID], groups))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Header.ModifiedAt < records[j].Header.ModifiedAt
	})
	return records
}

// wideSlot is the intermediate per-position form before type resolution.
type wideSlot struct {
	title      string
	question   string
	answer     string
	imageID    string
	imagePath  string
	imageName  string
	analysisID string
	tableData  string
	populated  bool
}

func (f *Flattener) buildRecord(h model.ReportHeader, layouts []model.LayoutRow, groups map[string]analysisLists) *model.Record {
	if h.AchievementCode == "" {
		h.AchievementCode = h.AltAchieveCode
	}
	if h.AchievementText == "" {
		h.AchievementText = h.AltAchieveText
	}

	var wide [model.MaxSlots + 1][3]wideSlot // indexed [slot][sub]
	switch h.ReportType {
	case model.ReportTypeTeacherForm:
		fillTeacherForm(&wide, layouts)
	case model.ReportTypeBasicForm:
		fillBasicForm(&wide, layouts)
	default:
		// Unknown report type: zero slots, not a default layout.
	}

	rec := &model.Record{Header: h}
	for slot := 1; slot <= model.MaxSlots; slot++ {
		for sub := 1; sub <= 2; sub++ {
			ws := wide[slot][sub]
			// A position is populated only when it carries question text,
			// either its own sub-question or the titled parent question.
			if !ws.populated || (ws.title == "" && ws.question == "") {
				continue
			}
			rec.Slots = append(rec.Slots, f.resolveSlot(model.SlotKey{Slot: slot, Sub: sub}, ws, groups))
		}
	}
	return rec
}

func fillTeacherForm(wide *[model.MaxSlots + 1][3]wideSlot, layouts []model.LayoutRow) {
	if len(layouts) > model.MaxSlots {
		layouts = layouts[:model.MaxSlots]
	}
	for i, row := range layouts {
		slot := i + 1
		twoLevel := row.HasSecondary()

		for sub := 1; sub <= 2; sub++ {
			src := row.Sub(sub)
			ws := wideSlot{
				answer:     src.Answer,
				imageID:    src.ImageID,
				imagePath:  src.ImagePath,
				imageName:  src.ImageName,
				analysisID: src.AnalysisID,
				tableData:  src.TableData,
				populated:  true,
			}
			if twoLevel {
				ws.title = row.Title
				ws.question = src.Question
			} else if sub == 1 {
				ws.question = src.Question
			}
			wide[slot][sub] = ws
		}
	}
}

func fillBasicForm(wide *[model.MaxSlots + 1][3]wideSlot, layouts []model.LayoutRow) {
	for i, qText := range BasicQuestions {
		slot := i + 1
		if i >= len(layouts) {
			// No submission for this canned question: question text only.
			wide[slot][1] = wideSlot{question: qText, populated: true}
			continue
		}

		row := layouts[i]
		twoLevel := row.HasSecondary()

		sub1 := row.Sub(1)
		ws1 := wideSlot{
			answer:     sub1.Answer,
			imageID:    sub1.ImageID,
			imagePath:  sub1.ImagePath,
			imageName:  sub1.ImageName,
			analysisID: sub1.AnalysisID,
			tableData:  sub1.TableData,
			populated:  true,
		}
		if twoLevel {
			ws1.title = qText
		} else {
			ws1.question = qText
		}
		wide[slot][1] = ws1

		if twoLevel {
			sub2 := row.Sub(2)
			wide[slot][2] = wideSlot{
				title:      qText,
				answer:     sub2.Answer,
				imageID:    sub2.ImageID,
				imagePath:  sub2.ImagePath,
				imageName:  sub2.ImageName,
				analysisID: sub2.AnalysisID,
				tableData:  sub2.TableData,
				populated:  true,
			}
		}
	}
}

// resolveSlot applies the answer-type precedence rule: explicit text answer
// over image over table over non-empty analysis set over unanswered.
func (f *Flattener) resolveSlot(key model.SlotKey, ws wideSlot, groups map[string]analysisLists) model.QuestionSlot {
	slot := model.QuestionSlot{
		Key:      key,
		Title:    collapseNewlines(ws.title),
		Question: collapseNewlines(ws.question),
	}

	answer := strings.TrimSpace(collapseNewlines(ws.answer))
	imageURL := f.resolveImageURL(ws.imageID, ws.imagePath, ws.imageName)
	tableText := f.resolveTableText(ws.tableData)

	var analysis model.AnalysisSet
	if ws.analysisID != "" {
		if lists, ok := groups[ws.analysisID]; ok {
			analysis = BuildAnalysisSet(
				lists.Texts,
				f.normalizeAnalysisImages(lists.Images),
				f.normalizeAnalysisTables(lists.Tables),
			)
		}
	}

	switch {
	case answer != "":
		slot.Type = model.AnswerText
		slot.Answer = answer
		slot.ImageURL = imageURL
		slot.TableText = tableText
		slot.Analysis = analysis
	case imageURL != "":
		slot.Type = model.AnswerImage
		slot.ImageURL = imageURL
		slot.TableText = tableText
		slot.Analysis = analysis
	case tableText != "":
		slot.Type = model.AnswerTable
		slot.TableText = tableText
		slot.Analysis = analysis
	case len(analysis) > 0:
		slot.Type = model.AnswerAnalysis
		slot.Analysis = analysis
	default:
		// Unanswered slots carry no payload at all.
		slot.Type = model.AnswerUnanswered
	}
	return slot
}

func (f *Flattener) resolveTableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if text, ok := tableparse.Render(raw, f.cfg.MaxTableLines); ok {
		return text
	}
	// Unparseable payloads degrade to their raw text.
	return raw
}

func (f *Flattener) resolveImageURL(id, path, name string) string {
	if name != "" {
		if hasValidImageExt(name) {
			return f.cfg.FileBaseURL + path + "/" + name
		}
		if id != "" {
			return f.cfg.UploadBaseURL + id
		}
		return ""
	}
	if id != "" {
		return f.cfg.UploadBaseURL + id
	}
	return ""
}

// normalizeAnalysisImages prefixes extension-validated file references with
// the upload base URL, position by position.
func (f *Flattener) normalizeAnalysisImages(joined string) string {
	if joined == "" {
		return ""
	}
	parts := strings.Split(joined, ListDelimiter)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && hasValidImageExt(p) {
			parts[i] = f.cfg.UploadBaseURL + p
		} else {
			parts[i] = p
		}
	}
	return strings.Join(parts, ListDelimiter)
}

// normalizeAnalysisTables renders each table-like piece to text where it
// parses, leaving placeholders and unparseable pieces untouched.
func (f *Flattener) normalizeAnalysisTables(joined string) string {
	if joined == "" {
		return ""
	}
	parts := strings.Split(joined, ListDelimiter)
	for i, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" || trimmed == placeholder {
			continue
		}
		if text, ok := tableparse.Render(trimmed, f.cfg.MaxTableLines); ok {
			parts[i] = text
		}
	}
	return strings.Join(parts, ListDelimiter)
}

func hasValidImageExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range validImageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
