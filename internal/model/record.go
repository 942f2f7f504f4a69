package model

import "fmt"

// Report type tags as stored in the document store. Records carrying any
// other tag produce zero question slots.
const (
	ReportTypeTeacherForm = "교사양식보고서"
	ReportTypeBasicForm   = "기본양식보고서"
)

// MaxSlots is the number of numbered question positions per report.
const MaxSlots = 10

// ReportHeader is one row from the report info index.
type ReportHeader struct {
	ReportID        string `json:"RPTC_ID"`
	ReportName      string `json:"RPTC_NM"`
	ReportType      string `json:"RPTC_SE_NM"`
	HeadcountCode   string `json:"RPTC_NMPR_SE_CD"`
	RegistrantID    string `json:"RGTR_ID"`
	StudentID       string `json:"STDNT_ID"`
	ResearchName    string `json:"RSH_NM"`
	ResearchBegin   string `json:"RSH_BGNG_DT"`
	ResearchEnd     string `json:"RSH_END_DT"`
	SchoolLevel     string `json:"LARGE_DIV_NM"`
	Grade           string `json:"MIDDLE_DIV_NM"`
	Unit            string `json:"SMALL_DIV_NM"`
	LearningGoal    string `json:"LRN_GOAL_CN"`
	AchievementCode string `json:"SCCES_STDR_CODE"`
	AchievementText string `json:"SCCES_STDR_CNS"`
	AltAchieveCode  string `json:"ALT_SCCES_STDR_CODE"`
	AltAchieveText  string `json:"ALT_SCCES_STDR_CNS"`
	ModifiedAt      string `json:"MDFCN_DT"`
}

// LayoutRow is one per-question row from the report layout index. Sub-level
// fields are flattened with _1/_2 suffixes in the store schema.
type LayoutRow struct {
	ReportID      string `json:"RPTC_ID"`
	Title         string `json:"LAO_CN_2_TITLE"`
	SecondaryCode string `json:"LAO_CD_2"`

	Question1   string `json:"LAO_CN_1"`
	Answer1     string `json:"LAO_SUBMIT_CN_1"`
	ImageID1    string `json:"IMG_FILE_ID_1"`
	ImagePath1  string `json:"IMG_FILE_FLPTH_1"`
	ImageName1  string `json:"IMG_FILE_NAME_1"`
	AnalysisID1 string `json:"ANALS_DATA_ID_1"`
	CollectID1  string `json:"CLCT_DATA_ID_1"`
	TableData1  string `json:"DATA_TEXT_1"`

	Question2   string `json:"LAO_CN_2"`
	Answer2     string `json:"LAO_SUBMIT_CN_2"`
	ImageID2    string `json:"IMG_FILE_ID_2"`
	ImagePath2  string `json:"IMG_FILE_FLPTH_2"`
	ImageName2  string `json:"IMG_FILE_NAME_2"`
	AnalysisID2 string `json:"ANALS_DATA_ID_2"`
	CollectID2  string `json:"CLCT_DATA_ID_2"`
	TableData2  string `json:"DATA_TEXT_2"`
}

// LayoutSub is the sub-level view of a layout row.
type LayoutSub struct {
	Question   string
	Answer     string
	ImageID    string
	ImagePath  string
	ImageName  string
	AnalysisID string
	CollectID  string
	TableData  string
}

// Sub returns the fields for sub-level 1 or 2.
func (r LayoutRow) Sub(level int) LayoutSub {
	if level == 2 {
		return LayoutSub{
			Question:   r.Question2,
			Answer:     r.Answer2,
			ImageID:    r.ImageID2,
			ImagePath:  r.ImagePath2,
			ImageName:  r.ImageName2,
			AnalysisID: r.AnalysisID2,
			CollectID:  r.CollectID2,
			TableData:  r.TableData2,
		}
	}
	return LayoutSub{
		Question:   r.Question1,
		Answer:     r.Answer1,
		ImageID:    r.ImageID1,
		ImagePath:  r.ImagePath1,
		ImageName:  r.ImageName1,
		AnalysisID: r.AnalysisID1,
		CollectID:  r.CollectID1,
		TableData:  r.TableData1,
	}
}

// HasSecondary reports whether the row carries any sub-level-2 payload: a
// secondary answer, a secondary image, or a secondary analysis-set id.
func (r LayoutRow) HasSecondary() bool {
	return r.Answer2 != "" || r.ImageID2 != "" || r.AnalysisID2 != ""
}

// AnalysisRow is one row from the auxiliary analysis index. Rows sharing a
// set id form one analysis set, ordered by SortOrder.
type AnalysisRow struct {
	SetID     string `json:"CLCT_ANALS_DATA_ID"`
	SortOrder int    `json:"SORT_ORDR"`
	Text      string `json:"ANALS_CN"`
	Object    string `json:"ANALS_OBJECT"`
	FileID    string `json:"ANALS_FILE_ID"`
}

// AnswerType classifies what a question slot resolved to.
type AnswerType string

const (
	AnswerText       AnswerType = "text"
	AnswerImage      AnswerType = "image"
	AnswerTable      AnswerType = "table"
	AnswerAnalysis   AnswerType = "anals"
	AnswerUnanswered AnswerType = "무응답"
)

// SlotKey identifies one question position: slot number 1..10 and
// sub-level 1 or 2.
type SlotKey struct {
	Slot int
	Sub  int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("Q%d-%d", k.Slot, k.Sub)
}

// Less orders keys by slot number, then sub-level.
func (k SlotKey) Less(o SlotKey) bool {
	if k.Slot != o.Slot {
		return k.Slot < o.Slot
	}
	return k.Sub < o.Sub
}

// AnalysisItem is one positional entry of an analysis set. Position is
// 1-based; absent fields are empty strings.
type AnalysisItem struct {
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	Table    string `json:"table,omitempty"`
}

// Label returns the display key for the item ("분석1", "분석2", ...).
func (i AnalysisItem) Label() string {
	return fmt.Sprintf("분석%d", i.Position)
}

// AnalysisSet is the ordered collection of analysis items linked to a slot.
type AnalysisSet []AnalysisItem

// QuestionSlot is one populated question position of a normalized record,
// resolved to exactly one answer type. Unpopulated positions never appear
// in a Record.
type QuestionSlot struct {
	Key       SlotKey     `json:"key"`
	Type      AnswerType  `json:"type"`
	Title     string      `json:"title,omitempty"`
	Question  string      `json:"question,omitempty"`
	Answer    string      `json:"answer,omitempty"`
	ImageURL  string      `json:"image,omitempty"`
	TableText string      `json:"table,omitempty"`
	Analysis  AnalysisSet `json:"analysis,omitempty"`
}

// Record is one normalized, scoring-ready report: the header plus its
// populated question slots in natural key order.
type Record struct {
	Header ReportHeader
	Slots  []QuestionSlot
}

// SlotKeys returns the keys of all populated slots, in order.
func (r *Record) SlotKeys() []string {
	keys := make([]string, 0, len(r.Slots))
	for _, s := range r.Slots {
		keys = append(keys, s.Key.String())
	}
	return keys
}
