package flatten

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scienceon/tutor-batch/internal/model"
)

func testFlattener() *Flattener {
	return New(Config{
		UploadBaseURL: "https://files.example.com/upload/",
		FileBaseURL:   "https://files.example.com",
	})
}

func TestFlattenTeacherForm(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{
		ReportID:   "R1",
		ReportType: model.ReportTypeTeacherForm,
		ModifiedAt: "2025-03-01T00:00:00",
	}}
	layouts := []model.LayoutRow{
		{
			ReportID:  "R1",
			Question1: "관찰한 내용을 쓰세요.",
			Answer1:   "얼음이 녹았다.",
		},
		{
			ReportID:  "R1",
			Title:     "실험 설계",
			Question1: "가설을 쓰세요.",
			Answer1:   "온도가 높을수록 빨리 녹는다.",
			Question2: "변인을 쓰세요.",
			Answer2:   "온도",
		},
	}

	records := testFlattener().Flatten(headers, layouts, nil)
	require.Len(t, records, 1)

	rec := records[0]
	require.Len(t, rec.Slots, 3)

	assert.Equal(t, "Q1-1", rec.Slots[0].Key.String())
	assert.Equal(t, model.AnswerText, rec.Slots[0].Type)
	assert.Empty(t, rec.Slots[0].Title)

	// Two-level slot yields one entry per sub-level, sharing the title.
	assert.Equal(t, "Q2-1", rec.Slots[1].Key.String())
	assert.Equal(t, "실험 설계", rec.Slots[1].Title)
	assert.Equal(t, "Q2-2", rec.Slots[2].Key.String())
	assert.Equal(t, "실험 설계", rec.Slots[2].Title)
	assert.Equal(t, "온도", rec.Slots[2].Answer)
}

func TestFlattenSecondLevelRequiresSecondaryPayload(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeTeacherForm}}
	layouts := []model.LayoutRow{{
		ReportID:  "R1",
		Title:     "제목",
		Question1: "질문",
		Answer1:   "답변",
		Question2: "소질문2", // question text alone does not make a two-level slot
	}}

	records := testFlattener().Flatten(headers, layouts, nil)
	require.Len(t, records, 1)
	require.Len(t, records[0].Slots, 1)
	assert.Equal(t, "Q1-1", records[0].Slots[0].Key.String())
}

func TestFlattenTypePrecedence(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeTeacherForm}}

	tests := []struct {
		name string
		row  model.LayoutRow
		want model.AnswerType
	}{
		{
			name: "answer wins over image",
			row:  model.LayoutRow{ReportID: "R1", Question1: "q", Answer1: "a", ImageID1: "img.png"},
			want: model.AnswerText,
		},
		{
			name: "image wins over table",
			row:  model.LayoutRow{ReportID: "R1", Question1: "q", ImageID1: "img.png", TableData1: "raw table"},
			want: model.AnswerImage,
		},
		{
			name: "table wins over analysis",
			row:  model.LayoutRow{ReportID: "R1", Question1: "q", TableData1: "raw table"},
			want: model.AnswerTable,
		},
		{
			name: "nothing resolves to unanswered",
			row:  model.LayoutRow{ReportID: "R1", Question1: "q"},
			want: model.AnswerUnanswered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			records := testFlattener().Flatten(headers, []model.LayoutRow{tt.row}, nil)
			require.Len(t, records, 1)
			require.Len(t, records[0].Slots, 1)
			assert.Equal(t, tt.want, records[0].Slots[0].Type)
		})
	}
}

func TestFlattenUnansweredClearsPayload(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeTeacherForm}}
	// Image name without a valid extension and no id: no payload resolves.
	layouts := []model.LayoutRow{{ReportID: "R1", Question1: "q", ImageName1: "broken.bmp"}}

	records := testFlattener().Flatten(headers, layouts, nil)
	require.Len(t, records[0].Slots, 1)

	slot := records[0].Slots[0]
	assert.Equal(t, model.AnswerUnanswered, slot.Type)
	assert.Empty(t, slot.Answer)
	assert.Empty(t, slot.ImageURL)
	assert.Empty(t, slot.TableText)
	assert.Empty(t, slot.Analysis)
}

func TestFlattenBasicForm(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeBasicForm}}
	layouts := []model.LayoutRow{
		{ReportID: "R1", Answer1: "방법 답변"},
	}

	records := testFlattener().Flatten(headers, layouts, nil)
	require.Len(t, records, 1)

	slots := records[0].Slots
	// One answered canned question plus three question-only positions.
	require.Len(t, slots, len(BasicQuestions))

	assert.Equal(t, BasicQuestions[0], slots[0].Question)
	assert.Equal(t, model.AnswerText, slots[0].Type)
	for i := 1; i < len(BasicQuestions); i++ {
		assert.Equal(t, BasicQuestions[i], slots[i].Question)
		assert.Equal(t, model.AnswerUnanswered, slots[i].Type)
	}
}

func TestFlattenUnknownReportType(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: "자유양식보고서"}}
	layouts := []model.LayoutRow{{ReportID: "R1", Question1: "q", Answer1: "a"}}

	records := testFlattener().Flatten(headers, layouts, nil)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Slots)
}

func TestFlattenAnalysisResolution(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeTeacherForm}}
	layouts := []model.LayoutRow{{ReportID: "R1", Question1: "q", AnalysisID1: "SET1"}}
	analysis := []model.AnalysisRow{
		{SetID: "SET1", SortOrder: 2, FileID: "chart.png"},
		{SetID: "SET1", SortOrder: 1, Text: "관찰 기록"},
	}

	records := testFlattener().Flatten(headers, layouts, analysis)
	require.Len(t, records[0].Slots, 1)

	slot := records[0].Slots[0]
	assert.Equal(t, model.AnswerAnalysis, slot.Type)
	require.Len(t, slot.Analysis, 2)
	assert.Equal(t, "관찰 기록", slot.Analysis[0].Text)
	assert.Equal(t, "https://files.example.com/upload/chart.png", slot.Analysis[1].Image)
}

func TestFlattenImageURLResolution(t *testing.T) {
	t.Parallel()

	f := testFlattener()

	assert.Equal(t, "https://files.example.com/ON/img/a.png",
		f.resolveImageURL("id-1", "/ON/img", "a.png"))
	// Invalid extension falls back to the id URL.
	assert.Equal(t, "https://files.example.com/upload/id-1",
		f.resolveImageURL("id-1", "/ON/img", "a.bmp"))
	// Bare id.
	assert.Equal(t, "https://files.example.com/upload/id-2",
		f.resolveImageURL("id-2", "", ""))
	assert.Empty(t, f.resolveImageURL("", "", "a.bmp"))
}

func TestFlattenOrderedByModifiedAt(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{
		{ReportID: "B", ReportType: model.ReportTypeBasicForm, ModifiedAt: "2025-02-01T00:00:00"},
		{ReportID: "A", ReportType: model.ReportTypeBasicForm, ModifiedAt: "2025-01-01T00:00:00"},
	}

	records := testFlattener().Flatten(headers, nil, nil)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Header.ReportID)
	assert.Equal(t, "B", records[1].Header.ReportID)
}

func TestFlattenIdempotent(t *testing.T) {
	t.Parallel()

	headers := []model.ReportHeader{{ReportID: "R1", ReportType: model.ReportTypeTeacherForm, ModifiedAt: "t1"}}
	layouts := []model.LayoutRow{
		{ReportID: "R1", Question1: "q1", Answer1: "a1", AnalysisID1: "SET1"},
		{ReportID: "R1", Title: "t", Question1: "q2", Answer2: "a2"},
	}
	analysis := []model.AnalysisRow{
		{SetID: "SET1", SortOrder: 1, Text: "x"},
		{SetID: "SET1", SortOrder: 2, Object: `{"Sheet1":{"0":{"0":{"value":"v"}}}}`},
	}

	f := testFlattener()
	first, err := json.Marshal(f.Flatten(headers, layouts, analysis))
	require.NoError(t, err)
	second, err := json.Marshal(f.Flatten(headers, layouts, analysis))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
