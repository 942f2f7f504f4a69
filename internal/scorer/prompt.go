package scorer

import (
	"embed"
	"fmt"
	"strings"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/pkg/clova"
)

//go:embed templates/*.txt
var templateFS embed.FS

// evalInstruction closes every per-question user turn.
const evalInstruction = "\n학생의 답변을 문단 단위로 평가해 주세요. 각 문단은 핵심 내용을 중심으로 짧고 가독성 있게 작성해 주되, 전체 평가는 두 문단 이내로 작성해 주세요.\n"

const feedbackHeader = "아래는 문항별 개별 평가 결과입니다. 전체 흐름을 요약하여 종합 피드백을 작성해 주세요.\n" +
	"- 각 문항의 핵심 평가 포인트만 압축해 요약\n" +
	"- 공통 강점/개선점, 다음 학습 제안 간단히 정리\n" +
	"- 불필요한 격려 문구 없이 구체적으로\n"

func loadTemplate(name string) string {
	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("scorer: missing template %s: %v", name, err))
	}
	return string(b)
}

func systemPrompt(name string, h model.ReportHeader) string {
	tpl := loadTemplate(name)
	tpl = strings.ReplaceAll(tpl, "{large_div_nm}", h.SchoolLevel)
	tpl = strings.ReplaceAll(tpl, "{middle_div_nm}", h.Grade)
	return tpl
}

// reportOverview is the assistant turn shared by every call: the research
// metadata the evaluation should be anchored to.
func reportOverview(h model.ReportHeader) string {
	return fmt.Sprintf(
		"[보고서 개요]\n\n"+
			"    - 탐구명: %s\n"+
			"    - 보고서명: %s\n"+
			"    - 학습 목표: %s\n"+
			"    - 성취 기준: %s\n"+
			"    - 학교급: %s\n"+
			"    - 학년: %s\n"+
			"    - 단원: %s\n",
		h.ResearchName, h.ReportID, h.LearningGoal, h.AchievementText,
		h.SchoolLevel, h.Grade, h.Unit,
	)
}

// priorItem is one entry of the rolling prior-question context window.
type priorItem struct {
	Question string
	Answer   string
	Result   string
}

func priorContextText(items []priorItem) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("[이전 질문 답변 평가]\n")
	for _, it := range items {
		sb.WriteString("- 질문: " + it.Question + "\n")
		sb.WriteString("  답변: " + it.Answer + "\n")
		sb.WriteString("  평가결과: " + it.Result + "\n")
	}
	return sb.String()
}

// buildMessages assembles the shared four-turn shape: system prompt,
// overview, prior context (only when present), then the question payload.
func buildMessages(system, overview, prior, userText string) []clova.Message {
	msgs := []clova.Message{
		clova.TextMessage("system", system),
		clova.TextMessage("assistant", overview),
	}
	if prior != "" {
		msgs = append(msgs, clova.TextMessage("user", prior))
	}
	msgs = append(msgs, clova.Message{
		Role:    "user",
		Content: []clova.ContentPart{clova.TextPart(userText)},
	})
	return msgs
}

func textMessages(h model.ReportHeader, slot model.QuestionSlot, prior []priorItem) []clova.Message {
	userText := fmt.Sprintf(
		"- 질문(대제목): %s\n- 질문(소제목): %s\n- 학생 답변: %s\n%s",
		slot.Title, slot.Question, slot.Answer, evalInstruction,
	)
	return buildMessages(systemPrompt("text_prompt.txt", h), reportOverview(h), priorContextText(prior), userText)
}

// imageMessages carries the description produced by the vision sub-call,
// never the image bytes themselves.
func imageMessages(h model.ReportHeader, slot model.QuestionSlot, prior []priorItem, analysisText string) []clova.Message {
	userText := fmt.Sprintf(
		"- 질문(대제목): %s\n- 질문(소제목): %s\n- 학생 답변(학생이 제출한 이미지를 AI가 분석한 결과): \n%s\n%s",
		slot.Title, slot.Question, analysisText, evalInstruction,
	)
	return buildMessages(systemPrompt("image_prompt.txt", h), reportOverview(h), priorContextText(prior), userText)
}

func tableMessages(h model.ReportHeader, slot model.QuestionSlot, prior []priorItem) []clova.Message {
	userText := fmt.Sprintf(
		"- 질문(대제목): %s\n- 질문(소제목): %s\n- 학생 답변(표): %s\n%s",
		slot.Title, slot.Question, slot.TableText, evalInstruction,
	)
	return buildMessages(systemPrompt("table_prompt.txt", h), reportOverview(h), priorContextText(prior), userText)
}

// analysisMessages lays out one line per analysis set; describe turns an
// image reference into its description text.
func analysisMessages(h model.ReportHeader, slot model.QuestionSlot, prior []priorItem, describe func(imageURL string) string) []clova.Message {
	var lines []string
	for _, item := range slot.Analysis {
		var parts []string
		if item.Text != "" {
			parts = append(parts, strings.TrimSpace(item.Text))
		}
		if item.Table != "" {
			parts = append(parts, strings.TrimSpace(item.Table))
		}
		if item.Image != "" {
			parts = append(parts, describe(item.Image))
		}
		if len(parts) > 0 {
			lines = append(lines, item.Label()+": "+strings.Join(parts, " "))
		}
	}

	userText := fmt.Sprintf(
		"아래는 학생이 제출한 분석데이터입니다. 각 세트의 특이사항을 종합해 평가해 주세요.\n"+
			"- 질문(대제목): %s\n- 질문(소제목): %s\n- 학생 답변(분석데이터): ",
		slot.Title, slot.Question,
	)
	if len(lines) > 0 {
		userText += "\n" + strings.Join(lines, "\n")
	}
	userText += "\n" + evalInstruction
	return buildMessages(systemPrompt("anals_prompt.txt", h), reportOverview(h), priorContextText(prior), userText)
}

func imageAnalysisMessages(src clova.ContentPart) []clova.Message {
	return []clova.Message{
		clova.TextMessage("system", loadTemplate("image_analysis_prompt.txt")),
		{
			Role: "user",
			Content: []clova.ContentPart{
				clova.TextPart("이미지를 분석해 주세요."),
				src,
			},
		},
	}
}

// questionResult feeds the feedback synthesis call.
type questionResult struct {
	Key      model.SlotKey
	Title    string
	Question string
	Response string
}

// feedbackMessages summarizes the per-question evaluations in slot-key
// order; questions that produced no response text are skipped.
func feedbackMessages(h model.ReportHeader, results []questionResult) []clova.Message {
	var blocks []string
	for _, r := range results {
		if r.Response == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s] \n%s - %s\n%s\n", r.Key, r.Title, r.Question, r.Response))
	}
	userText := feedbackHeader + strings.Join(blocks, "\n")

	return []clova.Message{
		clova.TextMessage("system", loadTemplate("feedback_prompt.txt")),
		clova.TextMessage("assistant", reportOverview(h)),
		{
			Role:    "user",
			Content: []clova.ContentPart{clova.TextPart(userText)},
		},
	}
}
