package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain_text_untouched",
			in:   "훌륭한 답변입니다.",
			want: "훌륭한 답변입니다.",
		},
		{
			name: "strips_code_fences",
			in:   "```json\n{\"score\": 5}\n```",
			want: "\n{\"score\": 5}\n",
		},
		{
			name: "strips_bare_fences",
			in:   "```\n평가 내용\n```",
			want: "\n평가 내용\n",
		},
		{
			name: "removes_boilerplate_word",
			in:   "독자가 이해하기 쉽게 썼습니다. 독자들이 좋아할 내용입니다.",
			want: " 이해하기 쉽게 썼습니다.  좋아할 내용입니다.",
		},
		{
			name: "keeps_boilerplate_inside_longer_words",
			in:   "구독자 수가 많고 독자층이 넓습니다.",
			want: "구독자 수가 많고 독자층이 넓습니다.",
		},
		{
			name: "removes_standalone_boilerplate_at_end",
			in:   "이 글의 독자",
			want: "이 글의 ",
		},
		{
			name: "escapes_dollar_signs",
			in:   "비용은 $10 입니다.",
			want: `비용은 \$10 입니다.`,
		},
		{
			name: "trims_surrounding_whitespace",
			in:   "  평가  \n",
			want: "평가",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanResponse(tt.in))
		})
	}
}
