package retrieval

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/utils"
)

const identity = "あなたは、〒552-0021 大阪府大阪市港区築港4-2-24にある、Osaka Bay Wheel民泊の親切な電話応答アシスタントです。"

const responseGuidelines = `%[1]s で自然な応答を生成してください。

電話でPollyが話しやすいように、簡潔でSpeech Synthesisに適したテキストを生成してください。特殊文字などは厳禁です。`

const flagRules = `以下の場合は 'needs_operator' フラグをTrueにしてください：
1. 検索結果が見つからない場合や、情報が不十分な場合
2. ユーザーが「オペレーターと話したい」「人と話したい」「スタッフに繋いでほしい」などと明確に要求している場合
3. 質問内容が緊急性を帯びている場合（火事、怪我、不審者など）

'needs_operator' フラグがTrueの場合は、assistant_response_textで「オペレーターにお繋ぎしますか？」と提案してください。
それ以外の場合は 'needs_operator' をFalseにしてください。

以下の場合は 'end_conversation' フラグをTrueにしてください：
1. ユーザーが「ありがとう」「もう大丈夫です」「以上です」など、会話を終了したい意図を示している場合
2. ユーザーが「他にはありません」「特にありません」など、これ以上の問い合わせがないことを明示している場合

'end_conversation' フラグがTrueの場合は、assistant_response_textで「承知いたしました」などの締めの挨拶を含めてください。
それ以外の場合は 'end_conversation' をFalseにしてください。

回答は以下のJSON形式で返してください：
{
  "assistant_response_text": "ユーザーへの応答テキスト（%[1]s）",
  "needs_operator": true または false,
  "end_conversation": true または false
}`

// KeyCode derives a room's key box code: the floor digit, "67", then the
// room digit. Anything but a three digit room yields "0000".
func KeyCode(room string) string {
	if len(room) != 3 || !utils.IsDigits(room) {
		return "0000"
	}
	return room[:1] + "67" + room[2:]
}

// Instructions personalizes the assistant for the caller. The key box code
// is only disclosed to approved guests during their stay.
func Instructions(guest *domain.GuestInfo, language string, now time.Time) string {
	var b strings.Builder
	b.WriteString(identity)
	b.WriteString("\n")
	if guest != nil {
		fmt.Fprintf(&b, "あなたの担当は、%s号室の%s様です。\n", guest.RoomNumber, guest.GuestName)
		if guest.ApprovalStatus == domain.StatusApproved && domain.WithinStay(guest.CheckInDate, guest.CheckOutDate, now) {
			fmt.Fprintf(&b, "%s号室のキーボックスの暗証番号のダイヤル4桁（**Key Box Code**）の番号は : %s\n",
				guest.RoomNumber, KeyCode(guest.RoomNumber))
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, responseGuidelines, language)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, flagRules, language)
	return b.String()
}

type answerJSON struct {
	AssistantResponseText string `json:"assistant_response_text"`
	NeedsOperator         bool   `json:"needs_operator"`
	EndConversation       bool   `json:"end_conversation"`
}

// ParseAnswer decodes the assistant's JSON reply, tolerating a markdown code
// fence around it. A reply without usable text becomes the system error
// message and ok is false.
func ParseAnswer(text, language string) (ans Answer, ok bool) {
	var out answerJSON
	if err := json.Unmarshal([]byte(stripFence(text)), &out); err != nil || strings.TrimSpace(out.AssistantResponseText) == "" {
		return Answer{AssistantResponseText: lingual.Message(language, lingual.SystemError)}, false
	}
	return Answer{
		AssistantResponseText: strings.TrimSpace(out.AssistantResponseText),
		NeedsOperator:         out.NeedsOperator,
		EndConversation:       out.EndConversation,
	}, true
}

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// drop the opening fence line, which may carry a language tag
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
