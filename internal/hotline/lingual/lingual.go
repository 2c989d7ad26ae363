// Package lingual holds everything the hotline says, per language, and the
// voice it says it in.
package lingual

import "fmt"

const (
	Japanese = "ja-JP"
	English  = "en-US"

	// DefaultLanguage is used for calls that never selected one.
	DefaultLanguage = English
	// fallbackLanguage fills in keys missing from the caller's language.
	fallbackLanguage = Japanese
)

type Key string

const (
	Welcome                Key = "welcome"
	ReceivedAndAnalyzing   Key = "received_and_analyzing"
	PromptForInquiry       Key = "prompt_for_inquiry"
	CouldNotUnderstand     Key = "could_not_understand"
	RePromptInquiry        Key = "re_prompt_inquiry"
	Hangup                 Key = "hangup"
	ProcessingError        Key = "processing_error"
	UrgentInquiry          Key = "urgent_inquiry"
	GeneralInquiry         Key = "general_inquiry"
	InquiryNotUnderstood   Key = "inquiry_not_understood"
	FollowUpQuestion       Key = "follow_up_question"
	TimeoutMessage         Key = "timeout_message"
	EndingMessage          Key = "ending_message"
	SystemError            Key = "system_error"
	PromptRoomNumber       Key = "prompt_room_number"
	PromptPhoneLast4       Key = "prompt_phone_last4"
	InvalidRoomNumber      Key = "invalid_room_number"
	InvalidPhoneLast4      Key = "invalid_phone_last4"
	AuthenticationFailed   Key = "authentication_failed"
	TransferringToOperator Key = "transferring_to_operator"
	PromptForOperatorDTMF  Key = "prompt_for_operator_dtmf"
)

// Bilingual prompts played before a language is known.
const (
	LanguageMenuEnglish  = "For English, press 1."
	LanguageMenuJapanese = "日本語をご希望の場合は2を押してください。"
	NoInputEnglish       = "We could not understand your input. Please try calling again."
	NoInputJapanese      = "入力が確認できませんでした。もう一度おかけ直しください。"
)

var messages = map[string]map[Key]string{
	Japanese: {
		Welcome:                "お電話ありがとうございます。こちらは大阪ベイウィールのAI自動応答です。",
		ReceivedAndAnalyzing:   "メッセージを受け取りました。解析します。少々お待ちください。",
		PromptForInquiry:       "ご用件をどうぞ。",
		CouldNotUnderstand:     "聞き取れませんでした。",
		RePromptInquiry:        "お手数ですが、もう一度、ご用件をお話しください。",
		Hangup:                 "お手数ですが、もう一度おかけ直しください。",
		ProcessingError:        "システムエラーが発生しました。申し訳ありませんが、後ほどおかけ直しください。",
		UrgentInquiry:          "緊急のお問い合わせと判断しました。担当者にお繋ぎします。",
		GeneralInquiry:         "一般のお問い合わせと判断しました。ただいま情報をお調べしますので、少々お待ちください。",
		InquiryNotUnderstood:   "お問い合わせ内容を解析できませんでした。可能な限りゆっくり話してください。",
		FollowUpQuestion:       "他にもご用件はございますか？",
		TimeoutMessage:         "タイムアウトしました。またご用件がございましたら、おかけ直しください。お電話ありがとうございました。",
		EndingMessage:          "承知いたしました。お電話ありがとうございました。",
		SystemError:            "システムエラーのため、これ以上の対応はできません。申し訳ありません。",
		PromptRoomNumber:       "お部屋番号を3桁で入力してください。",
		PromptPhoneLast4:       "ご登録の電話番号の下4桁を入力してください。",
		InvalidRoomNumber:      "入力されたお部屋番号は確認できませんでした。",
		InvalidPhoneLast4:      "電話番号の下4桁を正しく入力してください。",
		AuthenticationFailed:   "ご宿泊者の情報を確認できませんでした。恐れ入りますが、お電話を終了いたします。",
		TransferringToOperator: "担当者にお繋ぎします。少々お待ちください。",
		PromptForOperatorDTMF:  "担当者にお繋ぎする場合は1を、他のご用件の場合は2を押してください。",
	},
	English: {
		Welcome:                "Thank you for calling. This is the Osaka Bay Wheel AI automated attendant.",
		ReceivedAndAnalyzing:   "Message received. I am analyzing it. Please wait a moment.",
		PromptForInquiry:       "How can I help you?",
		CouldNotUnderstand:     "I couldn't understand your request.",
		RePromptInquiry:        "Could you please state your inquiry again?",
		Hangup:                 "Please try calling again.",
		ProcessingError:        "A system error occurred. I apologize, please try calling back later.",
		UrgentInquiry:          "I've identified this as an urgent inquiry. I will connect you with a representative.",
		GeneralInquiry:         "I've identified this as a general inquiry. I'm looking that up for you now, please wait a moment.",
		InquiryNotUnderstood:   "I was unable to analyze your inquiry. Please try speaking as slowly as possible.",
		FollowUpQuestion:       "Is there anything else I can help you with?",
		TimeoutMessage:         "The session has timed out. If you have any other inquiries, please call again. Thank you for your call.",
		EndingMessage:          "Understood. Thank you for your call.",
		SystemError:            "Due to a system error, I cannot process further requests. I apologize for the inconvenience.",
		PromptRoomNumber:       "Please enter your three digit room number.",
		PromptPhoneLast4:       "Please enter the last four digits of your registered phone number.",
		InvalidRoomNumber:      "We could not find that room number.",
		InvalidPhoneLast4:      "Please enter exactly four digits.",
		AuthenticationFailed:   "We could not verify your stay with the details provided. This call will now end.",
		TransferringToOperator: "Connecting you to a representative. Please hold.",
		PromptForOperatorDTMF:  "To speak with a representative, press 1. For other inquiries, press 2.",
	},
}

var voices = map[string]string{
	Japanese: "Polly.Tomoko-Neural",
	English:  "Polly.Ruth-Neural",
}

// Supported reports whether lang has its own message set.
func Supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// Message returns the text for key in lang, falling back to Japanese. A key
// missing from both yields a diagnostic string rather than silence.
func Message(lang string, key Key) string {
	if msg, ok := messages[lang][key]; ok {
		return msg
	}
	if msg, ok := messages[fallbackLanguage][key]; ok {
		return msg
	}
	return fmt.Sprintf("Message key '%s' not found for language '%s' or default '%s'", key, lang, fallbackLanguage)
}

// Voice returns the Polly voice for lang, defaulting to the English voice.
func Voice(lang string) string {
	if v, ok := voices[lang]; ok {
		return v
	}
	return voices[DefaultLanguage]
}
