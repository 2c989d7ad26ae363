package lingual_test

import (
	"strings"
	"testing"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
)

func TestMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		lang string
		key  lingual.Key
		want string
	}{
		{"english", lingual.English, lingual.FollowUpQuestion, "Is there anything else I can help you with?"},
		{"japanese", lingual.Japanese, lingual.PromptForInquiry, "ご用件をどうぞ。"},
		{"unknown language falls back to japanese", "fr-FR", lingual.EndingMessage, "承知いたしました。お電話ありがとうございました。"},
		{"unknown key", lingual.English, lingual.Key("nope"), "Message key 'nope' not found for language 'en-US' or default 'ja-JP'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lingual.Message(tt.lang, tt.key); got != tt.want {
				t.Fatalf("Message(%q, %q) = %q, want %q", tt.lang, tt.key, got, tt.want)
			}
		})
	}
}

func TestEveryKeyInBothLanguages(t *testing.T) {
	keys := []lingual.Key{
		lingual.Welcome, lingual.ReceivedAndAnalyzing, lingual.PromptForInquiry, lingual.CouldNotUnderstand,
		lingual.RePromptInquiry, lingual.Hangup, lingual.ProcessingError, lingual.UrgentInquiry,
		lingual.GeneralInquiry, lingual.InquiryNotUnderstood, lingual.FollowUpQuestion, lingual.TimeoutMessage,
		lingual.EndingMessage, lingual.SystemError, lingual.PromptRoomNumber, lingual.PromptPhoneLast4,
		lingual.InvalidRoomNumber, lingual.InvalidPhoneLast4, lingual.AuthenticationFailed,
		lingual.TransferringToOperator, lingual.PromptForOperatorDTMF,
	}
	for _, lang := range []string{lingual.English, lingual.Japanese} {
		for _, k := range keys {
			if msg := lingual.Message(lang, k); strings.HasPrefix(msg, "Message key") {
				t.Errorf("%s missing %s", lang, k)
			}
		}
	}
}

func TestVoice(t *testing.T) {
	if v := lingual.Voice(lingual.Japanese); v != "Polly.Tomoko-Neural" {
		t.Fatalf("ja voice = %q", v)
	}
	if v := lingual.Voice("de-DE"); v != "Polly.Ruth-Neural" {
		t.Fatalf("default voice = %q", v)
	}
}
