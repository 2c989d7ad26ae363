package guest

import (
	"fmt"
	"net/url"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
)

func accessLink(appBaseURL, room, guestID, token string, channel domain.ContactChannel) string {
	link := fmt.Sprintf("%s/room/%s?guestId=%s&token=%s",
		appBaseURL, url.PathEscape(room), url.QueryEscape(guestID), url.QueryEscape(token))
	if channel == domain.ChannelSMS {
		link += "&source=sms"
	}
	return link
}

func accessSubject(lang string) string {
	if lang == "ja" {
		return "Osaka Bay Wheel ゲストアクセス"
	}
	return "Osaka Bay Wheel Guest Access"
}

func accessEmailBody(lang, link string) string {
	if lang == "ja" {
		return fmt.Sprintf(
			"ゲストページへのアクセスリンクです:\n"+
				"%s\n\n"+
				"このリンクは大切に保管してください。同じ部屋に宿泊するご家族・ご友人以外には共有しないでください。\n\n"+
				"複数のデバイスやブラウザからアクセスする場合も、このリンクを開くことでセッションを復元できます。\n\n"+
				"注意: 基本情報の入力が完了しないまま24時間経過するとこのリンクは無効になります。\n"+
				"基本情報送信後は、同じリンクで再アクセスしてセッションを復元できます。\n",
			link)
	}
	return fmt.Sprintf(
		"Guest page access link:\n"+
			"%s\n\n"+
			"Please keep this link secure. Do NOT share it with anyone except family or companions staying in the same room.\n\n"+
			"If you use multiple devices or browsers, opening this link restores your session.\n\n"+
			"Note: If you do NOT complete the basic information within 24 hours, this link becomes invalid.\n"+
			"After submitting the basic information you can still revisit using the same link to restore your session.\n",
		link)
}

func accessSMS(lang, link string) string {
	if lang == "ja" {
		return "【Osaka Bay Wheel】\nご宿泊ありがとうございます。\nこちらのリンクより安全に本人確認書類をアップロードいただけます:\n" + link
	}
	return "[Osaka Bay Wheel]\nThank you for staying with us.\nPlease securely upload your ID via this link:\n" + link
}

// transfer notices are written in Japanese for Japanese nationals only
func transferIsJapanese(nationality string) bool {
	return nationality == "Japan"
}

func transferEmail(nationality, guestName, room, link string) (subject, html string) {
	if transferIsJapanese(nationality) {
		return "部屋移動のお知らせ", fmt.Sprintf(
			`<h2>部屋移動のお知らせ</h2>
<p>%s 様</p>
<p>お部屋が <strong>%s</strong> に変更されました。</p>
<p>新しいお部屋でのアクセスを有効にするため、以下のリンクをクリックしてください：</p>
<p><a href="%s">アクセスを確認する</a></p>`, guestName, room, link)
	}
	return "Room Transfer Notification", fmt.Sprintf(
		`<h2>Room Transfer Notice</h2>
<p>Dear %s,</p>
<p>Your room has been changed to <strong>%s</strong>.</p>
<p>Please click the link below to activate access for your new room:</p>
<p><a href="%s">Verify Access</a></p>`, guestName, room, link)
}

func transferSMS(nationality, guestName, room, link string) string {
	if transferIsJapanese(nationality) {
		return fmt.Sprintf("【Osaka Bay Wheel】\n%s様、お部屋が%sに変更されました。新しいアクセスを有効にするため、こちらをクリックしてください: %s",
			guestName, room, link)
	}
	return fmt.Sprintf("[Osaka Bay Wheel]\nDear %s, your room has been changed to %s. Please click to activate access: %s",
		guestName, room, link)
}
