package handler

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// flashCookieName は次のページ描画で一度だけ表示するメッセージを運ぶCookieの名前。
const flashCookieName = "flash"

// flashSeparator は複数メッセージをCookie値に詰める際の区切り文字。
const flashSeparator = "|"

// CookieConfig はハンドラーが発行するCookieの共通設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// setFlash はリダイレクト先で一度だけ表示するメッセージをCookieに設定する。
// Cookie値に使えない文字を避けるため、各メッセージはbase64urlで符号化する。
func setFlash(w http.ResponseWriter, config CookieConfig, messages ...string) {
	if len(messages) == 0 {
		return
	}

	encoded := make([]string, 0, len(messages))
	for _, m := range messages {
		encoded = append(encoded, base64.RawURLEncoding.EncodeToString([]byte(m)))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    strings.Join(encoded, flashSeparator),
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   60,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes はフラッシュメッセージを読み取り、Cookieを削除する。
// 復号に失敗したメッセージは黙って捨てる。
func popFlashes(w http.ResponseWriter, r *http.Request, config CookieConfig) []string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	var messages []string
	for _, part := range strings.Split(cookie.Value, flashSeparator) {
		decoded, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			continue
		}
		messages = append(messages, string(decoded))
	}
	return messages
}
