// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ArticleSanitizer は記事本文のHTMLをサニタイズし、XSS攻撃から
// 閲覧者を保護する。bluemondayの許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ArticleSanitizer は記事本文のサニタイズを行う。
// bluemondayのポリシーを保持し、スレッドセーフに動作する。
type ArticleSanitizer struct {
	policy *bluemonday.Policy
}

// NewArticleSanitizer はArticleSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h2, h3, img
//   - scriptやon*イベント属性は許可リスト外のため自動的に除去される
//   - imgのsrc属性はhttpsスキームのみ許可
//   - aタグにはtarget="_blank"とrel="noopener noreferrer"を強制付与
func NewArticleSanitizer() *ArticleSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h2", "h3",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &ArticleSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
// 同一入力に対して常に同一出力を返す（冪等）。
func (s *ArticleSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
