package model

import "time"

// Session はブラウザセッションを表す。
// ログイン前の匿名セッションも存在し、OAuthフローのstateトークンを保持する。
// UserIDが0の間は匿名で、ログイン成功時にユーザーIDが束縛される。
type Session struct {
	ID         string
	UserID     int64  // 0 = 匿名（未ログイン）
	OAuthState string // 空文字列 = pending stateなし
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Authenticated はセッションにユーザーが束縛されているかを返す。
func (s *Session) Authenticated() bool {
	return s.UserID != 0
}
