package model

import (
	"errors"
	"fmt"
)

// AuthError は認証失敗の内部分類を表す。
// Reasonはサーバーログ専用で、ブラウザには汎用メッセージのみを返すこと。
type AuthError struct {
	Code   string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Reason)
}

// 認証エラーコード
const (
	// ローカルログイン
	ErrCodeUnknownUser    = "UNKNOWN_USER"
	ErrCodeBadCredentials = "BAD_CREDENTIALS"

	// 外部IdPログイン
	ErrCodeStateMismatch  = "STATE_MISMATCH"
	ErrCodeProviderDenied = "PROVIDER_DENIED"
	ErrCodeMissingCode    = "MISSING_CODE"
	ErrCodeProviderError  = "PROVIDER_ERROR"
)

// NewUnknownUserError は存在しないユーザー名でのログイン試行エラーを生成する。
func NewUnknownUserError(username string) *AuthError {
	return &AuthError{
		Code:   ErrCodeUnknownUser,
		Reason: fmt.Sprintf("unknown user %q", username),
	}
}

// NewBadCredentialsError はパスワード不一致エラーを生成する。
func NewBadCredentialsError(username string) *AuthError {
	return &AuthError{
		Code:   ErrCodeBadCredentials,
		Reason: fmt.Sprintf("bad password for user %q", username),
	}
}

// NewStateMismatchError はコールバックのstate不一致エラーを生成する。
func NewStateMismatchError() *AuthError {
	return &AuthError{
		Code:   ErrCodeStateMismatch,
		Reason: "callback state does not match the pending state for this session",
	}
}

// NewProviderDeniedError はIdPがerrorパラメータを返した場合のエラーを生成する。
func NewProviderDeniedError(errCode, description string) *AuthError {
	return &AuthError{
		Code:   ErrCodeProviderDenied,
		Reason: fmt.Sprintf("provider returned error %q: %s", errCode, description),
	}
}

// NewMissingCodeError はコールバックに認可コードが含まれない場合のエラーを生成する。
func NewMissingCodeError() *AuthError {
	return &AuthError{
		Code:   ErrCodeMissingCode,
		Reason: "no authorization code in callback",
	}
}

// NewProviderError はトークン交換失敗・クレーム不備のエラーを生成する。
func NewProviderError(reason string) *AuthError {
	return &AuthError{
		Code:   ErrCodeProviderError,
		Reason: reason,
	}
}

// AuthErrorCode はエラーがAuthErrorの場合そのコードを返す。
// AuthErrorでない場合は空文字列を返す。
func AuthErrorCode(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}

// ErrDuplicateUser はusernameの一意制約違反を表す。
// 同一プリンシパルの同時プロビジョニングで発生し、呼び出し側は再取得で回復する。
var ErrDuplicateUser = errors.New("user already exists")
