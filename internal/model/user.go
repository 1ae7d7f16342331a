// Package model はドメインモデルを定義する。
package model

import "time"

// User はCMSの利用ユーザーを表す。
// usernameは安定識別子で、ローカル登録ユーザーの場合は任意の名前、
// 外部IdPから自動プロビジョニングされた場合はプリンシパル名（メールアドレス等）になる。
type User struct {
	ID          int64
	Username    string
	DisplayName string
	Credential  Credential
	IsAdmin     bool
	CreatedAt   time.Time
}

// Credential はユーザーの認証資格情報を表す。
// ローカルパスワードハッシュを持つ場合と、外部IdP認証のみ
// （ハッシュなし）の場合の2状態を取る。
type Credential struct {
	hash string
}

// LocalCredential はbcryptハッシュを持つローカル資格情報を生成する。
func LocalCredential(hash string) Credential {
	return Credential{hash: hash}
}

// FederatedOnly はローカルパスワードを持たない資格情報を生成する。
// 外部IdPから自動プロビジョニングされたユーザーに使用する。
func FederatedOnly() Credential {
	return Credential{}
}

// Hash は保存されたパスワードハッシュを返す。
// ローカル資格情報を持たない場合はok=falseを返す。
func (c Credential) Hash() (hash string, ok bool) {
	if c.hash == "" {
		return "", false
	}
	return c.hash, true
}
