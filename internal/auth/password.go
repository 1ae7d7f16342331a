package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost はbcryptのワークファクタ。
const defaultCost = 12

// ErrPasswordMismatch はパスワードがハッシュと一致しないことを表す。
var ErrPasswordMismatch = errors.New("password does not match")

// Passwords はbcryptによるパスワードのハッシュ化と検証を提供する。
// costを注入可能にしているのはテスト高速化のため（最小cost=4）。
type Passwords struct {
	cost int
}

// NewPasswords はデフォルトcostのPasswordsを生成する。
func NewPasswords() *Passwords {
	return &Passwords{cost: defaultCost}
}

// NewPasswordsWithCost は指定costのPasswordsを生成する。テスト用。
func NewPasswordsWithCost(cost int) *Passwords {
	return &Passwords{cost: cost}
}

// Hash は平文パスワードをbcryptでハッシュ化する。
// bcryptは72バイトを超える入力を黙って切り詰めるため、明示的に拒否する。
func (p *Passwords) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("password must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードが保存済みハッシュと一致するかを検証する。
// bcryptの比較は内部で定数時間比較を行うため、タイミング攻撃に対して安全。
func (p *Passwords) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("failed to compare password hash: %w", err)
	}
	return nil
}
