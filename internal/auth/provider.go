package auth

import "context"

// Claims はIDトークンから取り出したユーザー情報を表す。
type Claims struct {
	PreferredUsername string
	Email             string
	Name              string
}

// Principal は安定識別子を返す。
// preferred_username、emailの順で採用し、どちらもない場合は"unknown"を返す。
func (c *Claims) Principal() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	if c.Email != "" {
		return c.Email
	}
	return "unknown"
}

// DisplayName は表示名を返す。nameクレームがない場合はプリンシパルで代用する。
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Principal()
}

// IdentityProvider はOAuth2/OIDC認可コードフローのIdP側2操作のインターフェース。
type IdentityProvider interface {
	// AuthCodeURL は認可エンドポイントURLを生成する。ネットワークアクセスなし。
	// client_secretをURLに含めてはならない。
	AuthCodeURL(state string) string

	// Exchange は認可コードをトークンに交換し、検証済みIDトークンのクレームを返す。
	// 認可コードは再利用できないため、呼び出し側はリトライしてはならない。
	Exchange(ctx context.Context, code string) (*Claims, error)
}
