package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/hitoshi/articlecms/internal/model"
)

// MicrosoftConfig はMicrosoft IdPの設定。
type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	// Authority はテナント別の認証局URL（例: "https://login.microsoftonline.com/{tenant}"）。
	Authority   string
	RedirectURL string
	// Scopes は追加で要求するスコープ。openid/profile/emailは常に付与される。
	Scopes []string

	// IssuerURL はOIDCディスカバリに使うissuer。
	// 未指定の場合はAuthority + "/v2.0"を使用する。テスト用にオーバーライド可能。
	IssuerURL string
}

// MicrosoftProvider はMicrosoft IdPに対する認可コードフローの実装。
// ディスカバリで取得したエンドポイントを使い、IDトークンは署名検証のうえで受け入れる。
type MicrosoftProvider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewMicrosoftProvider はOIDCディスカバリを実行してMicrosoftProviderを生成する。
// ディスカバリはissuerへのネットワークアクセスを伴う。
func NewMicrosoftProvider(ctx context.Context, config MicrosoftConfig) (*MicrosoftProvider, error) {
	issuer := config.IssuerURL
	if issuer == "" {
		issuer = config.Authority + "/v2.0"
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider: %w", err)
	}

	scopes := []string{oidc.ScopeOpenID, "profile", "email"}
	scopes = append(scopes, config.Scopes...)

	return &MicrosoftProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
	}, nil
}

// AuthCodeURL は認可エンドポイントURLを生成する。
// client_secretはトークン交換でのみ使用され、このURLには含まれない。
func (p *MicrosoftProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange は認可コードをトークンに交換し、IDトークンを検証してクレームを返す。
// 交換失敗・IDトークン欠落・検証失敗はすべてPROVIDER_ERRORに分類する。
func (p *MicrosoftProvider) Exchange(ctx context.Context, code string) (*Claims, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, model.NewProviderError(fmt.Sprintf("token exchange failed: %v", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, model.NewProviderError("token response contains no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, model.NewProviderError(fmt.Sprintf("id_token verification failed: %v", err))
	}

	var raw struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return nil, model.NewProviderError(fmt.Sprintf("failed to parse id_token claims: %v", err))
	}

	return &Claims{
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
		Name:              raw.Name,
	}, nil
}

// compile-time interface check
var _ IdentityProvider = (*MicrosoftProvider)(nil)
