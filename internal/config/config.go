package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Microsoft認証（OAuth2/OIDC 認可コードフロー）
	ClientID     string
	ClientSecret string
	Authority    string
	RedirectPath string
	Scopes       []string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Azure Blob Storage（画像アップロード）
	BlobAccount   string
	BlobContainer string
	BlobKey       string

	// ローカルログインのデモモード。
	// trueの場合のみ、パスワードハッシュ未設定ユーザーへの固定パスワードを許可する。
	DemoMode bool

	// Rate Limit（ログイン試行 req/min/セッション）
	RateLimitLogin int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ClientID = os.Getenv("CLIENT_ID")
	if cfg.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}

	cfg.ClientSecret = os.Getenv("CLIENT_SECRET")
	if cfg.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}

	cfg.Authority = strings.TrimRight(os.Getenv("AUTHORITY"), "/")
	if cfg.Authority == "" {
		missing = append(missing, "AUTHORITY")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedirectPath = getEnvString("REDIRECT_PATH", "/getAToken")
	if !strings.HasPrefix(cfg.RedirectPath, "/") {
		return nil, fmt.Errorf("REDIRECT_PATH must start with '/': %q", cfg.RedirectPath)
	}
	cfg.Scopes = strings.Fields(getEnvString("OAUTH_SCOPES", "User.Read"))
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.BlobAccount = getEnvString("BLOB_ACCOUNT", "")
	cfg.BlobContainer = getEnvString("BLOB_CONTAINER", "images")
	cfg.BlobKey = getEnvString("BLOB_STORAGE_KEY", "")
	cfg.DemoMode = getEnvBool("DEMO_MODE", false)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

// RedirectURL はIdPに登録するコールバックURLを返す。
func (c *Config) RedirectURL() string {
	return c.BaseURL + c.RedirectPath
}

// BlobConfigured は画像アップロード先のBlob Storageが設定済みかを返す。
func (c *Config) BlobConfigured() bool {
	return c.BlobAccount != "" && c.BlobKey != ""
}

// SessionTTL はセッション有効期間をtime.Durationで返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
