package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/articlecms/internal/repository"
)

// StateTracker はログイン試行ごとのCSRF対策stateトークンを管理する。
// stateはセッション行に保存されるため、同一ホスト上の並行ログインでも
// セッション間で漏れることはない。
type StateTracker struct {
	sessions repository.SessionRepository
}

// NewStateTracker はStateTrackerを生成する。
func NewStateTracker(sessions repository.SessionRepository) *StateTracker {
	return &StateTracker{sessions: sessions}
}

// Issue は推測不能なstateトークン（UUIDv4、128bit乱数）を生成し、
// セッションのpending stateとして保存して返す。
// 既存のpending stateがあれば上書きされる。
func (t *StateTracker) Issue(ctx context.Context, sessionID string) (string, error) {
	state := uuid.NewString()
	if err := t.sessions.SetOAuthState(ctx, sessionID, state); err != nil {
		return "", fmt.Errorf("failed to store state token: %w", err)
	}
	return state, nil
}

// ValidateAndConsume は受信stateをセッションのpending stateと完全一致で比較する。
// 結果にかかわらずpending stateは消費される（単回使用、リプレイ防止）。
// pending stateがない場合、受信stateが空の場合は常にfalseを返す。
func (t *StateTracker) ValidateAndConsume(ctx context.Context, sessionID, received string) (bool, error) {
	pending, err := t.sessions.TakeOAuthState(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to consume state token: %w", err)
	}
	if pending == "" || received == "" {
		return false, nil
	}
	return pending == received, nil
}
