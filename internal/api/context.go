package api

import "context"

// anonymousUser 未启用鉴权时的占位身份，额度按单用户计。
const anonymousUser = "anonymous"

type userContextKey struct{}

// WithUser 注入用户标识到 context
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFrom 从 context 提取用户标识，缺失时返回匿名身份。
func UserFrom(ctx context.Context) string {
	if id, ok := ctx.Value(userContextKey{}).(string); ok && id != "" {
		return id
	}
	return anonymousUser
}
