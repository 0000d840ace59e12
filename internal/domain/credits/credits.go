package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "neurodata/internal/platform/log"
)

// ErrQuotaExhausted 本月额度已用完，执行应被拦截。
var ErrQuotaExhausted = errors.New("monthly workflow quota exhausted")

// Counter 月度用量计数后端（通常是 Redis INCR/DECR）。
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// TierResolver 解析用户所属套餐。为 nil 时所有用户按默认套餐。
type TierResolver func(ctx context.Context, userID string) (string, error)

// Usage 额度查询结果。
type Usage struct {
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Tier      string `json:"tier"`
	Month     string `json:"month"`
}

// Config 套餐限额配置。
type Config struct {
	FreeLimit   int64
	ProLimit    int64
	DefaultTier string
	KeyNS       string
}

// Ledger 月度工作流额度账本。
// 计数按自然月滚动：键随 YYYY-MM 变化，上月用量自然过期。
type Ledger struct {
	counter Counter
	cfg     Config
	tiers   TierResolver
	now     func() time.Time
}

// NewLedger 创建账本。counter 为 nil 时额度检查全部放行（演示模式）。
func NewLedger(counter Counter, cfg Config, tiers TierResolver) *Ledger {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = "free"
	}
	if cfg.KeyNS == "" {
		cfg.KeyNS = "credits"
	}
	return &Ledger{counter: counter, cfg: cfg, tiers: tiers, now: time.Now}
}

// Usage 返回当前自然月的用量、限额与套餐。
func (l *Ledger) Usage(ctx context.Context, userID string) (Usage, error) {
	tier, limit, err := l.tierLimit(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	month := l.monthOf()
	u := Usage{Limit: limit, Tier: tier, Month: month}

	if l.counter == nil {
		u.Remaining = limit
		return u, nil
	}
	used, err := l.counter.Get(ctx, l.key(userID, month))
	if err != nil {
		return Usage{}, fmt.Errorf("read credit counter: %w", err)
	}
	u.Used = used
	u.Remaining = limit - used
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	return u, nil
}

// Consume 占用一次额度。额度耗尽返回 ErrQuotaExhausted，调用方不应发起执行。
// 先 INCR 再比较限额：并发请求在临界值上只有一个能通过，超限的自增当场回退。
func (l *Ledger) Consume(ctx context.Context, userID string) (Usage, error) {
	tier, limit, err := l.tierLimit(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	month := l.monthOf()
	u := Usage{Limit: limit, Tier: tier, Month: month}

	if l.counter == nil {
		u.Used = 1
		u.Remaining = limit - 1
		if u.Remaining < 0 {
			u.Remaining = 0
		}
		return u, nil
	}

	key := l.key(userID, month)
	used, err := l.counter.Incr(ctx, key)
	if err != nil {
		return Usage{}, fmt.Errorf("bump credit counter: %w", err)
	}
	if used > limit {
		if _, derr := l.counter.Decr(ctx, key); derr != nil {
			applog.Warn("⚠️ 超限计数回退失败", "user", userID, "error", derr)
		}
		u.Used = limit
		applog.Warn("⚠️ 工作流额度耗尽", "user", userID, "tier", tier, "used", u.Used, "limit", limit)
		return u, ErrQuotaExhausted
	}
	u.Used = used
	u.Remaining = limit - used
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	return u, nil
}

// Refund 回补一次已占用的额度。用于执行在开始前被拒绝时的补偿回滚，
// 退款后的请求不计入当月用量。
func (l *Ledger) Refund(ctx context.Context, userID string) error {
	if l.counter == nil {
		return nil
	}
	if _, err := l.counter.Decr(ctx, l.key(userID, l.monthOf())); err != nil {
		return fmt.Errorf("refund credit: %w", err)
	}
	return nil
}

func (l *Ledger) tierLimit(ctx context.Context, userID string) (string, int64, error) {
	tier := l.cfg.DefaultTier
	if l.tiers != nil {
		resolved, err := l.tiers(ctx, userID)
		if err != nil {
			return "", 0, fmt.Errorf("resolve tier: %w", err)
		}
		if resolved != "" {
			tier = resolved
		}
	}
	switch tier {
	case "pro":
		return tier, l.cfg.ProLimit, nil
	default:
		return tier, l.cfg.FreeLimit, nil
	}
}

func (l *Ledger) monthOf() string {
	return l.now().UTC().Format("2006-01")
}

func (l *Ledger) key(userID, month string) string {
	return fmt.Sprintf("%s:%s:%s", l.cfg.KeyNS, userID, month)
}
