package run

import (
	"context"
	"time"
)

// Clock 动画时钟。编排器的所有节拍延迟都经过它，
// 测试里注入零延迟时钟即可得到确定性的事件序列。
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock 真实时钟。
type WallClock struct{}

func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InstantClock 零延迟时钟（测试用）。记录被请求的延迟序列。
type InstantClock struct {
	Slept []time.Duration
}

func (c *InstantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.Slept = append(c.Slept, d)
	return ctx.Err()
}
