package collab

import (
	"context"
	"errors"
)

var MaxSemaphore int = 100

var (
	ErrSemaphoreTimeout = errors.New("Acquire Reach time limit")
	ErrSemaphoreNotHeld = errors.New("Release Failed, semaphore is not acquired")
)

// SemaphoreControl 限制并发数量（Kafka 发送、WebSocket 提交）
type SemaphoreControl struct {
	ch chan struct{}
}

// NewSemaphoreControl 创建容量为 n 的信号量，n <= 0 时使用 MaxSemaphore
func NewSemaphoreControl(n int) *SemaphoreControl {
	if n <= 0 {
		n = MaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, n)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrSemaphoreTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotHeld
	}
}
