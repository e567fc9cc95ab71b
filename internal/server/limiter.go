package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// 拒绝原因，用作指标标签
const (
	RejectMaxConnections = "max_connections"
	RejectRate           = "rate"
)

// ConnectionLimiter 连接限流器：并发上限 + 令牌桶新建速率
type ConnectionLimiter struct {
	maxConns    int
	current     int
	mu          sync.Mutex
	rateLimiter *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数
//   - perSecond: 每秒最大新建连接数，突发等于该值；<=0 表示不限速
func NewConnectionLimiter(maxConns int, perSecond float64) *ConnectionLimiter {
	limit, burst := rate.Inf, 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(int(perSecond), 1)
	}
	return &ConnectionLimiter{
		maxConns:    maxConns,
		rateLimiter: rate.NewLimiter(limit, burst),
	}
}

// Acquire 获取连接许可
//
// 返回值:
//   - bool: 是否获取成功
//   - string: 失败原因
func (l *ConnectionLimiter) Acquire() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxConns {
		return false, RejectMaxConnections
	}

	if !l.rateLimiter.Allow() {
		return false, RejectRate
	}

	l.current++
	return true, ""
}

// Release 释放连接
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
