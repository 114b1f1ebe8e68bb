package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
)

// TaskResult 任务结果
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config Worker Pool 配置
type Config struct {
	Workers     int  // worker 数量
	NonBlocking bool // worker 全忙时 Submit 直接返回错误而不是等待
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:     8,
		NonBlocking: false,
	}
}

// Statistics 统计信息快照
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Failed    int64 // 提交失败
	Panicked  int64 // 任务 panic
}

// Pool 基于 ants 的 Worker Pool
type Pool struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	closed atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64

	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d", config.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	antsPool, err := ants.NewPool(config.Workers, ants.WithNonblocking(config.NonBlocking))
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	return &Pool{pool: antsPool, logger: logger}, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer func() {
			// panic 在这里恢复，Wait 返回时计数已经更新
			if r := recover(); r != nil {
				p.panicked.Add(1)
				p.logger.Error("worker panic", zap.Any("error", r))
			}
			p.completed.Add(1)
			p.wg.Done()
		}()
		task()
	})
	if err != nil {
		p.wg.Done()
		p.failed.Add(1)
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// SubmitWithResult 提交任务并获取结果，提交失败时结果里带上提交错误
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	err := p.Submit(func() {
		defer close(resultCh)
		result, err := task()
		resultCh <- TaskResult{Data: result, Error: err}
	})
	if err != nil {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	return resultCh
}

// Wait 等待所有已提交的任务完成
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Running 获取运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free 获取空闲 worker 数量
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Shutdown 等待已提交的任务完成后关闭
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.wg.Wait()
	p.pool.Release()
}
