package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_SubmitAndWait(t *testing.T) {
	p, err := New(&Config{Workers: 4}, zap.NewNop())
	require.NoError(t, err)
	defer p.Shutdown()

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(func() { n.Add(1) }))
	}
	p.Wait()

	assert.Equal(t, int64(100), n.Load())
	stats := p.Stats()
	assert.Equal(t, int64(100), stats.Submitted)
	assert.Equal(t, int64(100), stats.Completed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_SubmitWithResult(t *testing.T) {
	p, err := New(nil, zap.NewNop())
	require.NoError(t, err)
	defer p.Shutdown()

	res := <-p.SubmitWithResult(func() (interface{}, error) { return 42, nil })
	require.NoError(t, res.Error)
	assert.Equal(t, 42, res.Data)

	boom := errors.New("boom")
	res = <-p.SubmitWithResult(func() (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, res.Error, boom)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p, err := New(&Config{Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	p.Shutdown()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)

	res := <-p.SubmitWithResult(func() (interface{}, error) { return 1, nil })
	assert.ErrorIs(t, res.Error, ErrPoolClosed)

	// 重复关闭是安全的
	p.Shutdown()
}

func TestPool_PanicIsRecovered(t *testing.T) {
	p, err := New(&Config{Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.Submit(func() { panic("bad task") }))
	p.Wait()

	var ran atomic.Bool
	require.NoError(t, p.Submit(func() { ran.Store(true) }))
	p.Wait()

	assert.True(t, ran.Load())
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestNew_InvalidWorkers(t *testing.T) {
	_, err := New(&Config{Workers: 0}, zap.NewNop())
	assert.Error(t, err)
}
