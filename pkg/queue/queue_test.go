package queue_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
)

var echoed atomic.Int32

type echoJob struct {
	Val string `json:"val"`
}

func (j *echoJob) JobName() string { return "test.echo" }

func (j *echoJob) Handle(context.Context) error {
	if j.Val == "hello" {
		echoed.Add(1)
	}
	return nil
}

var failAttempts atomic.Int32

type failJob struct {
	SKU string `json:"sku"`
}

func (j *failJob) Handle(context.Context) error {
	failAttempts.Add(1)
	return errors.New("always fails")
}

func TestMain(m *testing.M) {
	ctx, cancel := context.WithCancel(context.Background())
	queue.SetBackoff(10 * time.Millisecond)
	queue.Register("test.echo", func() queue.Job { return &echoJob{} })
	queue.Register("*queue_test.failJob", func() queue.Job { return &failJob{} })
	wg := queue.StartWorkers(ctx, 2)

	code := m.Run()
	cancel()
	wg.Wait()
	os.Exit(code)
}

func TestDispatchAndProcess(t *testing.T) {
	before := echoed.Load()
	require.NoError(t, queue.Dispatch(context.Background(), &echoJob{Val: "hello"}))

	assert.Eventually(t, func() bool { return echoed.Load() == before+1 },
		2*time.Second, 10*time.Millisecond)
}

func TestFailedJobRetry(t *testing.T) {
	queue.SetMaxRetry(2)
	defer queue.SetMaxRetry(3)

	require.NoError(t, queue.Dispatch(context.Background(), &failJob{SKU: "SKU-1"}))

	assert.Eventually(t, func() bool {
		for _, f := range queue.FailedJobs() {
			if f.Type == "*queue_test.failJob" && f.Attempts == 2 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, failAttempts.Load(), int32(2))
}

func TestDispatchAfter(t *testing.T) {
	before := echoed.Load()
	require.NoError(t, queue.DispatchAfter(context.Background(), &echoJob{Val: "hello"}, 20*time.Millisecond))

	assert.Eventually(t, func() bool { return echoed.Load() == before+1 },
		2*time.Second, 10*time.Millisecond)
}

func TestDispatchConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- queue.Dispatch(context.Background(), &echoJob{Val: "c"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMemoryDriverFull(t *testing.T) {
	d := queue.NewMemoryDriver()
	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Push(context.Background(), []byte("x")))
	}
	assert.ErrorIs(t, d.Push(context.Background(), []byte("x")), queue.ErrQueueFull)
	assert.Equal(t, 1000, d.Len())
}
