package collector

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kit/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/common"
	"go-boxblur/pkg/queue"
)

func newTestCollector(t *testing.T, logger log.Logger) (*Collector, *queue.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(context.Background(), mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.EnsureGroups(context.Background()))

	c := NewCollector(client, "test", logger)
	c.blockTimeout = 20 * time.Millisecond
	return c, client, mr
}

func runCollector(t *testing.T, c *Collector) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("collector did not stop")
		}
	})
}

func TestHandleMarksStatus(t *testing.T) {
	ctx := context.Background()
	c, client, _ := newTestCollector(t, log.NewNopLogger())

	require.NoError(t, c.handle(ctx, &common.ResultMessage{RunID: "run-a", ImageID: 1, WorkerID: "w", OutputPath: "out/a_blurred.png"}))
	require.NoError(t, c.handle(ctx, &common.ResultMessage{RunID: "run-a", ImageID: 2, WorkerID: "w", Error: "decode failed"}))

	status, err := client.ImageStatus(ctx, "run-a", 1)
	require.NoError(t, err)
	require.Equal(t, common.StatusCompleted, status)

	status, err = client.ImageStatus(ctx, "run-a", 2)
	require.NoError(t, err)
	require.Equal(t, common.StatusFailed, status)

	s := c.Summary()
	require.Equal(t, 1, s.Completed)
	require.Equal(t, 1, s.Failed)
	require.Len(t, s.Results, 2)
}

func TestHandleIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCollector(t, log.NewNopLogger())

	res := &common.ResultMessage{RunID: "run-a", ImageID: 7, WorkerID: "w"}
	require.NoError(t, c.handle(ctx, res))
	require.NoError(t, c.handle(ctx, res))

	s := c.Summary()
	require.Equal(t, 1, s.Completed)
	require.Len(t, s.Results, 1)
}

func TestHandleKeepsRunsApart(t *testing.T) {
	ctx := context.Background()
	c, client, _ := newTestCollector(t, log.NewNopLogger())

	require.NoError(t, c.handle(ctx, &common.ResultMessage{RunID: "run-a", ImageID: 0, WorkerID: "w", Error: "boom"}))
	require.NoError(t, c.handle(ctx, &common.ResultMessage{RunID: "run-b", ImageID: 0, WorkerID: "w", OutputPath: "out/new_blurred.png"}))

	s := c.Summary()
	require.Equal(t, 1, s.Completed)
	require.Equal(t, 1, s.Failed)
	require.Len(t, s.Results, 2)

	status, err := client.ImageStatus(ctx, "run-a", 0)
	require.NoError(t, err)
	require.Equal(t, common.StatusFailed, status)

	status, err = client.ImageStatus(ctx, "run-b", 0)
	require.NoError(t, err)
	require.Equal(t, common.StatusCompleted, status)
}

func TestStartAndWait(t *testing.T) {
	c, client, _ := newTestCollector(t, log.NewNopLogger())
	runCollector(t, c)

	for i := 1; i <= 3; i++ {
		_, err := client.AddResult(context.Background(), &common.ResultMessage{RunID: "run-a", ImageID: i, WorkerID: "w"})
		require.NoError(t, err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, c.Wait(waitCtx, 3))
	require.Equal(t, 3, c.Summary().Completed)
}

func TestStartSkipsMalformedResults(t *testing.T) {
	ctx := context.Background()
	c, client, mr := newTestCollector(t, log.NewNopLogger())

	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })
	require.NoError(t, raw.XAdd(ctx, &redis.XAddArgs{
		Stream: "test:results",
		Values: map[string]interface{}{"data": "not json"},
	}).Err())
	_, err := client.AddResult(ctx, &common.ResultMessage{RunID: "run-a", ImageID: 1, WorkerID: "w"})
	require.NoError(t, err)

	runCollector(t, c)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, c.Wait(waitCtx, 1))
	require.Equal(t, 1, c.Summary().Completed)

	dead, err := raw.XLen(ctx, "test:dead").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, dead)
}

func TestAckFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	c, _, mr := newTestCollector(t, log.NewLogfmtLogger(&buf))

	mr.Close()
	c.ack(context.Background(), "1-0")

	require.Contains(t, buf.String(), "failed to ack result")
	require.Contains(t, buf.String(), "level=warn")
}

func TestWaitHonorsContext(t *testing.T) {
	c, _, _ := newTestCollector(t, log.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Wait(ctx, 1), context.DeadlineExceeded)
	require.NoError(t, c.Wait(context.Background(), 0))
}
