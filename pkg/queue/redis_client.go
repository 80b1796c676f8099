package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-boxblur/pkg/common"
)

// ErrMalformedMessage marks a stream entry whose payload could not be decoded.
// Such entries are moved to the dead-letter stream and acknowledged.
var ErrMalformedMessage = errors.New("malformed message")

const (
	workersGroup    = "workers"
	collectorsGroup = "collectors"
	imageInfoTTL    = 24 * time.Hour
)

// ClaimedJob is a job taken over from a consumer that stopped acknowledging it.
type ClaimedJob struct {
	ID  string
	Job *common.JobMessage
}

// RedisClient carries blur jobs and results over Redis streams.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, prefix string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) jobsStream() string {
	return r.prefix + ":jobs"
}

func (r *RedisClient) resultsStream() string {
	return r.prefix + ":results"
}

func (r *RedisClient) deadStream() string {
	return r.prefix + ":dead"
}

func (r *RedisClient) imageInfoKey(runID string, imageID int) string {
	return fmt.Sprintf("%s:run:%s:image:%d:info", r.prefix, runID, imageID)
}

func (r *RedisClient) imageStatusKey(runID string, imageID int) string {
	return fmt.Sprintf("%s:run:%s:image:%d:status", r.prefix, runID, imageID)
}

// EnsureGroups creates the consumer groups, starting from the beginning of
// each stream so jobs queued before the first worker are not skipped.
func (r *RedisClient) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{
		r.jobsStream():    workersGroup,
		r.resultsStream(): collectorsGroup,
	} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, r.jobsStream(), job)
}

func (r *RedisClient) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, r.resultsStream(), res)
}

func (r *RedisClient) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": b},
	}).Result()
}

// ReadJob waits up to block for the next job. It returns an empty id and a
// nil job when nothing arrived in time.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	var job common.JobMessage
	id, err := r.read(ctx, r.jobsStream(), workersGroup, consumer, block, &job)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &job, nil
}

// ReadResult waits up to block for the next result, like ReadJob.
func (r *RedisClient) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	var res common.ResultMessage
	id, err := r.read(ctx, r.resultsStream(), collectorsGroup, consumer, block, &res)
	if err != nil || id == "" {
		return "", nil, err
	}
	return id, &res, nil
}

func (r *RedisClient) read(ctx context.Context, stream, group, consumer string, block time.Duration, v any) (string, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return "", nil
	}

	msg := result[0].Messages[0]
	if err := decodeMessage(msg, v); err != nil {
		return "", r.deadLetter(ctx, stream, group, msg, err)
	}
	return msg.ID, nil
}

// deadLetter copies an undecodable entry to the dead-letter stream and acks
// it so it is never delivered or reclaimed again. The returned error wraps
// ErrMalformedMessage.
func (r *RedisClient) deadLetter(ctx context.Context, stream, group string, msg redis.XMessage, decodeErr error) error {
	err := fmt.Errorf("%w: %s %s: %v", ErrMalformedMessage, stream, msg.ID, decodeErr)

	addErr := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.deadStream(),
		Values: map[string]interface{}{
			"stream": stream,
			"id":     msg.ID,
			"data":   bytesFromInterface(msg.Values["data"]),
			"error":  decodeErr.Error(),
		},
	}).Err()
	if addErr != nil {
		return errors.Join(err, fmt.Errorf("failed to dead-letter %s: %w", msg.ID, addErr))
	}
	if ackErr := r.client.XAck(ctx, stream, group, msg.ID).Err(); ackErr != nil {
		return errors.Join(err, fmt.Errorf("failed to ack %s: %w", msg.ID, ackErr))
	}
	return err
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.jobsStream(), workersGroup, id).Err()
}

func (r *RedisClient) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.resultsStream(), collectorsGroup, id).Err()
}

func (r *RedisClient) StoreImageInfo(ctx context.Context, info *common.ImageInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.imageInfoKey(info.RunID, info.ID), b, imageInfoTTL).Err()
}

func (r *RedisClient) GetImageInfo(ctx context.Context, runID string, imageID int) (*common.ImageInfo, error) {
	data, err := r.client.Get(ctx, r.imageInfoKey(runID, imageID)).Bytes()
	if err != nil {
		return nil, err
	}

	var info common.ImageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *RedisClient) MarkImageCompleted(ctx context.Context, runID string, imageID int) error {
	return r.client.Set(ctx, r.imageStatusKey(runID, imageID), common.StatusCompleted, imageInfoTTL).Err()
}

func (r *RedisClient) MarkImageFailed(ctx context.Context, runID string, imageID int) error {
	return r.client.Set(ctx, r.imageStatusKey(runID, imageID), common.StatusFailed, imageInfoTTL).Err()
}

// ImageStatus returns the recorded status, or "" when none was recorded.
func (r *RedisClient) ImageStatus(ctx context.Context, runID string, imageID int) (string, error) {
	status, err := r.client.Get(ctx, r.imageStatusKey(runID, imageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return status, err
}

// ClaimStaleJobs takes over up to count jobs that have been pending longer
// than minIdle so consumer can process them again. Undecodable entries are
// dead-lettered and skipped; the valid jobs are returned together with an
// error wrapping ErrMalformedMessage for each skipped entry.
func (r *RedisClient) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.jobsStream(),
		Group:  workersGroup,
		Idle:   minIdle,
		Count:  int64(count),
		Start:  "-",
		End:    "+",
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.jobsStream(),
		Group:    workersGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]ClaimedJob, 0, len(claimed))
	var skipped []error
	for _, msg := range claimed {
		var job common.JobMessage
		if err := decodeMessage(msg, &job); err != nil {
			skipped = append(skipped, r.deadLetter(ctx, r.jobsStream(), workersGroup, msg, err))
			continue
		}
		jobs = append(jobs, ClaimedJob{ID: msg.ID, Job: &job})
	}
	return jobs, errors.Join(skipped...)
}

func decodeMessage(msg redis.XMessage, v any) error {
	raw, ok := msg.Values["data"]
	if !ok {
		return errors.New("missing data field")
	}
	return json.Unmarshal(bytesFromInterface(raw), v)
}

func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
