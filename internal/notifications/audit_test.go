package notifications

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer shared with the subscriber goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartEventAudit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	var out syncBuffer
	logger := slog.New(slog.NewJSONHandler(&out, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := NewNotifier(rdb)
	require.NoError(t, StartEventAudit(ctx, n, logger))

	require.NoError(t, n.PublishPostStatus(context.Background(), "u1", PostStatusEvent{
		Type: EventPostPublished, PostID: "p1", Status: "posted",
	}))
	require.NoError(t, rdb.Publish(context.Background(), UserChannel("u2"), "{not json").Err())

	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, `"post_id":"p1"`) && strings.Contains(s, "malformed post status event")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `"user_id":"u1"`)
	assert.Contains(t, out.String(), `"type":"post_published"`)
}

func TestStartEventAudit_WithoutRedis(t *testing.T) {
	assert.NoError(t, StartEventAudit(context.Background(), NewNotifier(nil), nil))
}
