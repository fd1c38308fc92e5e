package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisServicePublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	svc := newRedisServiceWithClient(pub, "casetrack:notifications")

	err := svc.Publish(context.Background(), EventTaskStarted, Payload{"taskID": "abc", "title": "Card casting", "caseID": "9"})
	require.NoError(t, err)
	assert.Equal(t, "casetrack:notifications", pub.channel)

	var got Notification
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, EventTaskStarted, got.Event)
	assert.Equal(t, "abc", got.TaskID)
	assert.Equal(t, "9", got.CaseID)
	assert.Equal(t, "Card casting started", got.Title)
	assert.NoError(t, svc.Close())
}

func TestRedisServiceWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection reset")}
	svc := newRedisServiceWithClient(pub, "c")
	err := svc.Publish(context.Background(), EventTest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
