package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrack/internal/notifications"
)

func TestNtfyServiceSendsHeaders(t *testing.T) {
	var (
		title, tags, priority string
		body                  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		tags = r.Header.Get("Tags")
		priority = r.Header.Get("Priority")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := notifications.NewNtfyService(srv.URL, time.Second)
	err := svc.Publish(context.Background(), notifications.EventTaskFailed, notifications.Payload{
		"category": "card_casting",
		"error":    "bad file",
		"target":   "/cases/4/cards",
	})
	require.NoError(t, err)

	assert.Equal(t, "Card Casting failed", title)
	assert.Equal(t, "casetrack,task,error", tags)
	assert.Equal(t, "high", priority)
	assert.Equal(t, "bad file\n/cases/4/cards", body)
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()

	svc := notifications.NewNtfyService(srv.URL, time.Second)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "topic closed")
}

func TestNtfyServiceWithoutTopicIsNoop(t *testing.T) {
	svc := notifications.NewNtfyService("  ", time.Second)
	assert.NoError(t, svc.Publish(context.Background(), notifications.EventTest, nil))
}
