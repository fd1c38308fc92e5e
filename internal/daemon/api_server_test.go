package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrack/internal/api"
	"casetrack/internal/tasks"
	"casetrack/internal/testsupport"
)

func startAPI(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, *testsupport.Backend) {
	t.Helper()
	d, fake := newTestDaemon(t, opts...)
	require.NoError(t, d.Start(context.Background()))
	return d, fake
}

func call(t *testing.T, d *Daemon, method, target, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.api.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPITrackListAndGet(t *testing.T) {
	d, fake := startAPI(t)
	fake.Script("remote-1", testsupport.StatusJSON(`{"status":"PROGRESS","info":{"status":"classifying","progress":45}}`))

	var tracked api.TrackResponse
	code := call(t, d, http.MethodPost, "/api/tasks", `{"id":"remote-1","context":{"category":"evidence_analysis","caseId":"9"}}`, &tracked)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, tracked.Added)
	assert.Equal(t, "9", tracked.Task.Context.CaseID)

	code = call(t, d, http.MethodPost, "/api/tasks", `{"id":"remote-1"}`, &tracked)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, tracked.Added)

	require.Eventually(t, func() bool {
		job, err := d.deps.Tracker.Get("remote-1")
		return err == nil && job.State == tasks.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	var list api.TaskListResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodGet, "/api/tasks?state=active", "", &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 45, list.Items[0].Progress)
	assert.Equal(t, 1, list.Counts["active"])
	require.Len(t, list.Groups, len(tasks.AllStates()))

	var one api.TaskResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodGet, "/api/tasks/remote-1", "", &one))
	assert.Equal(t, "active", one.Task.State)
}

func TestAPIErrorMapping(t *testing.T) {
	d, fake := startAPI(t)
	fake.Script("pending", testsupport.StatusJSON(`{"status":"PENDING"}`))

	var errResp api.ErrorResponse
	assert.Equal(t, http.StatusNotFound, call(t, d, http.MethodGet, "/api/tasks/nope", "", &errResp))
	assert.Contains(t, errResp.Error, "not found")

	assert.Equal(t, http.StatusNotFound, call(t, d, http.MethodDelete, "/api/tasks/nope", "", nil))
	assert.Equal(t, http.StatusBadRequest, call(t, d, http.MethodGet, "/api/tasks?state=bogus", "", nil))
	assert.Equal(t, http.StatusBadRequest, call(t, d, http.MethodPost, "/api/tasks", `{"id":" "}`, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, d, http.MethodPost, "/api/submit/unknown", `{"case_id":"1"}`, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, d, http.MethodGet, "/api/notifications?since=x", "", nil))

	_, _, err := d.deps.Tracker.Add(context.Background(), "pending", tasks.Context{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, call(t, d, http.MethodPost, "/api/tasks/pending/retry", "", nil))
}

func TestAPISubmitRegistersAndReportsFailures(t *testing.T) {
	d, fake := startAPI(t)
	fake.OnSubmit("/cards/cast", testsupport.StatusJSON(`{"task_ids":["c1","c2"]}`))
	fake.OnSubmit("/evidence/analyze", testsupport.Reply{Code: http.StatusBadRequest, Body: `{"detail":"no evidence"}`})

	var resp api.SubmitResponse
	require.Equal(t, http.StatusCreated, call(t, d, http.MethodPost, "/api/submit/cards", `{"case_id":"3","evidence_ids":["e1"]}`, &resp))
	assert.Equal(t, "card_casting", resp.Category)
	assert.Equal(t, []string{"c1", "c2"}, resp.TaskIDs)

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusBadGateway, call(t, d, http.MethodPost, "/api/submit/evidence", `{"case_id":"3"}`, &errResp))
	assert.Contains(t, errResp.Error, "no evidence")

	require.Eventually(t, func() bool {
		var feed api.NotificationsResponse
		call(t, d, http.MethodGet, "/api/notifications?since=0", "", &feed)
		for _, n := range feed.Items {
			if n.Event == "submission_failed" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPIClearAndRemove(t *testing.T) {
	d, fake := startAPI(t)
	fake.Script("done", testsupport.StatusJSON(`{"status":"SUCCESS"}`))
	fake.Script("waiting", testsupport.StatusJSON(`{"status":"PENDING"}`))
	for _, id := range []string{"done", "waiting", "gone"} {
		_, _, err := d.deps.Tracker.Add(context.Background(), id, tasks.Context{})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		job, err := d.deps.Tracker.Get("done")
		return err == nil && job.State == tasks.StateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	var removed api.RemoveResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodDelete, "/api/tasks/gone", "", &removed))
	assert.True(t, removed.Removed)

	var cleared api.ClearResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodPost, "/api/tasks/clear?completed=true", "", &cleared))
	assert.Equal(t, 1, cleared.Removed)

	require.Equal(t, http.StatusOK, call(t, d, http.MethodPost, "/api/tasks/clear", "", &cleared))
	assert.Equal(t, 1, cleared.Removed)
	assert.Empty(t, d.deps.Tracker.List())
}

func TestAPIRequiresBearerToken(t *testing.T) {
	d, _ := startAPI(t, testsupport.WithAPIToken("s3cret"))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	resp, err := d.api.app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = d.api.app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAPIStatusAndTestNotification(t *testing.T) {
	d, _ := startAPI(t)

	var status api.DaemonStatus
	require.Equal(t, http.StatusOK, call(t, d, http.MethodGet, "/api/status?checks=false", "", &status))
	assert.True(t, status.Running)
	assert.Equal(t, d.cfg.DatabasePath(), status.DatabasePath)
	assert.Contains(t, status.Sinks, "feed")
	assert.Empty(t, status.Checks)

	var result api.TestNotificationResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodPost, "/api/notifications/test", "", &result))
	assert.True(t, result.Sent)

	var feed api.NotificationsResponse
	require.Equal(t, http.StatusOK, call(t, d, http.MethodGet, "/api/notifications", "", &feed))
	require.NotEmpty(t, feed.Items)
	assert.Equal(t, "test", string(feed.Items[len(feed.Items)-1].Event))
	assert.Equal(t, feed.Items[len(feed.Items)-1].Seq, feed.Next)
}
