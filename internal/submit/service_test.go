package submit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrack/internal/backend"
	"casetrack/internal/logging"
	"casetrack/internal/notifications"
	"casetrack/internal/submit"
	"casetrack/internal/tasks"
	"casetrack/internal/testsupport"
	"casetrack/internal/tracker"
)

type harness struct {
	fake    *testsupport.Backend
	tracker *tracker.Tracker
	feed    *notifications.Feed
	svc     *submit.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := testsupport.NewBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(fake.URL()))
	store := testsupport.MustOpenStore(t, cfg)
	client := backend.New(cfg)

	tr, err := tracker.New(tracker.SettingsFromConfig(cfg), store, client, logging.NewNop())
	require.NoError(t, err)
	feed := notifications.NewFeed(20)
	d := notifications.NewDispatcher(feed, time.Hour, logging.NewNop())
	tr.Subscribe(d)
	t.Cleanup(d.Close)
	t.Cleanup(tr.Stop)
	require.NoError(t, tr.Start(context.Background()))

	return &harness{
		fake:    fake,
		tracker: tr,
		feed:    feed,
		svc:     submit.New(client, tr, d, logging.NewNop()),
	}
}

func TestEvidenceAnalysisRegistersTask(t *testing.T) {
	h := newHarness(t)
	h.fake.OnSubmit("/evidence/analyze", testsupport.StatusJSON(`{"task_id":"t-1"}`))
	h.fake.Script("t-1", testsupport.StatusJSON(`{"status":"PENDING"}`))

	ids, err := h.svc.EvidenceAnalysis(context.Background(), "42", []string{"e1", "e2", "e1", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, ids)

	job, err := h.tracker.Get("t-1")
	require.NoError(t, err)
	assert.Equal(t, tasks.StateQueued, job.State)
	assert.Equal(t, "evidence_analysis", job.Context.Category)
	assert.Equal(t, "/cases/42/evidence", job.Context.Target)
	assert.Equal(t, "Analysing 2 evidence items for case 42", job.Context.Description)
}

func TestCardCastingRegistersEveryTaskID(t *testing.T) {
	h := newHarness(t)
	h.fake.OnSubmit("/cards/cast", testsupport.StatusJSON(`{"task_id":"c-1","task_ids":["c-1","c-2"]}`))

	ids, err := h.svc.CardCasting(context.Background(), "7", []string{"e9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, ids)

	for _, id := range ids {
		job, err := h.tracker.Get(id)
		require.NoError(t, err)
		assert.Equal(t, "/cases/7/cards", job.Context.Target)
		assert.Equal(t, "Card casting", job.Context.Title)
	}
}

func TestAssociationSendsCaseAndEvidence(t *testing.T) {
	h := newHarness(t)
	h.fake.OnSubmit("/evidence/association/analyze", testsupport.StatusJSON(`{"task_ids":["a-1"]}`))

	_, err := h.svc.AssociationEvidenceAnalysis(context.Background(), "5", []string{"x", "y"})
	require.NoError(t, err)

	req, body := h.fake.LastRequestTo("/evidence/association/analyze")
	require.NotNil(t, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "5", payload["case_id"])
	assert.Equal(t, []any{"x", "y"}, payload["evidence_ids"])
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
}

func TestFailedSubmissionNotifiesAndRegistersNothing(t *testing.T) {
	h := newHarness(t)
	h.fake.OnSubmit("/evidence/analyze", testsupport.Reply{Code: http.StatusUnprocessableEntity, Body: `{"detail":"case 42 is closed"}`})

	ids, err := h.svc.EvidenceAnalysis(context.Background(), "42", []string{"e1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrSubmission))
	assert.Contains(t, err.Error(), "case 42 is closed")
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.Empty(t, h.tracker.List())

	require.Eventually(t, func() bool { return len(h.feed.Since(0, 0)) == 1 }, time.Second, 5*time.Millisecond)
	n := h.feed.Since(0, 0)[0]
	assert.Equal(t, notifications.EventSubmissionFailed, n.Event)
	assert.Equal(t, notifications.LevelError, n.Level)
	assert.Equal(t, "42", n.CaseID)
}

func TestResponseWithoutTaskIDIsFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.OnSubmit("/cards/cast", testsupport.StatusJSON(`{"ok":true}`))

	ids, err := h.svc.CardCasting(context.Background(), "1", nil)
	require.ErrorIs(t, err, backend.ErrSubmission)
	assert.Empty(t, ids)
	assert.Empty(t, h.tracker.List())
}

func TestInvalidInputIsRejectedLocally(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.EvidenceAnalysis(context.Background(), "  ", []string{"e1"})
	require.ErrorIs(t, err, submit.ErrInvalidRequest)

	_, err = h.svc.Submit(context.Background(), submit.Category("bogus"), "1", nil)
	require.ErrorIs(t, err, submit.ErrInvalidRequest)

	req, _ := h.fake.LastRequest()
	assert.Nil(t, req)
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want submit.Category
	}{
		{"evidence", submit.CategoryEvidenceAnalysis},
		{"association", submit.CategoryAssociationEvidenceAnalysis},
		{"association-evidence-analysis", submit.CategoryAssociationEvidenceAnalysis},
		{"cards", submit.CategoryCardCasting},
		{"CARD_CASTING", submit.CategoryCardCasting},
	}
	for _, tc := range cases {
		got, err := submit.ParseCategory(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := submit.ParseCategory("nope")
	assert.ErrorIs(t, err, submit.ErrInvalidRequest)
	assert.Equal(t, "/cards/cast", submit.CategoryCardCasting.Endpoint())
}
