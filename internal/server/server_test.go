package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/runtime"
	"github.com/julianstephens/flux/internal/storage"
	"github.com/julianstephens/flux/internal/tasks"
	"github.com/julianstephens/flux/internal/tools"
	"github.com/julianstephens/flux/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2024, 1, 27, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	m := metrics.New()
	rt := runtime.New(storage.NewMemoryStore(), runtime.WithMetrics(m))
	reporter := workflow.NewReporter(rt, workflow.WithDismissAfter(0))
	sched := tasks.New(
		tasks.WithMetrics(m),
		tasks.WithClock(func() time.Time { return testNow }),
		tasks.WithIDGenerator(func() string { return "task-1" }),
	)
	d := tools.New(rt, nil,
		tools.WithMetrics(m),
		tools.WithClock(func() time.Time { return testNow }),
		tools.WithTaskScheduler(sched),
	)
	s := New("127.0.0.1:0", rt, d, reporter,
		WithMetrics(m),
		WithClock(func() time.Time { return testNow }),
	)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		sched.Close()
		reporter.Close()
		rt.Close()
	})
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCatalogEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defs := decodeBody[[]tools.Definition](t, resp)
	require.Len(t, defs, len(tools.Catalog()))

	confirm := map[string]bool{}
	for _, d := range defs {
		confirm[d.Name] = d.RequiresConfirmation
	}
	assert.True(t, confirm[tools.ClearPlan])
	assert.False(t, confirm[tools.ScheduleBlock])
}

func TestDispatchAndEventFeed(t *testing.T) {
	ts := newTestServer(t)

	input := `{"title":"Write report","startTime":"2024-01-27T10:00:00Z","endTime":"2024-01-27T11:00:00Z"}`
	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/scheduleBlock", input)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[tools.Result](t, resp)
	assert.Equal(t, tools.StatusDone, res.Status)
	assert.Contains(t, res.Text, `Scheduled "Write report"`)

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeBody[[]models.Event](t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventBlockScheduled, events[0].Type)
	assert.Equal(t, models.EventPlanCreated, events[1].Type)

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/events?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]models.Event](t, resp), 1)

	resp = do(t, ts, http.MethodGet, "/v1/users/bob/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = decodeBody[[]models.Event](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPlanCreated, events[0].Type)
}

func TestScheduledTaskTools(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/scheduleTask", `{"when":{"type":"delayed","delayInSeconds":3600},"description":"Nap"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[tools.Result](t, resp)
	assert.True(t, strings.HasPrefix(res.Text, `Task task-1 scheduled for type "delayed"`), res.Text)

	resp = do(t, ts, http.MethodPost, "/v1/users/alice/tools/getScheduledTasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody[tools.Result](t, resp).Text, "- Nap (task-1): delayed")

	resp = do(t, ts, http.MethodPost, "/v1/users/bob/tools/getScheduledTasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "No scheduled tasks found.", decodeBody[tools.Result](t, resp).Text)

	resp = do(t, ts, http.MethodPost, "/v1/users/alice/tools/cancelScheduledTask", `{"taskId":"task-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Task task-1 has been successfully canceled.", decodeBody[tools.Result](t, resp).Text)

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decodeBody[[]models.Event](t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPlanCreated, events[0].Type)
}

func TestDispatchInvalidInputIsResultText(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/deleteBlock", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[tools.Result](t, resp)
	assert.True(t, strings.HasPrefix(res.Text, "Error:"), res.Text)
}

func TestDispatchUnknownTool(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/launchRocket", `{}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "unknown_tool", body.Error)
}

func TestEventsRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		resp := do(t, ts, http.MethodGet, "/v1/users/alice/events?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, limit)
	}
}

func TestConfirmationFlow(t *testing.T) {
	ts := newTestServer(t)

	input := `{"title":"Gym","startTime":"2024-01-27T10:00:00Z","endTime":"2024-01-27T11:00:00Z"}`
	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/scheduleBlock", input)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/v1/users/alice/tools/clearPlan", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	pending := decodeBody[tools.Result](t, resp)
	assert.Equal(t, tools.StatusPending, pending.Status)
	require.NotEmpty(t, pending.CallID)

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/tool-calls", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	calls := decodeBody[[]tools.PendingCall](t, resp)
	require.Len(t, calls, 1)
	assert.Equal(t, tools.ClearPlan, calls[0].Tool)
	assert.JSONEq(t, `{}`, string(calls[0].Input))

	path := "/v1/users/alice/tool-calls/" + pending.CallID

	resp = do(t, ts, http.MethodPost, path, `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_decision", decodeBody[ErrorResponse](t, resp).Error)

	resp = do(t, ts, http.MethodPost, path, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := json.Marshal(decisionRequest{Decision: constants.ApprovalYes})
	require.NoError(t, err)
	resp = do(t, ts, http.MethodPost, path, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[tools.Result](t, resp)
	assert.Equal(t, tools.StatusDone, res.Status)
	assert.Contains(t, res.Text, "Cleared 1 blocks")
	assert.Equal(t, pending.CallID, res.CallID)

	resp = do(t, ts, http.MethodPost, path, string(body))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmationDenied(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/users/alice/tools/clearPlan", "")
	pending := decodeBody[tools.Result](t, resp)

	body, err := json.Marshal(decisionRequest{Decision: constants.ApprovalNo})
	require.NoError(t, err)
	resp = do(t, ts, http.MethodPost, "/v1/users/alice/tool-calls/"+pending.CallID, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[tools.Result](t, resp)
	assert.Equal(t, "Error: User denied access to tool execution", res.Text)
}

func TestEndSessionDiscardsPending(t *testing.T) {
	ts := newTestServer(t)

	do(t, ts, http.MethodPost, "/v1/users/alice/tools/clearPlan", "")
	do(t, ts, http.MethodPost, "/v1/users/alice/tools/clearPlan", "")

	resp := do(t, ts, http.MethodDelete, "/v1/users/alice/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int{"discarded": 2}, decodeBody[map[string]int](t, resp))

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/tool-calls", "")
	assert.Empty(t, decodeBody[[]tools.PendingCall](t, resp))
}

func TestPlansAndWorkflow(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/v1/users/alice/plans", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plans := decodeBody[[]models.PlanSummary](t, resp)
	require.Len(t, plans, 1)
	assert.Equal(t, constants.DefaultPlanTitle, plans[0].Title)
	assert.True(t, plans[0].IsActive)

	resp = do(t, ts, http.MethodGet, "/v1/users/alice/workflow", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wf := decodeBody[models.WorkflowStatus](t, resp)
	assert.Equal(t, models.WorkflowIdle, wf.Status)

	resp = do(t, ts, http.MethodPost, "/v1/users/alice/workflow/dismiss", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"dismissed": false}, decodeBody[map[string]bool](t, resp))
}

func TestPromptEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/v1/users/alice/prompt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Saturday, January 27, 2024 9:00 AM")
	assert.Contains(t, string(data), "Timeline: 0 active blocks.")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	do(t, ts, http.MethodPost, "/v1/users/alice/tools/listPlans", "")

	resp := do(t, ts, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flux_tool_calls_total")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rt := runtime.New(storage.NewMemoryStore())
	defer rt.Close()
	reporter := workflow.NewReporter(rt, workflow.WithDismissAfter(0))
	defer reporter.Close()
	s := New(ln.Addr().String(), rt, tools.New(rt, nil), reporter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
