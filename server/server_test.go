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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"bedtime_story_generator/generator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req generator.Request) (*generator.Result, error) {
	ret := m.Called(ctx, req)
	res, _ := ret.Get(0).(*generator.Result)
	return res, ret.Error(1)
}

func sampleResult() *generator.Result {
	return &generator.Result{
		Request:    "a sleepy fox",
		FirstDraft: "S1",
		Story:      "S2",
		Judge:      generator.JudgeResult{Scores: generator.Scores{Age: 5}, Notes: "ok"},
		Rounds:     []generator.Round{{Number: 1, Draft: "S1"}, {Number: 2, Draft: "S2"}},
		Card: generator.ReflectionCard{
			Questions:   []string{"A?", "B?", "C?"},
			Affirmation: "I am calm.",
		},
	}
}

func newTestServer(t *testing.T, runner Runner) *httptest.Server {
	t.Helper()
	s, err := New(runner, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postStory(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/stories", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNew_RequiresRunner(t *testing.T) {
	_, err := New(nil, 0, nil)
	assert.Error(t, err)
}

func TestStoryCreateAndGet(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, generator.Request("a sleepy fox")).Return(sampleResult(), nil).Once()
	ts := newTestServer(t, runner)

	resp := postStory(t, ts.URL, `{"request": "a sleepy fox"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created generator.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/stories/"+created.ID, resp.Header.Get("Location"))
	assert.Equal(t, "S2", created.Story)
	assert.Len(t, created.Rounds, 2)

	get, err := http.Get(ts.URL + "/api/stories/" + created.ID)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var fetched generator.Result
	require.NoError(t, json.NewDecoder(get.Body).Decode(&fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "I am calm.", fetched.Card.Affirmation)

	page, err := http.Get(ts.URL + "/api/stories/" + created.ID + "/html")
	require.NoError(t, err)
	defer page.Body.Close()
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", page.Header.Get("Content-Type"))
	html, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>A Bedtime Story: a sleepy fox</title>")
	assert.Contains(t, string(html), "<p>1. A?</p>")

	runner.AssertExpectations(t)
}

func TestStoryCreate_BadRequests(t *testing.T) {
	ts := newTestServer(t, &mockRunner{})

	resp := postStory(t, ts.URL, `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postStory(t, ts.URL, `{"request": "   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoryCreate_PipelineFailure(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, generator.ErrCompletion).Once()
	ts := newTestServer(t, runner)

	resp := postStory(t, ts.URL, `{"request": "a sleepy fox"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "text completion failed")
}

func TestStoryCreate_AppliesTimeout(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(sampleResult(), nil).Once()
	ts := newTestServer(t, runner)

	resp := postStory(t, ts.URL, `{"request": "a sleepy fox"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	runner.AssertExpectations(t)
}

func TestStoryGet_NotFound(t *testing.T) {
	ts := newTestServer(t, &mockRunner{})

	for _, path := range []string{"/api/stories/missing", "/api/stories/missing/html"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &mockRunner{})

	resp, err := http.Get(ts.URL + "/api/stories")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, &mockRunner{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s, err := New(&mockRunner{}, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestRunStore_EvictsOldest(t *testing.T) {
	store := newStore(2)
	store.set("a", &generator.Result{Story: "A"})
	store.set("b", &generator.Result{Story: "B"})
	store.set("a", &generator.Result{Story: "A2"})
	store.set("c", &generator.Result{Story: "C"})

	_, err := store.get("a")
	assert.ErrorIs(t, err, ErrRunNotFound)
	for id, want := range map[string]string{"b": "B", "c": "C"} {
		res, err := store.get(id)
		require.NoError(t, err)
		assert.Equal(t, want, res.Story)
	}
	assert.Len(t, store.runs, 2)
	assert.Len(t, store.order, 2)
}

func TestStoryGet_EvictedAfterLimit(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).
		Return(sampleResult(), nil).Twice()
	s, err := New(runner, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.SetMaxRuns(1)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	var ids []string
	for range 2 {
		resp := postStory(t, ts.URL, `{"request": "a sleepy fox"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created generator.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		ids = append(ids, created.ID)
	}

	for id, want := range map[string]int{ids[0]: http.StatusNotFound, ids[1]: http.StatusOK} {
		resp, err := http.Get(ts.URL + "/api/stories/" + id)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, id)
	}
}
