package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/snaptext/backend/internal/jobs"
	"github.com/snaptext/backend/internal/models"
	"github.com/snaptext/backend/internal/search"
	"github.com/snaptext/backend/internal/testutil"
	"github.com/snaptext/backend/internal/upload"
	"github.com/snaptext/backend/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testServer struct {
	e        *echo.Echo
	registry *jobs.Registry
	queue    *jobs.Queue
	engine   *testutil.FakeEngine
	worker   *worker.Worker
	index    *search.Index
}

type serverOptions struct {
	mode        upload.Mode
	startWorker bool
	withSearch  bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	s := &testServer{
		registry: jobs.NewRegistry(),
		queue:    jobs.NewQueue(),
		engine:   testutil.NewFakeEngine(),
	}
	intake := upload.NewManager(s.registry, s.queue, jobs.NewAllocator(s.registry), testutil.NewMockStorage(), upload.Policy{Mode: opts.mode}, nil)

	workerOpts := []worker.Option{}
	deps := &Dependencies{
		Intake:         intake,
		Jobs:           s.registry,
		Queue:          s.queue,
		PublicBaseURL:  "localhost:8123",
		Version:        "test",
		StreamInterval: 10 * time.Millisecond,
	}
	if opts.withSearch {
		index, err := search.Open("", 1, nil)
		require.NoError(t, err)
		t.Cleanup(func() { index.Close() })
		s.index = index
		deps.Search = index
		workerOpts = append(workerOpts, worker.WithIndexer(index))
	}
	s.worker = worker.New(s.queue, s.registry, s.engine, workerOpts...)
	deps.Worker = s.worker

	s.e = echo.New()
	SetupMiddleware(s.e, nil, true)
	RegisterRoutes(s.e, NewHandlers(deps))

	if opts.startWorker {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.worker.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, UploadField, files...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	return s.do(req)
}

func (s *testServer) poll(t *testing.T, id string) []models.FileResult {
	t.Helper()
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var files []models.FileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	return files
}

func jobIDFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var url string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &url))
	require.True(t, strings.HasPrefix(url, "localhost:8123/jobs/"), url)
	return strings.TrimPrefix(url, "localhost:8123/jobs/")
}

func TestServer_UploadPollComplete(t *testing.T) {
	s := newTestServer(t, serverOptions{mode: upload.ModeMulti})
	s.engine.Hold()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.worker.Run(ctx)

	id := jobIDFrom(t, s.upload(t, formFile{"receipt.png", "image/png", "receipt"}))

	// Get after submit shows the full pending job.
	files := s.poll(t, id)
	require.Len(t, files, 1)
	assert.Equal(t, models.FileStatusPending, files[0].Status)
	assert.Contains(t, files[0].URL, "/upload/receipt.png")
	assert.Empty(t, files[0].Text)

	// Polling again without progress gives the same answer.
	assert.Equal(t, files, s.poll(t, id))

	s.engine.Release()
	require.Eventually(t, func() bool {
		return s.poll(t, id)[0].Status == models.FileStatusComplete
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "text:receipt", s.poll(t, id)[0].Text)
}

func TestServer_UploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		mode     upload.Mode
		files    []formFile
		wantBody string
	}{
		{
			name:     "text file",
			mode:     upload.ModeMulti,
			files:    []formFile{{"notes.txt", "text/plain", "hi"}},
			wantBody: `"IMAGE FILES ONLY"`,
		},
		{
			name:     "two files in single mode",
			mode:     upload.ModeSingle,
			files:    []formFile{{"a.png", "image/png", "a"}, {"b.png", "image/png", "b"}},
			wantBody: `"ONLY 1 FILE ALLOWED"`,
		},
		{
			name:     "no files",
			mode:     upload.ModeMulti,
			wantBody: `"NO FILES UPLOADED"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{mode: tt.mode})
			rec := s.upload(t, tt.files...)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			assert.Equal(t, 0, s.registry.Len())
			assert.Equal(t, 0, s.queue.Len())
		})
	}
}

func TestServer_UnknownJobIsNull(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestServer_MultiFileOrderAndFailures(t *testing.T) {
	s := newTestServer(t, serverOptions{mode: upload.ModeMulti, startWorker: true})
	s.engine.Fail("bad")

	id := jobIDFrom(t, s.upload(t,
		formFile{"a.png", "image/png", "good"},
		formFile{"b.jpg", "image/jpeg", "bad"},
		formFile{"c.jpeg", "image/jpeg", "also-good"},
	))

	require.Eventually(t, func() bool {
		for _, f := range s.poll(t, id) {
			if !f.Status.Terminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	files := s.poll(t, id)
	require.Len(t, files, 3)
	assert.Equal(t, "text:good", files[0].Text)
	assert.Equal(t, models.FileStatusFailed, files[1].Status)
	assert.NotEmpty(t, files[1].Error)
	assert.Equal(t, "text:also-good", files[2].Text)
	assert.Contains(t, files[1].URL, "b.jpg")
}

func TestServer_JobMsgpack(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	require.NoError(t, s.registry.Create("job-1", []string{"/upload/a.png"}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/msgpack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var job models.Job
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	require.Len(t, job.Files, 1)
	assert.Equal(t, models.FileStatusPending, job.Files[0].Status)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/missing/msgpack", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)
}

func TestServer_Search(t *testing.T) {
	s := newTestServer(t, serverOptions{mode: upload.ModeMulti, startWorker: true, withSearch: true})

	id := jobIDFrom(t, s.upload(t, formFile{"invoice.png", "image/png", "invoice 42"}))
	require.Eventually(t, func() bool {
		n, err := s.index.Count(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/search?q=INVOICE", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Query string       `json:"query"`
		Hits  []search.Hit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, id, resp.Hits[0].JobID)
	assert.Contains(t, resp.Hits[0].Snippet, "invoice 42")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/search?q=", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/search?q=x&limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SearchDisabled(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, serverOptions{mode: upload.ModeMulti})
	jobIDFrom(t, s.upload(t, formFile{"a.png", "image/png", "a"}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status     string       `json:"status"`
		Version    string       `json:"version"`
		Jobs       int          `json:"jobs"`
		QueueDepth int          `json:"queueDepth"`
		Worker     worker.Stats `json:"worker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 1, resp.Jobs)
	assert.Equal(t, 1, resp.QueueDepth)
	assert.Equal(t, worker.StateIdle, resp.Worker.State)
}

func TestErrorHandler_HTTPError(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"HTTP_ERROR"`)
}

func TestWebSocket_StreamsUntilDone(t *testing.T) {
	s := newTestServer(t, serverOptions{mode: upload.ModeMulti})
	s.engine.Hold()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.worker.Run(ctx)

	id := jobIDFrom(t, s.upload(t, formFile{"a.png", "image/png", "a"}, formFile{"b.png", "image/png", "b"}))

	srv := httptest.NewServer(s.e)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/jobs/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first WSJobMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MsgTypeSnapshot, first.Type)
	assert.Equal(t, id, first.Job.ID)
	assert.Equal(t, models.FileStatusPending, first.Job.Files[0].Status)

	s.engine.Release()

	var last WSJobMessage
	for {
		var msg WSJobMessage
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
		last = msg
	}
	assert.Equal(t, MsgTypeDone, last.Type)
	for _, f := range last.Job.Files {
		assert.Equal(t, models.FileStatusComplete, f.Status)
	}
}

func TestWebSocket_UnknownJob(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/jobs/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
