package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClassifierAPI fakes the asynchronous job API
type MockClassifierAPI struct {
	mu          sync.Mutex
	pollsToDone int
	frames      []Frame
	jobError    *JobError
	statusCode  int
	submitCode  int

	submitted []submitRequest
	polls     int
	cancelled []string
	authz     string
}

func (m *MockClassifierAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authz = r.Header.Get("Authorization")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
		if m.submitCode != 0 {
			w.WriteHeader(m.submitCode)
			return
		}
		var req submitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.submitted = append(m.submitted, req)
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "job-1"})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/jobs/"):
		m.polls++
		if m.statusCode != 0 {
			w.WriteHeader(m.statusCode)
			return
		}
		status := JobStatus{JobID: "job-1"}
		if m.pollsToDone >= 0 && m.polls > m.pollsToDone {
			status.Done = true
			status.Frames = m.frames
			status.Error = m.jobError
		}
		_ = json.NewEncoder(w).Encode(status)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1/jobs/"):
		m.cancelled = append(m.cancelled, strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockClassifierAPI) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func (m *MockClassifierAPI) cancelledJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

func newTestClient(t *testing.T, api *MockClassifierAPI, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.ClassifierConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Timeout:        timeout,
		PollInitial:    time.Millisecond,
		PollMax:        5 * time.Millisecond,
		RequestTimeout: time.Second,
	}
	return NewClient(cfg, ThresholdPolicy{Threshold: Likely}, srv.Client(), logger.Discard())
}

func TestClassify_Clean(t *testing.T) {
	api := &MockClassifierAPI{pollsToDone: 2, frames: frames(VeryUnlikely, Possible)}
	client := newTestClient(t, api, 2*time.Second)

	var polls int
	verdict, err := client.Classify(context.Background(), "gs://bucket/videos/a.mp4",
		WithPollHook(func(attempt int, elapsed time.Duration) { polls = attempt }))
	require.NoError(t, err)

	assert.False(t, verdict.Flagged)
	assert.Equal(t, Possible, verdict.MaxLikelihood)
	assert.Equal(t, 2, verdict.FramesAnalyzed)
	assert.Equal(t, "job-1", verdict.JobID)
	assert.Equal(t, 2, polls)

	require.Len(t, api.submitted, 1)
	assert.Equal(t, "gs://bucket/videos/a.mp4", api.submitted[0].InputURI)
	assert.Equal(t, []string{FeatureExplicitContent}, api.submitted[0].Features)
	assert.Equal(t, "Bearer test-key", api.authz)
}

func TestClassify_Flagged(t *testing.T) {
	api := &MockClassifierAPI{frames: frames(Unlikely, Likely)}
	client := newTestClient(t, api, 2*time.Second)

	verdict, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
	assert.Equal(t, Likely, verdict.MaxLikelihood)
}

func TestClassify_TimeoutIsError(t *testing.T) {
	api := &MockClassifierAPI{pollsToDone: -1}
	client := newTestClient(t, api, 30*time.Millisecond)

	verdict, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.Error(t, err)
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, apperrors.ErrClassification)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"job-1"}, api.cancelledJobs())
}

func TestNewClient_ZeroPollIntervalDoesNotSpin(t *testing.T) {
	api := &MockClassifierAPI{pollsToDone: -1}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := NewClient(config.ClassifierConfig{
		BaseURL:        srv.URL,
		Timeout:        300 * time.Millisecond,
		RequestTimeout: time.Second,
	}, ThresholdPolicy{Threshold: Likely}, srv.Client(), logger.Discard())

	_, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClassification)
	assert.LessOrEqual(t, api.pollCount(), 1)
}

func TestNewClient_ZeroRequestTimeoutUsesDefault(t *testing.T) {
	api := &MockClassifierAPI{frames: frames(Unlikely)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := NewClient(config.ClassifierConfig{
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
		PollInitial: time.Millisecond,
		PollMax:     time.Millisecond,
	}, ThresholdPolicy{Threshold: Likely}, srv.Client(), logger.Discard())

	verdict, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
}

func TestClassify_JobErrorIsError(t *testing.T) {
	api := &MockClassifierAPI{jobError: &JobError{Code: "INVALID_ARGUMENT", Message: "unsupported codec"}}
	client := newTestClient(t, api, 2*time.Second)

	_, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClassification)
	assert.Contains(t, err.Error(), "unsupported codec")
}

func TestClassify_SubmitRejected(t *testing.T) {
	api := &MockClassifierAPI{submitCode: http.StatusBadRequest}
	client := newTestClient(t, api, 2*time.Second)

	_, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	assert.ErrorIs(t, err, apperrors.ErrClassification)
	assert.Zero(t, api.pollCount())
}

func TestClassify_PollFailuresGiveUp(t *testing.T) {
	api := &MockClassifierAPI{statusCode: http.StatusServiceUnavailable}
	client := newTestClient(t, api, 2*time.Second)

	_, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.ErrorIs(t, err, apperrors.ErrClassification)
	assert.Equal(t, maxConsecutivePollErrors, api.pollCount())
	assert.Equal(t, []string{"job-1"}, api.cancelledJobs())
}

func TestClassify_PollClientErrorFailsFast(t *testing.T) {
	api := &MockClassifierAPI{statusCode: http.StatusNotFound}
	client := newTestClient(t, api, 2*time.Second)

	_, err := client.Classify(context.Background(), "gs://bucket/a.mp4")
	require.ErrorIs(t, err, apperrors.ErrClassification)
	assert.Equal(t, 1, api.pollCount())
}

func TestClassify_CallerCancellationAbortsJob(t *testing.T) {
	api := &MockClassifierAPI{pollsToDone: -1}
	client := newTestClient(t, api, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Classify(ctx, "gs://bucket/a.mp4",
		WithPollHook(func(attempt int, _ time.Duration) {
			if attempt == 2 {
				cancel()
			}
		}))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrClassification)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"job-1"}, api.cancelledJobs())
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 6*time.Second, nextDelay(3*time.Second, 15*time.Second))
	assert.Equal(t, 15*time.Second, nextDelay(12*time.Second, 15*time.Second))
}
