package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/clients"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
)

// maxConsecutivePollErrors bounds transient status failures before giving up
const maxConsecutivePollErrors = 3

// Classifier resolves a stored blob to a moderation verdict
type Classifier interface {
	Classify(ctx context.Context, uri string, opts ...ClassifyOption) (*Verdict, error)
}

// ClassifyOption customises a single Classify call
type ClassifyOption func(*classifyOptions)

type classifyOptions struct {
	onSubmit func(jobID string)
	onPoll   func(attempt int, elapsed time.Duration)
}

// WithSubmitHook is called once the job has been accepted
func WithSubmitHook(fn func(jobID string)) ClassifyOption {
	return func(o *classifyOptions) { o.onSubmit = fn }
}

// WithPollHook is called after every status poll that is not yet done
func WithPollHook(fn func(attempt int, elapsed time.Duration)) ClassifyOption {
	return func(o *classifyOptions) { o.onPoll = fn }
}

// Client talks to the asynchronous classification API:
//
//	POST   /v1/jobs       {input_uri, features} -> {job_id}
//	GET    /v1/jobs/{id}  -> {job_id, done, error, frames}
//	DELETE /v1/jobs/{id}  cancels a running job
type Client struct {
	http           *clients.HTTPClient
	baseURL        string
	policy         Policy
	timeout        time.Duration
	pollInitial    time.Duration
	pollMax        time.Duration
	requestTimeout time.Duration
	logger         *logger.Logger
}

// Fallbacks for non-positive settings: a zero poll interval would poll
// without any delay and a zero request timeout fails every call
const (
	defaultPollInterval   = time.Second
	defaultRequestTimeout = 30 * time.Second
)

// NewClient creates a classifier client for cfg
func NewClient(cfg config.ClassifierConfig, policy Policy, httpClient *http.Client, log *logger.Logger) *Client {
	pollInitial := cfg.PollInitial
	if pollInitial <= 0 {
		pollInitial = defaultPollInterval
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		http:           clients.NewHTTPClient(httpClient, log, clients.WithBearerToken(cfg.APIKey)),
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		policy:         policy,
		timeout:        cfg.Timeout,
		pollInitial:    pollInitial,
		pollMax:        max(cfg.PollMax, pollInitial),
		requestTimeout: requestTimeout,
		logger:         log,
	}
}

// Classify submits uri and polls with exponential backoff until the job
// finishes or the classification timeout elapses. A timeout or job error
// is returned as a classification error, never as a clean verdict.
func (c *Client) Classify(ctx context.Context, uri string, opts ...ClassifyOption) (*Verdict, error) {
	const op = "classifier.Classify"

	var o classifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.logger.WithContext(ctx)
	started := time.Now()

	jobID, err := c.Submit(ctx, uri)
	if err != nil {
		return nil, c.abortError(op, err)
	}
	if o.onSubmit != nil {
		o.onSubmit(jobID)
	}
	log.Debug("classification job submitted", "job_id", jobID, "uri", uri)

	delay := c.pollInitial
	pollErrors := 0
	for attempt := 1; ; attempt++ {
		if err := sleep(ctx, delay); err != nil {
			c.cancelDetached(ctx, jobID)
			return nil, c.abortError(op, err)
		}

		status, err := c.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelDetached(ctx, jobID)
				return nil, c.abortError(op, ctx.Err())
			}
			pollErrors++
			log.Warn("classification status poll failed", "job_id", jobID, "attempt", attempt, "error", err)
			if pollErrors >= maxConsecutivePollErrors || !isRetryable(err) {
				c.cancelDetached(ctx, jobID)
				return nil, apperrors.Wrap(apperrors.KindClassification, op, "failed to poll classification job", err)
			}
			delay = nextDelay(delay, c.pollMax)
			continue
		}
		pollErrors = 0

		if !status.Done {
			if o.onPoll != nil {
				o.onPoll(attempt, time.Since(started))
			}
			delay = nextDelay(delay, c.pollMax)
			continue
		}

		if status.Error != nil {
			return nil, apperrors.New(apperrors.KindClassification, op,
				fmt.Sprintf("classification job failed: %s: %s", status.Error.Code, status.Error.Message))
		}

		flagged, err := c.policy.Flagged(status.Frames)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindClassification, op, "moderation policy failed", err)
		}

		verdict := &Verdict{
			JobID:          jobID,
			Flagged:        flagged,
			MaxLikelihood:  maxLikelihood(status.Frames),
			FramesAnalyzed: len(status.Frames),
		}
		log.Info("classification finished",
			"job_id", jobID,
			"flagged", verdict.Flagged,
			"max_likelihood", verdict.MaxLikelihood.String(),
			"frames", verdict.FramesAnalyzed,
			"elapsed", time.Since(started))
		return verdict, nil
	}
}

// Submit starts an explicit-content job for uri and returns its id
func (c *Client) Submit(ctx context.Context, uri string) (string, error) {
	body, err := json.Marshal(submitRequest{InputURI: uri, Features: []string{FeatureExplicitContent}})
	if err != nil {
		return "", err
	}

	var out submitResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("classifier returned empty job id")
	}
	return out.JobID, nil
}

// Status fetches the current state of a job
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, http.MethodGet, c.jobURL(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel aborts a running job
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, c.jobURL(jobID), nil, nil)
}

// cancelDetached cancels the job on a context that survives the caller's
// cancellation, bounded by the request timeout
func (c *Client) cancelDetached(ctx context.Context, jobID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
	defer cancel()

	if err := c.Cancel(cancelCtx, jobID); err != nil {
		c.logger.WithContext(ctx).Warn("failed to cancel classification job", "job_id", jobID, "error", err)
		return
	}
	c.logger.WithContext(ctx).Info("classification job cancelled", "job_id", jobID)
}

func (c *Client) abortError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.KindClassification, op,
			fmt.Sprintf("classification timed out after %s", c.timeout), err)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.KindClassification, op, "classification cancelled", err)
	default:
		return apperrors.Wrap(apperrors.KindClassification, op, "failed to submit classification job", err)
	}
}

func (c *Client) jobURL(jobID string) string {
	return c.baseURL + "/v1/jobs/" + url.PathEscape(jobID)
}

// statusError is a non-2xx classifier response
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("classifier responded %d: %s", e.Code, e.Body)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.http.DoRequest(reqCtx, method, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode classifier response: %w", err)
	}
	return nil
}

func nextDelay(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
