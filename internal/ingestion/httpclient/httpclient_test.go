package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDoer returns canned status codes in order, recycling the last one once the
// script runs out.
type scriptedDoer struct {
	statuses []int
	calls    int
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	idx := d.calls
	if idx >= len(d.statuses) {
		idx = len(d.statuses) - 1
	}
	d.calls++
	return &http.Response{
		StatusCode: d.statuses[idx],
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func newTestClient(t *testing.T, retries int, doer *scriptedDoer) *Client {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	c := New(provider.Config{Retries: retries}, log)
	c.baseDelay = 0 // no real sleeping in tests
	return c.WithDoer(doer)
}

func TestClient_RetriesServerErrorThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{502, 200}}
	c := newTestClient(t, 3, doer)

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, doer.calls)
}

func TestClient_ExhaustsRetriesOnRateLimit(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{429}}
	c := newTestClient(t, 2, doer)

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 3, doer.calls, "initial attempt plus two retries")
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{404}}
	c := newTestClient(t, 3, doer)

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err, "a 4xx other than 429 is the caller's problem, not transport's")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, doer.calls)
}

func TestClient_ContextCancellationStopsRetrying(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{500}}
	log := logger.New(logger.Config{Level: "error"})
	c := New(provider.Config{Retries: 5}, log).WithDoer(doer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)

	_, err = c.Do(ctx, req)
	require.Error(t, err)
	assert.Less(t, doer.calls, 6, "cancellation must cut the retry loop short")
}
