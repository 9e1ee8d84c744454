package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func testConfig() config.FetchConfig {
	cfg := config.DefaultConfig().Fetch
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestFetchSuccess(t *testing.T) {
	expected := []byte("fake image data")
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(expected)
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewTestLogger())
	data, err := client.Fetch(context.Background(), server.URL+"/thumb.jpg")

	require.NoError(t, err)
	assert.Equal(t, expected, data)
	assert.Contains(t, gotUA, "Mozilla/5.0")
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewTestLogger())
	data, err := client.Fetch(context.Background(), server.URL+"/missing.jpg")

	assert.Nil(t, data)
	require.Error(t, err)

	var fe *errs.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errs.TypeFetch, fe.Type)
	assert.Equal(t, http.StatusNotFound, fe.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchRetriesServerError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(testConfig(), logger.NewTestLogger())
	data, err := client.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 3
	client := NewClient(cfg, logger.NewTestLogger())
	_, err := client.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeFetch))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchNetworkError(t *testing.T) {
	client := NewClient(testConfig(), logger.NewTestLogger())
	client.SetHTTPClient(&http.Client{Transport: &mockRoundTripper{handler: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}})

	_, err := client.Fetch(context.Background(), "https://encrypted-tbn0.gstatic.com/images?q=tbn:x")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeFetch))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFetchTimeoutIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxAttempts = 1
	client := NewClient(cfg, logger.NewTestLogger())

	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.TypeFetch))
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	client := NewClient(testConfig(), logger.NewTestLogger())
	client.maxBytes = 8
	client.SetHTTPClient(&http.Client{Transport: &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(make([]byte, 64))),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}}})

	_, err := client.Fetch(context.Background(), "https://example.com/big.jpg")
	require.Error(t, err)

	var fe *errs.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusRequestEntityTooLarge, fe.Code)
}

func TestCheckResponseStatus(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
		message string
	}{
		{http.StatusOK, false, ""},
		{http.StatusNoContent, false, ""},
		{http.StatusForbidden, true, "access denied"},
		{http.StatusGone, true, "image not found"},
		{http.StatusTooManyRequests, true, "too many requests"},
		{http.StatusInternalServerError, true, "server error"},
		{http.StatusTeapot, true, "unexpected status code: 418"},
	}

	for _, tt := range tests {
		err := checkResponseStatus(&http.Response{StatusCode: tt.status})
		if !tt.wantErr {
			assert.NoError(t, err)
			continue
		}
		var fe *errs.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, tt.message, fe.Message)
		assert.Equal(t, tt.status, fe.Code)
	}
}

