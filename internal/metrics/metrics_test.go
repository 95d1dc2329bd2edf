package metrics

import (
	stdErrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)

	r.ObserveCall("read_file", 10*time.Millisecond, nil)
	r.ObserveCall("read_file", 20*time.Millisecond, nil)
	r.ObserveCall("delete_lines", time.Millisecond, stdErrors.New("boom"))
	r.FilesScanned(7)
	r.FilesScanned(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.toolCalls.WithLabelValues("read_file", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.toolCalls.WithLabelValues("delete_lines", OutcomeError)))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.filesScanned))
	assert.Equal(t, 2, testutil.CollectAndCount(r.toolDuration))
}

func TestHandler(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)
	r.ObserveCall("search_in_file", time.Millisecond, nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hybridfs_tool_calls_total{outcome="ok",tool="search_in_file"} 1`)
	assert.Contains(t, string(body), "hybridfs_search_files_scanned_total 0")
}
