package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mezonai/mmn-storage/logx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingBeforeInitIsNoop(t *testing.T) {
	if storageMetrics != nil {
		t.Skip("metrics already initialized")
	}
	assert.NotPanics(t, func() {
		SetStoredBlocks(3)
		AddEvictedBlocks(1)
		IncreaseCacheHit()
		RecordFlush(time.Millisecond, nil)
	})
}

func TestMetricsExposed(t *testing.T) {
	logx.SetOutput(io.Discard)
	InitMetrics()
	InitMetrics()

	SetStoredBlocks(5)
	AddEvictedBlocks(2)
	SetCacheState(128, 3)
	RecordFlush(10*time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 5.0, testutil.ToFloat64(storageMetrics.storedBlocks))
	assert.Equal(t, 128.0, testutil.ToFloat64(storageMetrics.cacheBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(storageMetrics.cacheDirtyEntries))
	assert.GreaterOrEqual(t, testutil.ToFloat64(storageMetrics.flushErrors), 1.0)

	mux := http.NewServeMux()
	RegisterMetrics(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mmn_storage_stored_blocks 5")
}
