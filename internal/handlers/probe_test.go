package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
)

func newTestProbeCache(t *testing.T, ttl time.Duration) (*ProbeCache, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewProbeCache(mockDB, log, ttl, 2*time.Second), mock
}

func newCountingHeadServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestProbeServesFreshEntryWithoutNetwork(t *testing.T) {
	cache, mock := newTestProbeCache(t, 6*time.Hour)
	server, hits := newCountingHeadServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(server.URL).
		WillReturnRows(sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}).
			AddRow(server.URL, int64(2048), "image/jpeg", true, time.Now().Add(-time.Minute)))

	probe, err := cache.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected cached probe, got error %v", err)
	}
	if !probe.OK || probe.ContentLength == nil || *probe.ContentLength != 2048 {
		t.Fatalf("unexpected cached probe: %+v", probe)
	}
	if got := atomic.LoadInt64(hits); got != 0 {
		t.Fatalf("expected no network traffic for a fresh entry, saw %d requests", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbeRefreshesStaleEntry(t *testing.T) {
	cache, mock := newTestProbeCache(t, time.Hour)
	server, hits := newCountingHeadServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
	})

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(server.URL).
		WillReturnRows(sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}).
			AddRow(server.URL, int64(1024), "image/jpeg", true, time.Now().Add(-2*time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.media_head_cache")).
		WithArgs(server.URL, int64(4096), "video/mp4", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	probe, err := cache.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected refreshed probe, got error %v", err)
	}
	if probe.ContentLength == nil || *probe.ContentLength != 4096 {
		t.Fatalf("expected refreshed content length 4096, got %+v", probe)
	}
	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("expected exactly one HEAD request, saw %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbeRefreshesEntryExactlyAtTTL(t *testing.T) {
	cache, mock := newTestProbeCache(t, time.Hour)
	server, hits := newCountingHeadServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// An entry exactly at the TTL boundary is already stale
	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(server.URL).
		WillReturnRows(sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}).
			AddRow(server.URL, int64(1024), "image/jpeg", true, time.Now().Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.media_head_cache")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := cache.Probe(context.Background(), server.URL); err != nil {
		t.Fatalf("expected refresh, got %v", err)
	}
	if got := atomic.LoadInt64(hits); got != 1 {
		t.Fatalf("expected a re-probe at the TTL boundary, saw %d requests", got)
	}
}

func TestProbeFoldsHTTPFailureIntoRecord(t *testing.T) {
	cache, mock := newTestProbeCache(t, time.Hour)
	server, _ := newCountingHeadServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(server.URL).
		WillReturnRows(sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.media_head_cache")).
		WithArgs(server.URL, nil, sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	probe, err := cache.Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("a failed probe is a record, not an error, got %v", err)
	}
	if probe.OK {
		t.Fatal("expected ok=false for a 404 target")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbeFoldsNetworkFailureIntoRecord(t *testing.T) {
	cache, mock := newTestProbeCache(t, time.Hour)

	// Unroutable port, the HEAD request itself fails
	target := "http://127.0.0.1:1/media.jpg"
	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(target).
		WillReturnRows(sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.media_head_cache")).
		WithArgs(target, nil, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	probe, err := cache.Probe(context.Background(), target)
	if err != nil {
		t.Fatalf("network failure should fold into the record, got %v", err)
	}
	if probe.OK || probe.ContentLength != nil {
		t.Fatalf("expected empty failed record, got %+v", probe)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbePropagatesStoreFailure(t *testing.T) {
	cache, mock := newTestProbeCache(t, time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs("http://127.0.0.1:1/media.jpg").
		WillReturnError(context.DeadlineExceeded)

	if _, err := cache.Probe(context.Background(), "http://127.0.0.1:1/media.jpg"); err == nil {
		t.Fatal("expected lookup failure to propagate")
	}
}
