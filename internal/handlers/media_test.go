package handlers

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
)

// installTestProbes points the package at a sqlmock-backed cache and restores
// the previous state when the test finishes.
func installTestProbes(t *testing.T, ttl time.Duration) sqlmock.Sqlmock {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	prevProbes, prevLogger, prevMetrics := probes, logger, metrics
	probes = NewProbeCache(mockDB, log, ttl, 2*time.Second)
	logger = log
	metrics = nil
	t.Cleanup(func() {
		probes, logger, metrics = prevProbes, prevLogger, prevMetrics
		mockDB.Close()
	})
	return mock
}

const testMaxMediaBytes = int64(10 * 1024 * 1024)

func TestValidateMediaURLsEmptyListIsValid(t *testing.T) {
	mock := installTestProbes(t, time.Hour)

	if err := validateMediaURLs(context.Background(), nil, testMaxMediaBytes); err != nil {
		t.Fatalf("empty list must pass, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no probes should run for an empty list: %v", err)
	}
}

func TestValidateMediaURLsRejectsSchemeBeforeProbing(t *testing.T) {
	mock := installTestProbes(t, time.Hour)

	err := validateMediaURLs(context.Background(), []string{"ftp://files.example.com/a.jpg"}, testMaxMediaBytes)
	var policy *MediaPolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("expected MediaPolicyError, got %v", err)
	}
	if !strings.Contains(policy.Reason, "protocol") {
		t.Fatalf("unexpected reason: %s", policy.Reason)
	}
	// The scheme check must short-circuit with no cache or network access
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("probe ran for a disallowed scheme: %v", err)
	}
}

func TestValidateMediaURLsRejectsMalformed(t *testing.T) {
	installTestProbes(t, time.Hour)

	err := validateMediaURLs(context.Background(), []string{"not a url"}, testMaxMediaBytes)
	var policy *MediaPolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("expected MediaPolicyError, got %v", err)
	}
}

func cachedRow(url string, length int64, ok bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"url", "content_length", "content_type", "ok", "checked_at"}).
		AddRow(url, length, "image/jpeg", ok, time.Now().Add(-time.Minute))
}

func TestValidateMediaURLsSizeCeiling(t *testing.T) {
	mock := installTestProbes(t, time.Hour)
	target := "https://cdn.example.com/huge.mp4"

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(target).
		WillReturnRows(cachedRow(target, 11*1024*1024, true))

	err := validateMediaURLs(context.Background(), []string{target}, testMaxMediaBytes)
	var policy *MediaPolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("expected MediaPolicyError, got %v", err)
	}
	if !strings.Contains(policy.Reason, "11534336 bytes, max 10485760") {
		t.Fatalf("expected exact byte counts in reason, got %s", policy.Reason)
	}
}

func TestValidateMediaURLsAcceptsAtCeiling(t *testing.T) {
	mock := installTestProbes(t, time.Hour)
	target := "https://cdn.example.com/exact.mp4"

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(target).
		WillReturnRows(cachedRow(target, testMaxMediaBytes, true))

	if err := validateMediaURLs(context.Background(), []string{target}, testMaxMediaBytes); err != nil {
		t.Fatalf("a file exactly at the ceiling must pass, got %v", err)
	}
}

func TestValidateMediaURLsRejectsUnreachable(t *testing.T) {
	mock := installTestProbes(t, time.Hour)
	target := "https://cdn.example.com/gone.jpg"

	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(target).
		WillReturnRows(cachedRow(target, 1024, false))

	err := validateMediaURLs(context.Background(), []string{target}, testMaxMediaBytes)
	var policy *MediaPolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("expected MediaPolicyError, got %v", err)
	}
	if !strings.Contains(policy.Reason, "not reachable") {
		t.Fatalf("unexpected reason: %s", policy.Reason)
	}
}

func TestValidateMediaURLsFailsFastOnFirstViolation(t *testing.T) {
	mock := installTestProbes(t, time.Hour)
	first := "https://cdn.example.com/bad.jpg"

	// Only the first URL is probed, the second never runs
	mock.ExpectQuery(regexp.QuoteMeta("FROM switchboard.media_head_cache")).
		WithArgs(first).
		WillReturnRows(cachedRow(first, 1024, false))

	urls := []string{first, "https://cdn.example.com/never.jpg"}
	if err := validateMediaURLs(context.Background(), urls, testMaxMediaBytes); err == nil {
		t.Fatal("expected first violation to abort the batch")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
