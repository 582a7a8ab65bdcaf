package handlers

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/DSTX70/gigster-switchboard/pkg/logging"
	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// ProbeCache performs HEAD-style metadata probes on externally referenced media
// and persists the results keyed by URL. Entries younger than the TTL are served
// without network I/O; anything older is re-probed and overwritten. There is no
// size bound or eviction, only TTL-driven refresh of keys already seen.
type ProbeCache struct {
	db     *sql.DB
	logger logging.Logger
	client *resty.Client
	ttl    time.Duration
}

// NewProbeCache creates a probe cache backed by the given database
func NewProbeCache(database *sql.DB, log logging.Logger, ttl, timeout time.Duration) *ProbeCache {
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &ProbeCache{
		db:     database,
		logger: log,
		client: client,
		ttl:    ttl,
	}
}

// Probe returns the cached record for url if it is still fresh, otherwise
// performs a HEAD request and upserts the result. A probe failure is data, not
// an error: it is folded into an ok=false record. Only store failures propagate.
func (pc *ProbeCache) Probe(ctx context.Context, url string) (models.MediaProbe, error) {
	cached, found, err := pc.lookup(ctx, url)
	if err != nil {
		return models.MediaProbe{}, err
	}
	if found && time.Since(cached.CheckedAt) < pc.ttl {
		countMediaProbe("cache_hit")
		return cached, nil
	}

	probe := pc.head(ctx, url)
	if probe.OK {
		countMediaProbe("probed")
	} else {
		countMediaProbe("failed")
	}

	if err := pc.upsert(ctx, probe); err != nil {
		return models.MediaProbe{}, err
	}
	return probe, nil
}

func (pc *ProbeCache) lookup(ctx context.Context, url string) (models.MediaProbe, bool, error) {
	var (
		probe         models.MediaProbe
		contentLength sql.NullInt64
		contentType   sql.NullString
	)
	err := pc.db.QueryRowContext(ctx, `
		SELECT url, content_length, content_type, ok, checked_at
		FROM switchboard.media_head_cache
		WHERE url = $1
	`, url).Scan(&probe.URL, &contentLength, &contentType, &probe.OK, &probe.CheckedAt)
	if err == sql.ErrNoRows {
		return models.MediaProbe{}, false, nil
	}
	if err != nil {
		return models.MediaProbe{}, false, err
	}

	if contentLength.Valid {
		probe.ContentLength = &contentLength.Int64
	}
	if contentType.Valid {
		probe.ContentType = &contentType.String
	}
	return probe, true, nil
}

// head issues the bounded HEAD request. Timeouts, network errors and non-2xx
// statuses all collapse into ok=false with null metadata.
func (pc *ProbeCache) head(ctx context.Context, url string) models.MediaProbe {
	probe := models.MediaProbe{URL: url, CheckedAt: time.Now()}

	resp, err := pc.client.R().SetContext(ctx).Head(url)
	if err != nil {
		pc.logger.WithFields(logging.Fields{
			"url":   url,
			"error": err.Error(),
		}).Debug("Media HEAD probe failed")
		return probe
	}

	probe.OK = resp.IsSuccess()
	if length, err := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64); err == nil && length > 0 {
		probe.ContentLength = &length
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "" {
		probe.ContentType = &contentType
	}
	return probe
}

func (pc *ProbeCache) upsert(ctx context.Context, probe models.MediaProbe) error {
	var (
		contentLength interface{}
		contentType   interface{}
	)
	if probe.ContentLength != nil {
		contentLength = *probe.ContentLength
	}
	if probe.ContentType != nil {
		contentType = *probe.ContentType
	}

	_, err := pc.db.ExecContext(ctx, `
		INSERT INTO switchboard.media_head_cache (url, content_length, content_type, ok, checked_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (url) DO UPDATE
		SET content_length = EXCLUDED.content_length,
		    content_type = EXCLUDED.content_type,
		    ok = EXCLUDED.ok,
		    checked_at = NOW()
	`, probe.URL, contentLength, contentType, probe.OK)
	return err
}

func countMediaProbe(result string) {
	if metrics != nil && metrics.MediaProbes != nil {
		metrics.MediaProbes.WithLabelValues(result).Inc()
	}
}
