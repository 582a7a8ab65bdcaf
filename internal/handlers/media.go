package handlers

import (
	"context"
	"fmt"
	"net/url"
)

var allowedMediaSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// validateMediaURLs enforces protocol and size policy on every media reference
// before an event is queued. Checks run per URL in order and fail fast: the
// first violation aborts the batch. An empty list is trivially valid.
func validateMediaURLs(ctx context.Context, urls []string, maxBytes int64) error {
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &MediaPolicyError{URL: raw, Reason: "malformed URL"}
		}

		if !allowedMediaSchemes[parsed.Scheme] {
			return &MediaPolicyError{URL: raw, Reason: "disallowed protocol (only http/https allowed)"}
		}

		probe, err := probes.Probe(ctx, raw)
		if err != nil {
			return fmt.Errorf("media probe lookup for %s: %w", raw, err)
		}

		if probe.ContentLength != nil && *probe.ContentLength > maxBytes {
			return &MediaPolicyError{
				URL:    raw,
				Reason: fmt.Sprintf("media file too large (%d bytes, max %d)", *probe.ContentLength, maxBytes),
			}
		}

		if !probe.OK {
			return &MediaPolicyError{URL: raw, Reason: "HEAD failed or URL not reachable"}
		}
	}
	return nil
}
