// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote fetches catalog pages from the upstream catalog API.
//
// The upstream exposes cursor-based pagination: each page carries a batch
// of objects plus an opaque cursor for the next page; an empty cursor
// means the listing is complete. Incremental listings pass a begin_time
// watermark and receive only objects changed since then, including
// deletion notifications.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/resilience"
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds upstream connection settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://connect.example.com".
	BaseURL string

	// AccessToken is the bearer token for the Authorization header.
	AccessToken string

	// Timeout is the per-request timeout applied to the default client.
	Timeout time.Duration

	// PageLimit is the requested page size. The server may return less.
	PageLimit int

	// RequestsPerSecond caps the outbound request rate. 0 disables
	// client-side limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns conservative client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		PageLimit:         100,
		RequestsPerSecond: 5,
	}
}

// Page is one page of a catalog listing.
type Page struct {
	Objects []catalog.Object

	// Cursor fetches the next page; empty means the listing is complete.
	Cursor string
}

// listResponse is the upstream wire format.
type listResponse struct {
	Objects []catalog.Object `json:"objects"`
	Cursor  string           `json:"cursor"`
}

type apiError struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}

// Client lists catalog objects from the upstream API.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	config  Config
	http    HTTPClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a catalog API client.
//
// Inputs:
//
//	cfg - Connection settings. BaseURL and AccessToken are required.
//	httpClient - Injectable transport. If nil, a default client with
//	  cfg.Timeout is used.
//	logger - Logger. If nil, slog.Default() is used.
func NewClient(cfg Config, httpClient HTTPClient, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("access token is required")
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		config:  cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "catalog_client")),
	}, nil
}

// ListPage fetches one page of the catalog listing.
//
// Description:
//
//	Requests GET /v2/catalog/list with the configured object types.
//	cursor resumes a prior listing; changedSince (if non-zero) restricts
//	the listing to objects modified after the watermark, including
//	deletion notifications.
//
// Outputs:
//
//	Page - The fetched objects and the next cursor.
//	error - Classified for retry decisions: auth and validation failures
//	  are terminal, rate limits and server errors are transient.
//
// Thread Safety: Safe for concurrent use.
func (c *Client) ListPage(ctx context.Context, cursor string, changedSince time.Time) (Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, err
		}
	}

	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/v2/catalog/list")
	if err != nil {
		return Page{}, fmt.Errorf("parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("types", typesParam())
	q.Set("limit", fmt.Sprintf("%d", c.config.PageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if !changedSince.IsZero() {
		q.Set("begin_time", changedSince.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, resilience.NewTransientError(fmt.Errorf("catalog list: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Page{}, resilience.NewTransientError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return Page{}, c.classifyStatus(resp.StatusCode, body)
	}

	var decoded listResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Page{}, resilience.NewTransientError(fmt.Errorf("decode response: %w", err))
	}

	c.logger.Debug("fetched catalog page",
		slog.Int("objects", len(decoded.Objects)),
		slog.Bool("has_more", decoded.Cursor != ""),
	)
	return Page{Objects: decoded.Objects, Cursor: decoded.Cursor}, nil
}

// classifyStatus maps HTTP failures onto retry classes.
func (c *Client) classifyStatus(status int, body []byte) error {
	detail := errorDetail(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resilience.NewAuthError(fmt.Errorf("catalog list: status %d: %s", status, detail))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return resilience.NewValidationError(fmt.Errorf("catalog list: status %d: %s", status, detail))
	case status == http.StatusTooManyRequests || status >= 500:
		return resilience.NewTransientError(fmt.Errorf("catalog list: status %d: %s", status, detail))
	default:
		return resilience.NewTransientError(fmt.Errorf("catalog list: unexpected status %d: %s", status, detail))
	}
}

func errorDetail(body []byte) string {
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && len(decoded.Errors) > 0 {
		return decoded.Errors[0].Code + ": " + decoded.Errors[0].Detail
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func typesParam() string {
	parts := make([]string, 0, len(catalog.AllTypes))
	for _, t := range catalog.AllTypes {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ",")
}
