// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.AccessToken = "test-token"
	cfg.RequestsPerSecond = 0

	c, err := NewClient(cfg, srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURLAndToken(t *testing.T) {
	_, err := NewClient(Config{AccessToken: "t"}, nil, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "https://example.com"}, nil, nil)
	assert.Error(t, err)
}

func TestListPage_ParsesObjectsAndCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/list", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("types"), "ITEM_VARIATION")
		assert.Empty(t, r.URL.Query().Get("begin_time"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"objects": [
				{"id": "cat-1", "type": "CATEGORY", "updated_at": "2025-06-01T12:00:00Z",
				 "category_data": {"name": "Drinks"}},
				{"id": "item-1", "type": "ITEM", "updated_at": "2025-06-01T12:01:00Z",
				 "item_data": {"name": "Espresso", "category_id": "cat-1"}}
			],
			"cursor": "next-page"
		}`))
	})

	page, err := c.ListPage(context.Background(), "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "next-page", page.Cursor)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, catalog.TypeCategory, page.Objects[0].Type)
	assert.Equal(t, "Espresso", page.Objects[1].Item.Name)
}

func TestListPage_PassesCursorAndWatermark(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Equal(t, "2025-06-01T12:00:00Z", r.URL.Query().Get("begin_time"))
		_, _ = w.Write([]byte(`{"objects": [], "cursor": ""}`))
	})

	page, err := c.ListPage(context.Background(), "abc", since)
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	assert.Empty(t, page.Objects)
}

func TestListPage_DeletionNotification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"objects": [{"id": "item-9", "type": "ITEM", "is_deleted": true,
			             "updated_at": "2025-06-01T12:00:00Z"}],
			"cursor": ""
		}`))
	})

	page, err := c.ListPage(context.Background(), "", time.Time{})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.True(t, page.Objects[0].IsDeleted)
	assert.Nil(t, page.Objects[0].Item)
}

func TestListPage_ErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
		{"bad request", http.StatusBadRequest, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"errors": [{"category": "X", "code": "CODE", "detail": "detail"}]}`))
			})

			_, err := c.ListPage(context.Background(), "", time.Time{})
			require.Error(t, err)
			assert.Equal(t, tc.retryable, resilience.IsRetryable(err))
			assert.Contains(t, err.Error(), "CODE")
		})
	}
}

func TestListPage_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"objects": [], "cursor": ""}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListPage(ctx, "", time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
