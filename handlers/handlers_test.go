// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/backoff"
	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/session"
	"github.com/aleutianai/shopstream/store"
)

// newTestRouter builds the full handler stack over an in-memory catalog.
func newTestRouter(t *testing.T) (*gin.Engine, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	require.NoError(t, st.PutProduct(ctx, datatypes.Product{
		ID: "prod_1", Name: "Wireless Headphones", Price: 149.99,
		Category: datatypes.CategoryElectronics, InStock: true, StockQuantity: 10,
	}))
	require.NoError(t, st.PutProduct(ctx, datatypes.Product{
		ID: "prod_2", Name: "Bluetooth Speaker", Price: 79.99,
		Category: datatypes.CategoryElectronics, InStock: true, StockQuantity: 5,
	}))

	cat := catalog.NewService(st)
	tracker := contextwindow.New(contextwindow.DefaultConfig())
	bus := eventbus.New(eventbus.DefaultConfig())
	executor := agent.NewExecutor(cat, tracker)
	orch := agent.NewOrchestrator(bus, agent.NewIntentPlanner(), executor, agent.NewSimulatedNarrator())

	baseCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	reg := session.NewRegistry(baseCtx, bus, tracker, cat, orch, time.Hour)

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/api/stream/:sessionId", Stream(reg, bus, orch, backoff.Default()))
	router.POST("/api/sessions", CreateSession(reg))
	router.DELETE("/api/sessions/:sessionId", DeleteSession(reg))
	router.GET("/api/sessions/:sessionId/context", GetSessionContext(reg, tracker, cat))
	router.POST("/api/chat/:sessionId/message", PostMessage(reg))
	router.POST("/api/functions/search_products", SearchProducts(reg, executor))
	router.POST("/api/functions/add_to_cart", AddToCart(reg, executor))
	router.POST("/api/functions/get_cart", GetCart(reg, executor))
	return router, reg
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Session Lifecycle
// =============================================================================

func TestCreateSessionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var info datatypes.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotEmpty(t, info.SessionID)
	assert.True(t, info.ExpiresAt.After(info.CreatedAt))
}

func TestDeleteSessionEndpoint(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	rec := doJSON(t, router, http.MethodDelete, "/api/sessions/"+s.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/sessions/"+s.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), datatypes.ErrCodeSessionNotFound)
}

func TestGetSessionContextEndpoint(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	// Seed some history through the direct function path.
	rec := doJSON(t, router, http.MethodPost, "/api/functions/search_products",
		`{"session_id":"`+s.ID+`","query":"headphones"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/functions/add_to_cart",
		`{"session_id":"`+s.ID+`","product_id":"prod_1","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/sessions/"+s.ID+"/context", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.SessionContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"headphones"}, resp.RecentSearches)
	require.NotNil(t, resp.Cart)
	require.Len(t, resp.Cart.Items, 1)
	assert.Equal(t, "prod_1", resp.Cart.Items[0].ProductID)
}

func TestSessionContextUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/sessions/nope/context", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Chat Messages
// =============================================================================

func TestPostMessageAck(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	rec := doJSON(t, router, http.MethodPost, "/api/chat/"+s.ID+"/message",
		`{"message":"search headphones"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack datatypes.MessageAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, s.ID, ack.SessionID)
}

func TestPostMessageValidation(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	rec := doJSON(t, router, http.MethodPost, "/api/chat/"+s.ID+"/message", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/chat/unknown/message", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Direct Tool Endpoints
// =============================================================================

func TestSearchProductsEndpoint(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	rec := doJSON(t, router, http.MethodPost, "/api/functions/search_products",
		`{"session_id":"`+s.ID+`","query":"speaker"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.FunctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data.Search)
	require.Len(t, resp.Data.Search.Products, 1)
	assert.Equal(t, "prod_2", resp.Data.Search.Products[0].ID)
}

func TestAddToCartRefusesUnseenProduct(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	// The search surfaces prod_1 and prod_2; prod_999 was never shown.
	rec := doJSON(t, router, http.MethodPost, "/api/functions/search_products",
		`{"session_id":"`+s.ID+`","query":""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/functions/add_to_cart",
		`{"session_id":"`+s.ID+`","product_id":"prod_999","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.FunctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Data.Error)
	assert.Equal(t, datatypes.ErrCodeValidation, resp.Data.Error.Code)
	assert.NotEmpty(t, resp.Data.Error.Suggestions)
}

func TestFunctionEndpointUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/functions/get_cart",
		`{"session_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFunctionEndpointBadBody(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/functions/add_to_cart", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Event Stream
// =============================================================================

func TestStreamUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/stream/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamDeliversWelcomeTurn(t *testing.T) {
	router, reg := newTestRouter(t)
	s := reg.Create()

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/"+s.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var sawRetry, sawConnection, sawText, sawCompletion bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && !sawCompletion {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "retry: "):
			sawRetry = true
		case line == "event: connection":
			sawConnection = true
		case line == "event: text_chunk":
			sawText = true
		case line == "event: completion":
			sawCompletion = true
		}
	}

	assert.True(t, sawRetry, "retry hint before any event")
	assert.True(t, sawConnection)
	assert.True(t, sawText, "greeting turn streams text")
	assert.True(t, sawCompletion)
}
