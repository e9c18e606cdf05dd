package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmantle/openmantle/pkg/config"
)

func newTestClient(t *testing.T, host string, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		Config: config.CatalogConfig{Host: host},
	}
	if mutate != nil {
		mutate(&opts)
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(Options{})
	if err == nil {
		t.Fatal("Expected error for missing host")
	}
	if got := err.Error(); got != "catalog host is required" {
		t.Errorf("Unexpected error message: %q", got)
	}
}

func TestClient_FindByFqn_ReturnsDecodedEntity(t *testing.T) {
	var gotMethod, gotPath, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                 "tbl-1",
			"name":               "orders",
			"fullyQualifiedName": "warehouse.sales.public.orders",
			"databaseSchema":     "warehouse.sales.public",
			"tableType":          "Regular",
			"columns": []map[string]string{
				{"name": "id", "dataType": "INT"},
				{"name": "amount", "dataType": "DOUBLE"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	defer client.Close()

	entity, err := client.FindByFqn(context.Background(), config.TypeTable, "warehouse.sales.public.orders")
	if err != nil {
		t.Fatalf("FindByFqn returned error: %v", err)
	}
	if entity == nil {
		t.Fatal("Expected entity, got nil")
	}

	if gotMethod != http.MethodGet {
		t.Errorf("Expected GET request, got %s", gotMethod)
	}
	if want := "/api/v1/tables/name/warehouse.sales.public.orders"; gotPath != want {
		t.Errorf("Expected request path %q, got %q", want, gotPath)
	}
	if gotAccept != "application/json" {
		t.Errorf("Expected Accept application/json, got %q", gotAccept)
	}

	table, ok := entity.(*Table)
	if !ok {
		t.Fatalf("Expected *Table, got %T", entity)
	}
	if table.Fqn() != "warehouse.sales.public.orders" {
		t.Errorf("Unexpected FQN: %q", table.Fqn())
	}
	if table.ID != "tbl-1" {
		t.Errorf("Expected ID tbl-1, got %q", table.ID)
	}
	fields := table.SchemaFields()
	if len(fields) != 2 || fields["id"] != "INT" || fields["amount"] != "DOUBLE" {
		t.Errorf("Unexpected schema fields: %v", fields)
	}
}

func TestClient_FindByFqn_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	entity, err := client.FindByFqn(context.Background(), config.TypeDatabase, "warehouse.sales")
	if err != nil {
		t.Fatalf("Expected nil error for 404, got %v", err)
	}
	if entity != nil {
		t.Errorf("Expected nil entity for 404, got %v", entity)
	}
}

func TestClient_FindByFqn_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal failure"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.FindByFqn(context.Background(), config.TypeDatabase, "warehouse.sales")
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "internal failure" {
		t.Errorf("Expected message from response body, got %q", apiErr.Message)
	}
	if !IsTransient(err) {
		t.Error("Expected 500 to classify as transient")
	}
	if IsNotFound(err) {
		t.Error("500 must not classify as not found")
	}
}

func TestClient_Create_PostsToCollection(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		body["id"] = "svc-1"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	created, err := client.Create(context.Background(), &DatabaseService{
		Name:               "warehouse",
		FullyQualifiedName: "warehouse",
		ServiceType:        "postgres",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST request, got %s", gotMethod)
	}
	if want := "/api/v1/databaseServices"; gotPath != want {
		t.Errorf("Expected request path %q, got %q", want, gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", gotContentType)
	}

	service, ok := created.(*DatabaseService)
	if !ok {
		t.Fatalf("Expected *DatabaseService, got %T", created)
	}
	if service.ID != "svc-1" {
		t.Errorf("Expected stored ID svc-1, got %q", service.ID)
	}
	if service.Name != "warehouse" {
		t.Errorf("Expected name warehouse, got %q", service.Name)
	}
}

func TestClient_Update_PutsToCollection(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"sales","fullyQualifiedName":"warehouse.sales"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	updated, err := client.Update(context.Background(), &Database{
		Name:               "sales",
		FullyQualifiedName: "warehouse.sales",
		Service:            "warehouse",
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("Expected PUT request, got %s", gotMethod)
	}
	if want := "/api/v1/databases"; gotPath != want {
		t.Errorf("Expected request path %q, got %q", want, gotPath)
	}
	if updated.Fqn() != "warehouse.sales" {
		t.Errorf("Unexpected FQN on stored entity: %q", updated.Fqn())
	}
}

func TestClient_DryRun_SkipsWrites(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.DryRun = true
	})

	input := &DatabaseService{Name: "warehouse", FullyQualifiedName: "warehouse"}
	created, err := client.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created != input {
		t.Error("Expected dry-run create to return the input entity unchanged")
	}
	if _, err := client.Update(context.Background(), input); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("Expected no requests for dry-run writes, got %d", n)
	}

	// Reads stay live so dependency checks see the real catalog.
	entity, err := client.FindByFqn(context.Background(), config.TypeDatabaseService, "warehouse")
	if err != nil || entity != nil {
		t.Fatalf("Expected (nil, nil) from live read, got (%v, %v)", entity, err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected 1 request for dry-run read, got %d", n)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"svc-1","name":"warehouse","fullyQualifiedName":"warehouse"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.Config.Retry = config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: config.Duration(time.Millisecond),
			MaxDelay:     config.Duration(5 * time.Millisecond),
			Multiplier:   2.0,
		}
	})

	created, err := client.Create(context.Background(), &DatabaseService{Name: "warehouse", FullyQualifiedName: "warehouse"})
	if err != nil {
		t.Fatalf("Expected create to succeed after retries, got %v", err)
	}
	if created.Fqn() != "warehouse" {
		t.Errorf("Unexpected FQN on stored entity: %q", created.Fqn())
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestClient_DoesNotRetryPermanentErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"malformed entity"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.Config.Retry = config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: config.Duration(time.Millisecond),
		}
	})

	_, err := client.Create(context.Background(), &DatabaseService{Name: "warehouse", FullyQualifiedName: "warehouse"})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 APIError, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("Expected exactly 1 attempt for permanent error, got %d", n)
	}
}

func TestClient_JWTAuthHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.Config.Auth = config.AuthConfig{Type: config.AuthJWT, Token: "tok-123"}
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Expected Bearer token header, got %q", gotAuth)
	}
}

func TestClient_BasicAuthHeader(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.Config.Auth = config.AuthConfig{Type: config.AuthBasic, Username: "admin", Password: "secret"}
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if !gotOK || gotUser != "admin" || gotPass != "secret" {
		t.Errorf("Expected basic auth admin/secret, got %q/%q (ok=%v)", gotUser, gotPass, gotOK)
	}
}

func TestClient_Ping(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if want := "/api/v1/health"; gotPath != want {
		t.Errorf("Expected health path %q, got %q", want, gotPath)
	}
}

func TestClient_PingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("Expected error for unhealthy catalog")
	}
	if !strings.Contains(err.Error(), "catalog health check failed") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestClient_RateLimiterAllowsSequentialRequests(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(opts *Options) {
		opts.Config.RateLimit = config.RateLimitConfig{RequestsPerSecond: 200, Burst: 1}
	})

	for i := 0; i < 3; i++ {
		if err := client.Ping(context.Background()); err != nil {
			t.Fatalf("Ping %d returned error: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("Expected 3 requests, got %d", n)
	}
}
