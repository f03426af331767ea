//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/ruleeval/migrations"
	"github.com/liamcoop/ruleeval/rules"
)

// setupTestDB creates a PostgreSQL testcontainer and runs the embedded migrations
func setupTestDB(t *testing.T) *sql.DB {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := migrations.Up(connStr); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

// TestEndToEndPostgres runs the register, create, evaluate workflow against PostgreSQL
func TestEndToEndPostgres(t *testing.T) {
	db := setupTestDB(t)

	engine, err := rules.NewEngine(rules.NewPostgresRuleStore(db), rules.NewPostgresVariableStore(db))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	ts := httptest.NewServer(NewServer(engine, ServerOptions{DB: db}))
	defer ts.Close()
	api := ts.URL + "/api/v1"

	status, body := doRequest(t, http.MethodGet, api+"/health", nil)
	mustStatus(t, status, http.StatusOK, body)

	status, body = doRequest(t, http.MethodPost, api+"/variables/1", VariableRequest{Name: "a", Type: "INVALID"})
	mustStatus(t, status, http.StatusBadRequest, body)

	status, body = doRequest(t, http.MethodPost, api+"/variables/1", VariableRequest{Name: "a", Type: rules.TypeInteger})
	mustStatus(t, status, http.StatusCreated, body)

	// The sequence must have moved past the explicit id
	status, body = doRequest(t, http.MethodPost, api+"/variables", VariableRequest{Name: "b", Type: rules.TypeString})
	mustStatus(t, status, http.StatusCreated, body)

	status, body = doRequest(t, http.MethodPost, api+"/variables", VariableRequest{Name: "a", Type: rules.TypeFloat})
	mustStatus(t, status, http.StatusConflict, body)

	status, body = doRequest(t, http.MethodPost, api+"/rules/1", RuleRequest{Name: "positive", Condition: "a > 0", Action: "approved"})
	mustStatus(t, status, http.StatusCreated, body)

	status, body = doRequest(t, http.MethodPost, api+"/rules", RuleRequest{Name: "broken", Condition: "(((", Action: "never"})
	mustStatus(t, status, http.StatusCreated, body)

	status, body = doRequest(t, http.MethodGet, evaluationURL(t, ts.URL, map[string]any{"a": "42", "unknown": 1}), nil)
	mustStatus(t, status, http.StatusOK, body)

	results := decodeResults(t, body)
	if len(results) != 1 || results[0].RuleID != 1 || results[0].Result != "approved" {
		t.Errorf("Expected [{1 approved}], got %+v", results)
	}

	status, body = doRequest(t, http.MethodDelete, api+"/rules/1", nil)
	mustStatus(t, status, http.StatusNoContent, body)

	status, body = doRequest(t, http.MethodGet, api+"/rules/1", nil)
	mustStatus(t, status, http.StatusNotFound, body)
}
