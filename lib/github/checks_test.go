// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_CreateCheckRun(t *testing.T) {
	var receivedPath, receivedMethod string
	var receivedBody CreateCheckRunRequest

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.Path
		receivedMethod = request.Method
		json.NewDecoder(request.Body).Decode(&receivedBody)

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(CheckRun{ID: 99, HeadSHA: receivedBody.HeadSHA, Status: "queued"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	result, err := client.CreateCheckRun(context.Background(), "acme", "widgets", CreateCheckRunRequest{
		Name:    "orgu-ci",
		HeadSHA: "deadbeef",
		Status:  "queued",
	})
	if err != nil {
		t.Fatalf("CreateCheckRun: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", receivedMethod)
	}
	if receivedPath != "/repos/acme/widgets/check-runs" {
		t.Errorf("path = %q, want /repos/acme/widgets/check-runs", receivedPath)
	}
	if receivedBody.Name != "orgu-ci" {
		t.Errorf("sent name = %q, want orgu-ci", receivedBody.Name)
	}
	if result.ID != 99 {
		t.Errorf("result.ID = %d, want 99", result.ID)
	}
}

func TestClient_UpdateCheckRun(t *testing.T) {
	var receivedPath, receivedMethod string
	var receivedBody UpdateCheckRunRequest

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.Path
		receivedMethod = request.Method
		json.NewDecoder(request.Body).Decode(&receivedBody)

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(CheckRun{ID: 7, Status: receivedBody.Status, Conclusion: receivedBody.Conclusion})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	result, err := client.UpdateCheckRun(context.Background(), "acme", "widgets", 7, UpdateCheckRunRequest{
		Status:     "completed",
		Conclusion: "success",
	})
	if err != nil {
		t.Fatalf("UpdateCheckRun: %v", err)
	}

	if receivedMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", receivedMethod)
	}
	if receivedPath != "/repos/acme/widgets/check-runs/7" {
		t.Errorf("path = %q, want /repos/acme/widgets/check-runs/7", receivedPath)
	}
	if receivedBody.Conclusion != "success" {
		t.Errorf("sent conclusion = %q, want success", receivedBody.Conclusion)
	}
	if result.Conclusion != "success" {
		t.Errorf("result.Conclusion = %q, want success", result.Conclusion)
	}
}

func TestValidateOutputTextLength_RejectsOversizedSummary(t *testing.T) {
	err := validateOutputTextLength(&CheckRunOutput{Summary: strings.Repeat("x", maxCheckRunTextLength+1)})
	if err == nil {
		t.Fatal("expected error for oversized summary")
	}
}

func TestValidateOutputTextLength_RejectsOversizedText(t *testing.T) {
	err := validateOutputTextLength(&CheckRunOutput{Text: strings.Repeat("x", maxCheckRunTextLength+1)})
	if err == nil {
		t.Fatal("expected error for oversized text")
	}
}

func TestValidateOutputTextLength_AcceptsNil(t *testing.T) {
	if err := validateOutputTextLength(nil); err != nil {
		t.Errorf("expected no error for nil output, got %v", err)
	}
}

func TestClient_CreateCheckRun_RejectsOversizedOutputBeforeRequest(t *testing.T) {
	requested := false
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requested = true
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreateCheckRun(context.Background(), "acme", "widgets", CreateCheckRunRequest{
		Name:    "orgu-ci",
		HeadSHA: "deadbeef",
		Output:  &CheckRunOutput{Summary: strings.Repeat("x", maxCheckRunTextLength+1)},
	})
	if err == nil {
		t.Fatal("expected error for oversized output")
	}
	if requested {
		t.Error("expected no HTTP request for a request rejected by local validation")
	}
}

func TestClient_RepositoryCustomProperties(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/acme/widgets" {
			t.Errorf("path = %q, want /repos/acme/widgets", request.URL.Path)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"custom_properties":{"team":"platform","tier":"1"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	props, err := client.RepositoryCustomProperties(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("RepositoryCustomProperties: %v", err)
	}
	if props["team"] != "platform" || props["tier"] != "1" {
		t.Errorf("unexpected properties: %+v", props)
	}
}

func TestClient_RepositoryCustomProperties_EmptyWhenAbsent(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"full_name":"acme/widgets"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	props, err := client.RepositoryCustomProperties(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("RepositoryCustomProperties: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("expected empty map, got %+v", props)
	}
}

func TestInstallationTokenSource_Mint(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(map[string]any{
			"token":      "ghs_minted",
			"expires_at": "2026-03-01T13:00:00Z",
		})
	}))
	defer server.Close()

	source, err := NewInstallationTokenSource(12345, 67890, testRSAPrivateKeyPEM, server.Client(), server.URL, nil)
	if err != nil {
		t.Fatalf("NewInstallationTokenSource: %v", err)
	}

	token, _, err := source.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if token != "ghs_minted" {
		t.Errorf("token = %q, want ghs_minted", token)
	}
}

func TestInstallationTokenSource_InvalidPEM(t *testing.T) {
	_, err := NewInstallationTokenSource(1, 1, []byte("not a pem"), nil, "", nil)
	if err == nil {
		t.Fatal("expected error for invalid PEM")
	}
}
