package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSignInStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/signin" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Signature string `json:"signature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Signature != "0xsigned" {
			t.Errorf("unexpected signature: %s", payload.Signature)
		}
		_ = json.NewEncoder(w).Encode(Token{AccessToken: "bearer-token"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	token, err := client.SignIn(context.Background(), "0xsigned")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if token.AccessToken != "bearer-token" {
		t.Fatalf("unexpected token: %s", token.AccessToken)
	}
	if client.AccessToken() != "bearer-token" {
		t.Fatalf("token not stored on client")
	}
}

func TestClientAgentsSendsBearerAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		query := r.URL.Query()
		if query.Get("page") != "2" || query.Get("limit") != "10" || query.Get("sortBy") != "createdAt" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode([]Agent{{ID: 1, Name: "alpha"}, {ID: 2, Name: "beta"}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("tok")

	agents, err := client.Agents(context.Background(), AgentsQuery{Page: 2, Limit: 10, SortBy: "createdAt", SortDirection: "desc"})
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	if len(agents) != 2 || agents[0].Name != "alpha" {
		t.Fatalf("unexpected agents: %+v", agents)
	}
}

func TestClientAuthedCallWithoutTokenFails(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Agents(context.Background(), AgentsQuery{}); err == nil {
		t.Fatal("expected error when access token missing")
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"VALIDATION","message":"name required"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("tok")

	_, err = client.CreateAgent(context.Background(), CreateAgentRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "VALIDATION" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClientUploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/upload" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			file.Close()
			if header.Filename != "logo.png" {
				t.Errorf("unexpected filename: %s", header.Filename)
			}
		}
		_ = json.NewEncoder(w).Encode(UploadedFile{Filename: "logo.png", URL: "/files/logo.png"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("tok")

	uploaded, err := client.UploadFile(context.Background(), "logo.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if uploaded.Filename != "logo.png" {
		t.Fatalf("unexpected upload response: %+v", uploaded)
	}
}
