package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	senderAddr   = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	receiverAddr = "GDW6AUTBXTOC7FIKUO5BOO3OGLK4SF7ZPOBLMQHMZDI45J2Z6VXRB5NR"
)

func stubSettlement(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/locks":
			_ = json.NewEncoder(w).Encode(map[string]any{"reference": "lock-1"})
		case "/transfers":
			_ = json.NewEncoder(w).Encode(map[string]any{"reference": "tx-1", "ledger": 7})
		default:
			t.Errorf("unexpected settlement path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	settlement := stubSettlement(t)
	server, err := NewServer(Config{
		HTTPAddr:      "127.0.0.1:0",
		DBPath:        filepath.Join(t.TempDir(), "escrow.db"),
		SettlementURL: settlement.URL,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Close(); err != nil {
			t.Errorf("close server: %v", err)
		}
	})
	return server
}

func doJSON(t *testing.T, server *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

type contractResponse struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Status     string `json:"status"`
	Milestones []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		TransferRef string `json:"transferRef"`
	} `json:"milestones"`
}

func TestContractLifecycleEndToEnd(t *testing.T) {
	server := newTestServer(t)

	create := doJSON(t, server, http.MethodPost, "/api/contracts", `{
		"title": "Website redesign",
		"totalAmount": "1000",
		"currency": "USDC",
		"senderAddress": "`+senderAddr+`",
		"receiverAddress": "`+receiverAddr+`",
		"milestones": [
			{"title": "Design", "amount": "400"},
			{"title": "Build", "amount": "600"}
		]
	}`)
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", create.Code, create.Body.String())
	}
	var created contractResponse
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Status != "pending" || len(created.Milestones) != 2 {
		t.Fatalf("created = %+v", created)
	}

	// The share code resolves to the same contract.
	byCode := doJSON(t, server, http.MethodGet, "/api/contracts/code/"+created.Code, "")
	if byCode.Code != http.StatusOK {
		t.Fatalf("by code status = %d", byCode.Code)
	}
	var resolved contractResponse
	if err := json.Unmarshal(byCode.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	if resolved.ID != created.ID {
		t.Fatalf("resolved id = %q, want %q", resolved.ID, created.ID)
	}

	accept := doJSON(t, server, http.MethodPost, "/api/contracts/"+created.ID+"/decision",
		`{"callerAddress": "`+receiverAddr+`", "decision": "accept"}`)
	if accept.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", accept.Code, accept.Body.String())
	}

	for _, m := range created.Milestones {
		release := doJSON(t, server, http.MethodPost,
			"/api/contracts/"+created.ID+"/milestones/"+m.ID+"/release",
			`{"callerAddress": "`+senderAddr+`"}`)
		if release.Code != http.StatusOK {
			t.Fatalf("release %s status = %d: %s", m.ID, release.Code, release.Body.String())
		}
	}

	get := doJSON(t, server, http.MethodGet, "/api/contracts/"+created.ID, "")
	var final contractResponse
	if err := json.Unmarshal(get.Body.Bytes(), &final); err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if final.Status != "completed" {
		t.Errorf("final status = %q, want completed", final.Status)
	}
	for _, m := range final.Milestones {
		if m.Status != "completed" || m.TransferRef != "tx-1" {
			t.Errorf("milestone = %+v, want completed with transfer ref", m)
		}
	}
}

func TestReleaseBeforeAcceptConflicts(t *testing.T) {
	server := newTestServer(t)

	create := doJSON(t, server, http.MethodPost, "/api/contracts", `{
		"title": "Logo",
		"totalAmount": "200",
		"senderAddress": "`+senderAddr+`",
		"receiverAddress": "`+receiverAddr+`",
		"milestones": [
			{"title": "Sketch", "amount": "100"},
			{"title": "Final", "amount": "100"}
		]
	}`)
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", create.Code, create.Body.String())
	}
	var created contractResponse
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	release := doJSON(t, server, http.MethodPost,
		"/api/contracts/"+created.ID+"/milestones/"+created.Milestones[0].ID+"/release",
		`{"callerAddress": "`+senderAddr+`"}`)
	if release.Code != http.StatusConflict {
		t.Fatalf("release status = %d, want 409: %s", release.Code, release.Body.String())
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen and serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
