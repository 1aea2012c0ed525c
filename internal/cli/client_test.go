package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/agent/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Farm != "Green Valley" || req.Quantity != 3 || req.Price != 2.5 {
			t.Errorf("unexpected request body: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(summaryResponse{Summary: "Order status updates: Shipping agent: delivered (final)"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	summary, err := client.CreateOrder("Green Valley", 3, 2.5)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if !strings.Contains(summary, "(final)") {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestClient_CreateOrder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "broadcast failed: retries exhausted"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreateOrder("Green Valley", 3, 2.5)
	if err == nil || err.Error() != "broadcast failed: retries exhausted" {
		t.Fatalf("expected API error text, got %v", err)
	}
}

func TestClient_CreateOrder_OpaqueError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreateOrder("Green Valley", 3, 2.5)
	if err == nil || !strings.Contains(err.Error(), "API error: HTTP 500") {
		t.Fatalf("expected opaque HTTP error, got %v", err)
	}
}

func TestClient_StreamOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"event":{"order_id":"abc","state":"RECEIVED_ORDER"}}`+"\n")
		_, _ = io.WriteString(w, "\n")
		_, _ = io.WriteString(w, `{"text":"Order abc from farm for 3 units at $2.50 has been successfully delivered."}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var items []StreamItem
	err := client.StreamOrder("Green Valley", 3, 2.5, func(item StreamItem) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamOrder failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items (blank lines skipped), got %d", len(items))
	}
	if items[0].Event == nil || items[0].Event.State != "RECEIVED_ORDER" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if !strings.Contains(items[1].Text, "successfully delivered") {
		t.Errorf("unexpected final item: %+v", items[1])
	}
}

func TestClient_StreamOrder_CallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"text":"one"}`+"\n")
		_, _ = io.WriteString(w, `{"text":"two"}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)

	calls := 0
	err := client.StreamOrder("Green Valley", 3, 2.5, func(StreamItem) error {
		calls++
		return io.ErrClosedPipe
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}
	if calls != 1 {
		t.Fatalf("callback must stop the stream, got %d calls", calls)
	}
}

func TestClient_OrderEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/abc123/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("after") != "2" || r.URL.Query().Get("timeout") != "5s" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(EventsResponse{
			Events: []OrderEvent{{OrderID: "abc123", State: "DELIVERED"}},
			Next:   3,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.OrderEvents("abc123", 2, 5*time.Second)
	if err != nil {
		t.Fatalf("OrderEvents failed: %v", err)
	}
	if len(resp.Events) != 1 || resp.Next != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClient_OrderUpdatesAndLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/updates":
			_ = json.NewEncoder(w).Encode(UpdatesResponse{
				Orders:  []NewOrderEntry{{Seq: 1, OrderID: "abc123"}},
				NextSeq: 1,
			})
		case "/orders/latest":
			_ = json.NewEncoder(w).Encode(NewOrderEntry{Seq: 1, OrderID: "abc123"})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)

	updates, err := client.OrderUpdates(0, time.Second)
	if err != nil {
		t.Fatalf("OrderUpdates failed: %v", err)
	}
	if len(updates.Orders) != 1 || updates.NextSeq != 1 {
		t.Fatalf("unexpected updates: %+v", updates)
	}

	latest, err := client.LatestOrder()
	if err != nil {
		t.Fatalf("LatestOrder failed: %v", err)
	}
	if latest.OrderID != "abc123" {
		t.Fatalf("unexpected latest entry: %+v", latest)
	}
}

func TestClient_DeleteOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/orders/abc123" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.DeleteOrder("abc123"); err != nil {
		t.Fatalf("DeleteOrder failed: %v", err)
	}
}
