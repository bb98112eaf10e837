package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/pkg/models"
)

func TestBuildRegistryBaseline(t *testing.T) {
	registry, err := BuildRegistry(&config.Config{}, sessions.NewMemoryStore(nil), "u1")
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	for _, name := range []string{"current_time", "clear"} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("expected %s tool to always be present", name)
		}
	}
	for _, name := range []string{"geocode", "weather", "google_map", "tavily_search"} {
		if _, ok := registry.Get(name); ok {
			t.Errorf("tool %s must require an API key", name)
		}
	}
}

func TestBuildRegistryWithKeys(t *testing.T) {
	cfg := &config.Config{GoogleMapAPIKey: "gk", TavilyAPIKey: "tk"}
	registry, err := BuildRegistry(cfg, sessions.NewMemoryStore(nil), "u1")
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	want := []string{"current_time", "clear", "geocode", "weather", "weather_forecast", "google_map", "tavily_search", "tavily_extract"}
	if registry.Len() != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), registry.Len())
	}
	for _, name := range want {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("missing tool %s", name)
		}
	}
}

func TestClockTool(t *testing.T) {
	fixed := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	clock := &ClockTool{now: func() time.Time { return fixed }}

	result, err := clock.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "2026") {
		t.Errorf("unexpected clock output: %q", result.Content)
	}

	result, err = clock.Execute(context.Background(), json.RawMessage(`{"timezone":"Not/AZone"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "Error: ") {
		t.Errorf("expected error result for bad timezone, got %+v", result)
	}
}

type failingStore struct {
	sessions.Store
}

func (failingStore) Clear(context.Context, string) error {
	return errors.New("db unavailable")
}

func TestClearTool(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := sessions.NewMemoryStore(nil)
		ctx := context.Background()
		if err := store.SetMessages(ctx, "u1", []models.Message{{Role: models.RoleUser, Content: "x"}}); err != nil {
			t.Fatal(err)
		}

		result, err := NewClearTool(store, "u1").Execute(ctx, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.Content != "Successfully cleared chat history" || !result.ClearedHistory {
			t.Fatalf("unexpected result: %+v", result)
		}
		msgs, _ := store.GetMessages(ctx, "u1")
		if len(msgs) != 0 {
			t.Errorf("history not cleared: %#v", msgs)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		result, err := NewClearTool(failingStore{}, "u1").Execute(context.Background(), nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.Content != "Failed to clear chat history" || !result.IsError || result.ClearedHistory {
			t.Fatalf("unexpected result: %+v", result)
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		result, err := NewClearTool(nil, "u1").Execute(context.Background(), nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result.Content != "Clear function not configured" {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestGeocodeTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "Taipei Main Station" {
			t.Errorf("address param: got %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "gk" {
			t.Errorf("key param: got %q", got)
		}
		w.Write([]byte(`{"results":[{"geometry":{"location":{"lat":25.0478,"lng":121.517}}}],"status":"OK"}`))
	}))
	defer server.Close()

	maps := NewMapsClient("gk", server.Client())
	maps.geocodeURL = server.URL

	result, err := NewGeocodeTool(maps).Execute(context.Background(), json.RawMessage(`{"address":"Taipei Main Station"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || !strings.Contains(result.Content, "25.0478") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWeatherForecastToolBounds(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"forecast":"sunny"}`))
	}))
	defer server.Close()

	maps := NewMapsClient("gk", server.Client())
	maps.weatherURL = server.URL
	tool := NewWeatherForecastTool(maps)

	// Hours above the cap are clamped to 240.
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"latitude":25,"longitude":121,"time_range":"hours","hours":999}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(gotQuery, "hours=240") {
		t.Errorf("expected hours clamped to 240, got %q", gotQuery)
	}

	// Days default to 3.
	_, err = tool.Execute(context.Background(), json.RawMessage(`{"latitude":25,"longitude":121,"time_range":"days"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(gotQuery, "days=3") {
		t.Errorf("expected default days=3, got %q", gotQuery)
	}

	// Invalid range is an error result, not a crash.
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"latitude":25,"longitude":121,"time_range":"weeks"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected error result for invalid time_range")
	}
}

func TestPlacesTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if got := r.Header.Get("X-Goog-Api-Key"); got != "gk" {
			t.Errorf("api key header: got %q", got)
		}
		if got := r.Header.Get("X-Goog-FieldMask"); got != placesFieldMask {
			t.Errorf("field mask: got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["languageCode"] != "zh-TW" {
			t.Errorf("language default: got %v", body["languageCode"])
		}
		w.Write([]byte(`{"places":[{"displayName":{"text":"Cafe"},"rating":4.5}]}`))
	}))
	defer server.Close()

	maps := NewMapsClient("gk", server.Client())
	maps.placesURL = server.URL

	result, err := NewPlacesTool(maps).Execute(context.Background(), json.RawMessage(`{"query":"coffee","latitude":25,"longitude":121}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || !strings.Contains(result.Content, "Cafe") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if strings.Contains(result.Content, `"places"`) {
		t.Errorf("expected unwrapped places array, got %q", result.Content)
	}
}

func TestPlacesToolServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	maps := NewMapsClient("gk", server.Client())
	maps.placesURL = server.URL

	result, err := NewPlacesTool(maps).Execute(context.Background(), json.RawMessage(`{"query":"coffee","latitude":25,"longitude":121}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError || !strings.HasPrefix(result.Content, "Error: ") {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestTavilySearchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tk" {
			t.Errorf("auth header: got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["time_range"] != "day" {
			t.Errorf("time_range default: got %v", body["time_range"])
		}
		if body["maxResults"] != float64(5) {
			t.Errorf("maxResults default: got %v", body["maxResults"])
		}
		w.Write([]byte(`{"results":[{"title":"hit","url":"https://example.com"}]}`))
	}))
	defer server.Close()

	tavily := NewTavilyClient("tk", server.Client())
	tavily.baseURL = server.URL

	result, err := NewTavilySearchTool(tavily).Execute(context.Background(), json.RawMessage(`{"query":"golang news"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || !strings.Contains(result.Content, "hit") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTavilyExtractToolSplitsURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.URLs) != 2 || body.URLs[0] != "https://a.example" || body.URLs[1] != "https://b.example" {
			t.Errorf("urls: got %v", body.URLs)
		}
		w.Write([]byte(`{"results":[{"url":"https://a.example","raw_content":"..."}]}`))
	}))
	defer server.Close()

	tavily := NewTavilyClient("tk", server.Client())
	tavily.baseURL = server.URL

	result, err := NewTavilyExtractTool(tavily).Execute(context.Background(),
		json.RawMessage(`{"urls":"https://a.example, https://b.example"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
}
