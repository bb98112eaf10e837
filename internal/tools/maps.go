package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// MapsClient calls the Google Maps platform: geocoding, weather, and places
// text search. Every API failure is converted to an error-flagged tool result
// string so the conversation keeps going.
type MapsClient struct {
	apiKey string
	client *http.Client

	geocodeURL string
	weatherURL string
	placesURL  string
}

// NewMapsClient creates a client for the public Google endpoints.
func NewMapsClient(apiKey string, client *http.Client) *MapsClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &MapsClient{
		apiKey:     apiKey,
		client:     client,
		geocodeURL: "https://maps.googleapis.com/maps/api/geocode/json",
		weatherURL: "https://weather.googleapis.com/v1",
		placesURL:  "https://places.googleapis.com/v1/places:searchText",
	}
}

func (c *MapsClient) getJSON(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(body), nil
}

// toolError wraps an error into the in-conversation result format.
func toolError(err error) *models.ToolResult {
	return &models.ToolResult{
		Content: "Error: " + err.Error(),
		IsError: true,
	}
}

// GeocodeTool resolves an address or place name to coordinates.
type GeocodeTool struct {
	maps *MapsClient
}

func NewGeocodeTool(maps *MapsClient) *GeocodeTool {
	return &GeocodeTool{maps: maps}
}

func (t *GeocodeTool) Name() string {
	return "geocode"
}

func (t *GeocodeTool) Description() string {
	return "Look up the latitude and longitude of an address or place name using Google Maps."
}

func (t *GeocodeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"address": {
				"type": "string",
				"description": "The address or place name to look up"
			}
		},
		"required": ["address"],
		"additionalProperties": false
	}`)
}

func (t *GeocodeTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("address", args.Address)
	query.Set("key", t.maps.apiKey)

	body, err := t.maps.getJSON(ctx, t.maps.geocodeURL+"?"+query.Encode())
	if err != nil {
		return toolError(err), nil
	}
	return &models.ToolResult{Content: body}, nil
}

// WeatherTool returns current conditions at a coordinate.
type WeatherTool struct {
	maps *MapsClient
}

func NewWeatherTool(maps *MapsClient) *WeatherTool {
	return &WeatherTool{maps: maps}
}

func (t *WeatherTool) Name() string {
	return "weather"
}

func (t *WeatherTool) Description() string {
	return "Get the current weather conditions at a latitude/longitude."
}

func (t *WeatherTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"latitude":  {"type": "number", "description": "Latitude of the location"},
			"longitude": {"type": "number", "description": "Longitude of the location"}
		},
		"required": ["latitude", "longitude"],
		"additionalProperties": false
	}`)
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/currentConditions:lookup?key=%s&location.latitude=%v&location.longitude=%v",
		t.maps.weatherURL, url.QueryEscape(t.maps.apiKey), args.Latitude, args.Longitude)
	body, err := t.maps.getJSON(ctx, endpoint)
	if err != nil {
		return toolError(err), nil
	}
	return &models.ToolResult{Content: body}, nil
}

// WeatherForecastTool returns a daily or hourly forecast at a coordinate.
type WeatherForecastTool struct {
	maps *MapsClient
}

func NewWeatherForecastTool(maps *MapsClient) *WeatherForecastTool {
	return &WeatherForecastTool{maps: maps}
}

func (t *WeatherForecastTool) Name() string {
	return "weather_forecast"
}

func (t *WeatherForecastTool) Description() string {
	return "Get the weather forecast at a latitude/longitude, either per day or per hour."
}

func (t *WeatherForecastTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"latitude":   {"type": "number", "description": "Latitude of the location"},
			"longitude":  {"type": "number", "description": "Longitude of the location"},
			"time_range": {"type": "string", "enum": ["days", "hours"], "description": "Forecast granularity"},
			"hours":      {"type": "number", "description": "Number of hours to forecast, max 240, default 24"},
			"days":       {"type": "number", "description": "Number of days to forecast, max 10, default 3"}
		},
		"required": ["latitude", "longitude", "time_range"],
		"additionalProperties": false
	}`)
}

func (t *WeatherForecastTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		TimeRange string  `json:"time_range"`
		Hours     int     `json:"hours"`
		Days      int     `json:"days"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}

	var span int
	switch args.TimeRange {
	case "hours":
		span = args.Hours
		if span <= 0 {
			span = 24
		}
		if span > 240 {
			span = 240
		}
	case "days":
		span = args.Days
		if span <= 0 {
			span = 3
		}
		if span > 10 {
			span = 10
		}
	default:
		return toolError(fmt.Errorf("invalid time_range: %q", args.TimeRange)), nil
	}

	endpoint := fmt.Sprintf("%s/forecast/%s:lookup?key=%s&location.latitude=%v&location.longitude=%v&%s=%d",
		t.maps.weatherURL, args.TimeRange, url.QueryEscape(t.maps.apiKey), args.Latitude, args.Longitude, args.TimeRange, span)
	body, err := t.maps.getJSON(ctx, endpoint)
	if err != nil {
		return toolError(err), nil
	}
	return &models.ToolResult{Content: body}, nil
}

// placesFieldMask keeps the response small; rating has a lower free request
// quota than the other fields.
const placesFieldMask = "places.displayName,places.googleMapsUri,places.rating,places.priceLevel"

// PlacesTool searches for businesses and points of interest near a
// coordinate via the Places text search API.
type PlacesTool struct {
	maps *MapsClient
}

func NewPlacesTool(maps *MapsClient) *PlacesTool {
	return &PlacesTool{maps: maps}
}

func (t *PlacesTool) Name() string {
	return "google_map"
}

func (t *PlacesTool) Description() string {
	return "Search for places (restaurants, cafes, sights) near a coordinate using Google Maps Places. Returns name, map link, rating and price level."
}

func (t *PlacesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query":     {"type": "string", "description": "Search keywords, e.g. 'coffee near Taipei Main Station'"},
			"latitude":  {"type": "number", "description": "Latitude of the search center"},
			"longitude": {"type": "number", "description": "Longitude of the search center"},
			"radius":    {"type": "number", "description": "Search radius in meters, max 50000, default 1000"},
			"language":  {"type": "string", "description": "Result language code, default zh-TW"}
		},
		"required": ["query", "latitude", "longitude"],
		"additionalProperties": false
	}`)
}

func (t *PlacesTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Query     string  `json:"query"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Radius    float64 `json:"radius"`
		Language  string  `json:"language"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	if args.Radius <= 0 {
		args.Radius = 1000
	}
	if args.Language == "" {
		args.Language = "zh-TW"
	}

	payload, err := json.Marshal(map[string]any{
		"textQuery": args.Query,
		"locationBias": map[string]any{
			"circle": map[string]any{
				"center": map[string]any{
					"latitude":  args.Latitude,
					"longitude": args.Longitude,
				},
				"radius": args.Radius,
			},
		},
		"languageCode": args.Language,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.maps.placesURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", t.maps.apiKey)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	resp, err := t.maps.client.Do(req)
	if err != nil {
		return toolError(err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return toolError(err), nil
	}
	if resp.StatusCode != http.StatusOK {
		return toolError(fmt.Errorf("unexpected status %d", resp.StatusCode)), nil
	}

	// Return just the places array, mirroring what the model needs.
	var decoded struct {
		Places json.RawMessage `json:"places"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Places == nil {
		return &models.ToolResult{Content: string(body)}, nil
	}
	return &models.ToolResult{Content: string(decoded.Places)}, nil
}
