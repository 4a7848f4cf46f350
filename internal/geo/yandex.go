package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pizzabot/internal/models"
)

const yandexGeocoderURL = "https://geocode-maps.yandex.ru/1.x"

// YandexGeocoder resolves addresses with the Yandex HTTP geocoder
type YandexGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewYandexGeocoder creates a geocoder; an empty baseURL selects the public endpoint
func NewYandexGeocoder(apiKey, baseURL string) *YandexGeocoder {
	if baseURL == "" {
		baseURL = yandexGeocoderURL
	}
	return &YandexGeocoder{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type yandexResponse struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					Point struct {
						Pos string `json:"pos"`
					} `json:"Point"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

// Geocode returns the first match for address or ErrAddressNotFound
func (g *YandexGeocoder) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Coordinates{}, ErrAddressNotFound
	}

	q := url.Values{
		"apikey":  {g.apiKey},
		"format":  {"json"},
		"geocode": {address},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to geocode address: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("failed to geocode address: status %d", resp.StatusCode)
	}

	var body yandexResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to decode geocoder response: %w", err)
	}

	members := body.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return models.Coordinates{}, ErrAddressNotFound
	}
	return parsePos(members[0].GeoObject.Point.Pos)
}

// parsePos parses the "lon lat" pair Yandex returns
func parsePos(pos string) (models.Coordinates, error) {
	parts := strings.Fields(pos)
	if len(parts) != 2 {
		return models.Coordinates{}, fmt.Errorf("unexpected geocoder position %q", pos)
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid longitude %q: %w", parts[0], err)
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid latitude %q: %w", parts[1], err)
	}
	return models.Coordinates{Lon: lon, Lat: lat}, nil
}
