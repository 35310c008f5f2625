package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"housebot/server/internal/geometry"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// ErrNoMatch is returned when the geocoder answered but found nothing.
// Transport and decoding failures are returned as other errors so callers
// can tell the two apart.
var ErrNoMatch = errors.New("no geocoding match")

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type Geocoder struct {
	logger    *logrus.Logger
	client    *http.Client
	baseURL   string
	userAgent string
	cache     Cache
}

// NewGeocoder creates a Nominatim client. cache may be nil.
func NewGeocoder(logger *logrus.Logger, opts Options, cache Cache) *Geocoder {
	return &Geocoder{
		logger:    logger,
		client:    &http.Client{Timeout: opts.Timeout},
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		cache:     cache,
	}
}

type nominatimResponse []struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// ResolveAddress returns the coordinates of the first Nominatim match.
func (g *Geocoder) ResolveAddress(ctx context.Context, address string) (orb.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return orb.Point{}, ErrNoMatch
	}

	key := cacheKey(address)
	if g.cache != nil {
		p, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.WithError(err).WithField("address", address).Warn("Geocode cache lookup failed")
		} else if ok {
			g.logger.WithFields(logrus.Fields{
				"address":   address,
				"latitude":  p.Lat(),
				"longitude": p.Lon(),
				"source":    "cache",
			}).Debug("Found coordinates in cache")
			return p, nil
		}
	}

	g.logger.WithField("address", address).Info("Geocoding address with Nominatim")

	params := url.Values{
		"q":      []string{address},
		"format": []string{"json"},
		"limit":  []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(logrus.Fields{
			"address": address,
			"status":  resp.StatusCode,
		}).Error("Geocoder returned non-success status")
		return orb.Point{}, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Failed to parse response")
		return orb.Point{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result) == 0 {
		g.logger.WithField("address", address).Warn("No results found")
		return orb.Point{}, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}
	p := geometry.NewPoint(lat, lon)

	g.logger.WithFields(logrus.Fields{
		"address":      address,
		"display_name": result[0].DisplayName,
		"latitude":     lat,
		"longitude":    lon,
		"source":       "nominatim",
	}).Info("Successfully geocoded address")

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, p); err != nil {
			g.logger.WithError(err).WithField("address", address).Warn("Failed to cache coordinates")
		}
	}

	return p, nil
}
