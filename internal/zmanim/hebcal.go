package zmanim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// DefaultHebcalBaseURL is the public Hebcal calendar endpoint.
const DefaultHebcalBaseURL = "https://www.hebcal.com/hebcal"

// HebcalClient fetches one day of calendar events from the Hebcal JSON
// API and extracts the instants the bot cares about.
type HebcalClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewHebcalClient returns a client against the given base URL. The HTTP
// timeout is bounded so a slow upstream cannot stall a dispatcher tick.
func NewHebcalClient(baseURL string, log *zap.Logger) *HebcalClient {
	if baseURL == "" {
		baseURL = DefaultHebcalBaseURL
	}
	return &HebcalClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type hebcalResponse struct {
	Items []hebcalItem `json:"items"`
}

type hebcalItem struct {
	Title    string `json:"title"`
	Date     string `json:"date"` // RFC3339 for timed events
	Category string `json:"category"`
	Subcat   string `json:"subcat"`
}

// Fetch returns the parsed zmanim for one location and date. Matching is
// a best-effort scan over category/subcat/title substrings; absent
// events leave their field nil.
func (c *HebcalClient) Fetch(ctx context.Context, location string, date time.Time) (*domain.Zmanim, error) {
	q := url.Values{}
	q.Set("cfg", "json")
	q.Set("city", location)
	q.Set("year", fmt.Sprintf("%d", date.Year()))
	q.Set("month", fmt.Sprintf("%d", int(date.Month())))
	q.Set("day", fmt.Sprintf("%d", date.Day()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hebcal fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hebcal fetch: unexpected status %d", resp.StatusCode)
	}

	var body hebcalResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("hebcal decode: %w", err)
	}

	z := c.parse(&body, location, date)
	c.log.Debug("hebcal data fetched",
		zap.String("location", location),
		zap.String("date", z.Date),
		zap.Bool("hasSunset", z.Sunset != nil),
		zap.Bool("hasCandleLighting", z.CandleLighting != nil),
	)
	return z, nil
}

func (c *HebcalClient) parse(body *hebcalResponse, location string, date time.Time) *domain.Zmanim {
	z := &domain.Zmanim{Location: location, Date: domain.DateKey(date)}

	for _, item := range body.Items {
		at, err := time.Parse(time.RFC3339, item.Date)
		if err != nil {
			// All-day entries carry a bare date; they never hold a time point.
			continue
		}
		t := at
		title := strings.ToLower(item.Title)

		switch {
		case strings.Contains(title, "sunset") || item.Subcat == "sunset" || item.Category == "astronomy":
			z.Sunset = &t
		case strings.Contains(title, "candle") || item.Subcat == "candles":
			z.CandleLighting = &t
		case item.Category == "prayer" || strings.Contains(title, "shacharit") ||
			strings.Contains(title, "mincha") || strings.Contains(title, "maariv"):
			switch {
			case strings.Contains(title, "shacharit") || item.Subcat == "shacharit":
				z.Shacharit = &t
			case strings.Contains(title, "mincha") || item.Subcat == "mincha":
				z.Mincha = &t
			case strings.Contains(title, "maariv") || item.Subcat == "maariv":
				z.Maariv = &t
			}
		}
	}
	return z
}
