// Package hilltop fetches measurement series from a Hilltop server.
package hilltop

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"missingrecord/internal/models"
)

const (
	timeLayout      = "2006-01-02T15:04:05"
	maxResponseSize = 64 << 20
)

var (
	// ErrNoData means the server holds no values for the request.
	ErrNoData = errors.New("no data")
	// ErrUpstream wraps error responses reported by the server itself.
	ErrUpstream = errors.New("hilltop error")
)

// Config holds connection settings for a Hilltop file.
type Config struct {
	BaseURL           string
	HTS               string
	Timeout           time.Duration
	RequestsPerSecond float64
	Location          *time.Location
}

// Client issues GetData requests.
type Client struct {
	endpoint string
	loc      *time.Location
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// NewClient builds a client for one base URL and hts file.
func NewClient(cfg Config) (*Client, error) {
	endpoint, err := url.JoinPath(strings.TrimSuffix(cfg.BaseURL, "/"), cfg.HTS)
	if err != nil {
		return nil, fmt.Errorf("build endpoint: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		endpoint: endpoint,
		loc:      loc,
		client:   &http.Client{Transport: transport, Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		breaker:  newBreaker("hilltop:" + cfg.HTS),
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a site without data, or a request the server rejects, says
			// nothing about the health of the server
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, ErrUpstream)
		},
	})
}

// FetchSeries returns the samples of one site measurement between start and
// end. An empty result is reported as ErrNoData.
func (c *Client) FetchSeries(ctx context.Context, site, measurement string, start, end time.Time) ([]models.Sample, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getData(ctx, site, measurement, start, end)
	})
	if err != nil {
		return nil, err
	}
	samples := out.([]models.Sample)
	if len(samples) == 0 {
		return nil, ErrNoData
	}
	return samples, nil
}

func (c *Client) getData(ctx context.Context, site, measurement string, start, end time.Time) ([]models.Sample, error) {
	q := url.Values{}
	q.Set("Service", "Hilltop")
	q.Set("Request", "GetData")
	q.Set("Site", site)
	q.Set("Measurement", measurement)
	q.Set("From", start.In(c.loc).Format(timeLayout))
	q.Set("To", end.In(c.loc).Format(timeLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return Parse(io.LimitReader(resp.Body, maxResponseSize), c.loc)
}

type getDataResponse struct {
	XMLName      xml.Name
	Error        string `xml:"Error"`
	Measurements []struct {
		SiteName string `xml:"SiteName,attr"`
		Data     struct {
			Entries []struct {
				T  string `xml:"T"`
				I1 string `xml:"I1"`
			} `xml:"E"`
		} `xml:"Data"`
	} `xml:"Measurement"`
}

// Parse decodes a GetData response. Values that are not numbers become NaN so
// they count as gaps.
func Parse(r io.Reader, loc *time.Location) ([]models.Sample, error) {
	var doc getDataResponse
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if msg := strings.TrimSpace(doc.Error); msg != "" {
		if isNoDataMessage(msg) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	if doc.XMLName.Local != "Hilltop" {
		return nil, fmt.Errorf("unexpected root element %q", doc.XMLName.Local)
	}

	var samples []models.Sample
	for _, m := range doc.Measurements {
		for _, e := range m.Data.Entries {
			at, err := time.ParseInLocation(timeLayout, strings.TrimSpace(e.T), loc)
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %w", e.T, err)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(e.I1), 64)
			if err != nil {
				v = math.NaN()
			}
			samples = append(samples, models.Sample{Time: at, Value: v})
		}
	}
	return samples, nil
}

func isNoDataMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "no data") || strings.Contains(lower, "empty")
}
