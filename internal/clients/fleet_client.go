package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"fleetwatch/internal/models"
)

const dateLayout = "2006-01-02"

// APIError is a non-2xx reply from the fleet API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status %d", e.Status)
	}
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

// FixQuery mirrors the query parameters of GET /api/gps.
type FixQuery struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

func (q FixQuery) values() url.Values {
	v := url.Values{}
	if q.DeviceID != "" {
		v.Set("device", q.DeviceID)
	}
	if q.Start != nil {
		v.Set("start", q.Start.Format(dateLayout))
	}
	if q.End != nil {
		v.Set("end", q.End.Format(dateLayout))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

type FleetClient interface {
	Login(ctx context.Context, email, password string) error
	ListFixes(ctx context.Context, query FixQuery) ([]models.GPSFix, error)
	Latest(ctx context.Context) ([]models.GPSFix, error)
	Devices(ctx context.Context) ([]models.DeviceSummary, error)
}

type fleetClient struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	token    string
	email    string
	password string
}

// NewFleetClient talks to a fleetwatch server rooted at baseURL, for example
// http://localhost:8080/api. A nil httpClient gets a 10s timeout default.
func NewFleetClient(baseURL string, httpClient *http.Client) FleetClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &fleetClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *fleetClient) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, "/login", nil, body, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("login response carried no token")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.email, c.password = email, password
	c.mu.Unlock()
	return nil
}

// reauthenticate logs in again with the stored credentials. It reports false
// when Login has never succeeded.
func (c *fleetClient) reauthenticate(ctx context.Context) (bool, error) {
	c.mu.RLock()
	email, password := c.email, c.password
	c.mu.RUnlock()
	if email == "" {
		return false, nil
	}
	return true, c.Login(ctx, email, password)
}

func (c *fleetClient) ListFixes(ctx context.Context, query FixQuery) ([]models.GPSFix, error) {
	var fixes []models.GPSFix
	if err := c.do(ctx, http.MethodGet, "/gps", query.values(), nil, &fixes); err != nil {
		return nil, err
	}
	return fixes, nil
}

func (c *fleetClient) Latest(ctx context.Context) ([]models.GPSFix, error) {
	var fixes []models.GPSFix
	if err := c.do(ctx, http.MethodGet, "/gps/latest", nil, nil, &fixes); err != nil {
		return nil, err
	}
	return fixes, nil
}

func (c *fleetClient) Devices(ctx context.Context) ([]models.DeviceSummary, error) {
	var devices []models.DeviceSummary
	if err := c.do(ctx, http.MethodGet, "/gps/devices", nil, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// do sends an authenticated request. An expired token on a GET is renewed
// once and the request retried.
func (c *fleetClient) do(ctx context.Context, method, path string, query url.Values, body, dest interface{}) error {
	err := c.send(ctx, method, path, query, body, dest)

	var apiErr *APIError
	if method != http.MethodGet || !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	renewed, loginErr := c.reauthenticate(ctx)
	if !renewed {
		return err
	}
	if loginErr != nil {
		return fmt.Errorf("token renewal failed: %w", loginErr)
	}
	return c.send(ctx, method, path, query, body, dest)
}

func (c *fleetClient) send(ctx context.Context, method, path string, query url.Values, body, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "fleetwatch-follow/1.0")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}
