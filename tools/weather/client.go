package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "weather")

const (
	// DefaultBaseURL is the QWeather API host.
	DefaultBaseURL = "https://kk6936hqgf.re.qweatherapi.com"
	// UserAgent is sent with every request.
	UserAgent = "weather-app/1.0"
	// DefaultTimeout of a request.
	DefaultTimeout = 30 * time.Second

	BaseURLEnvVarName = "WEATHER_BASE_URL"
	APIKeyEnvVarName  = "API_KEY"
)

// ErrLookup marks failures of the city code lookup.
var ErrLookup = errors.New("city lookup failed")

// Daily is a forecast for one day.
type Daily struct {
	FxDate       string `json:"fxDate"`
	TempMax      string `json:"tempMax"`
	TempMin      string `json:"tempMin"`
	WindDirDay   string `json:"windDirDay"`
	WindSpeedDay string `json:"windSpeedDay"`
	TextDay      string `json:"textDay,omitempty"`
}

// Forecast is the daily forecast of a city.
type Forecast struct {
	Daily []Daily `json:"daily"`
}

// String renders the forecast as the tool result.
func (f *Forecast) String() string {
	list := make([]string, len(f.Daily))
	for i, d := range f.Daily {
		list[i] = "\nDate: " + d.FxDate +
			"\nTemperature: " + d.TempMin + "°-" + d.TempMax + "°" +
			"\nWind: " + d.WindSpeedDay + " " + d.WindDirDay + "\n"
	}
	return strings.Join(list, "\n---\n")
}

// Client calls the QWeather API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient returns a client configured from WEATHER_BASE_URL and API_KEY,
// options take precedence.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(values.StringsCoalesce(os.Getenv(BaseURLEnvVarName), DefaultBaseURL), "/"),
		apiKey:     os.Getenv(APIKeyEnvVarName),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Forecast returns the 3 day forecast of the city.
func (c *Client) Forecast(ctx context.Context, cityCode string) (*Forecast, error) {
	var res struct {
		Code string `json:"code"`
		Forecast
	}
	q := url.Values{"location": {cityCode}}
	if err := c.get(ctx, "/v7/weather/3d", q, &res); err != nil {
		return nil, err
	}
	if err := checkCode(res.Code); err != nil {
		return nil, err
	}
	return &res.Forecast, nil
}

// CityCode returns the code of the city at the coordinates.
func (c *Client) CityCode(ctx context.Context, latitude, longitude float64) (string, error) {
	var res struct {
		Code     string `json:"code"`
		Location []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"location"`
	}

	location := strconv.FormatFloat(longitude, 'f', -1, 64) + "," + strconv.FormatFloat(latitude, 'f', -1, 64)
	err := c.get(ctx, "/geo/v2/city/lookup", url.Values{"location": {location}}, &res)
	if err == nil {
		err = checkCode(res.Code)
	}
	if err == nil && len(res.Location) == 0 {
		err = errors.Newf("no city found at %s", location)
	}
	if err != nil {
		return "", errors.Mark(err, ErrLookup)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"location", location,
		"city", res.Location[0].Name,
		"id", res.Location[0].ID,
	)
	return res.Location[0].ID, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-QW-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.ContextKV(ctx, xlog.WARNING,
			"path", path,
			"status", resp.StatusCode,
		)
		return errors.Newf("unexpected status: %s", resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "unable to decode response")
	}
	return nil
}

// checkCode validates the status code in the response body,
// an empty code is accepted.
func checkCode(code string) error {
	if code != "" && code != "200" {
		return errors.Newf("API returned code %s", code)
	}
	return nil
}
