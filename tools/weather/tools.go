// Package weather provides tools that answer weather questions with the
// QWeather API.
package weather

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/tools"
)

const (
	// ServerName is reported to clients on initialize.
	ServerName = "weather"
	// ServerVersion is reported to clients on initialize.
	ServerVersion = "1.0.0"

	weatherErrorPrefix = "查询天气错误:"
	lookupErrorPrefix  = "获取城市编码错误："
)

// CityWeatherRequest is the input of get_city_weather.
type CityWeatherRequest struct {
	CityCode string `json:"city_code" jsonschema:"description=城市编码" validate:"required"`
}

// LocationRequest is the input of the coordinate based tools.
type LocationRequest struct {
	Latitude  float64 `json:"latitude" jsonschema:"description=纬度" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" jsonschema:"description=经度" validate:"gte=-180,lte=180"`
}

// CityCode is the output of get_city_code.
type CityCode struct {
	ID string `json:"id"`
}

func (c *CityCode) String() string {
	return c.ID
}

// CityWeatherTool returns the forecast of a city code.
type CityWeatherTool struct {
	client *Client
}

var (
	_ tools.Tool[CityWeatherRequest, Forecast] = (*CityWeatherTool)(nil)
	_ tools.Tool[LocationRequest, CityCode]    = (*CityCodeTool)(nil)
	_ tools.Tool[LocationRequest, Forecast]    = (*LocationWeatherTool)(nil)
	_ tools.ErrorFormatter                     = (*CityWeatherTool)(nil)
	_ tools.ErrorFormatter                     = (*CityCodeTool)(nil)
	_ tools.ErrorFormatter                     = (*LocationWeatherTool)(nil)
)

func NewCityWeatherTool(client *Client) *CityWeatherTool {
	return &CityWeatherTool{client: client}
}

func (t *CityWeatherTool) Name() string { return "get_city_weather" }

func (t *CityWeatherTool) Description() string { return "获取指定城市的天气预报" }

func (t *CityWeatherTool) Run(ctx context.Context, req *CityWeatherRequest) (*Forecast, error) {
	return t.client.Forecast(ctx, req.CityCode)
}

func (t *CityWeatherTool) FormatError(err error) string {
	return weatherErrorPrefix + err.Error()
}

// CityCodeTool returns the city code at coordinates.
type CityCodeTool struct {
	client *Client
}

func NewCityCodeTool(client *Client) *CityCodeTool {
	return &CityCodeTool{client: client}
}

func (t *CityCodeTool) Name() string { return "get_city_code" }

func (t *CityCodeTool) Description() string { return "根据经纬度获取城市编码" }

func (t *CityCodeTool) Run(ctx context.Context, req *LocationRequest) (*CityCode, error) {
	id, err := t.client.CityCode(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}
	return &CityCode{ID: id}, nil
}

func (t *CityCodeTool) FormatError(err error) string {
	return lookupErrorPrefix + err.Error()
}

// LocationWeatherTool returns the forecast at coordinates.
type LocationWeatherTool struct {
	client *Client
}

func NewLocationWeatherTool(client *Client) *LocationWeatherTool {
	return &LocationWeatherTool{client: client}
}

func (t *LocationWeatherTool) Name() string { return "get_location_weather" }

func (t *LocationWeatherTool) Description() string { return "获取指定位置的天气预报" }

func (t *LocationWeatherTool) Run(ctx context.Context, req *LocationRequest) (*Forecast, error) {
	id, err := t.client.CityCode(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}
	return t.client.Forecast(ctx, id)
}

func (t *LocationWeatherTool) FormatError(err error) string {
	if errors.Is(err, ErrLookup) {
		return lookupErrorPrefix + err.Error()
	}
	return weatherErrorPrefix + err.Error()
}

// NewServer returns a server with the weather tools.
func NewServer(client *Client) (*mcp.Server, error) {
	srv := mcp.NewServer(ServerName, ServerVersion)
	for _, err := range []error{
		tools.Register[CityWeatherRequest, Forecast](srv, NewCityWeatherTool(client)),
		tools.Register[LocationRequest, CityCode](srv, NewCityCodeTool(client)),
		tools.Register[LocationRequest, Forecast](srv, NewLocationWeatherTool(client)),
	} {
		if err != nil {
			return nil, err
		}
	}
	return srv, nil
}
