package services

import (
	"autorag-api/internal/config"
	"autorag-api/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type WeatherService interface {
	Fetch(ctx context.Context, lat, lon float64) (*models.WeatherData, error)
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

type openWeatherService struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewWeatherService(cfg config.WeatherConfig) WeatherService {
	return &openWeatherService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

func (s *openWeatherService) Fetch(ctx context.Context, lat, lon float64) (*models.WeatherData, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("units", "metric")
	q.Set("appid", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned %d", resp.StatusCode)
	}

	var weatherData openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&weatherData); err != nil {
		return nil, err
	}

	data := &models.WeatherData{
		TemperatureC: weatherData.Main.Temp,
		Humidity:     weatherData.Main.Humidity,
		Location:     weatherData.Name,
	}
	if len(weatherData.Weather) > 0 {
		data.Description = weatherData.Weather[0].Description
	}
	return data, nil
}
