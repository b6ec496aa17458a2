package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	// top-rated threshold for the statistics report
	statsMinRating = 4.5

	earthRadiusMiles = 3963.2
	earthRadiusKm    = 6378.1

	metersToMiles = 0.000621371
	metersToKm    = 0.001
)

type tourService struct {
	tours ports.TourRepository
}

// NewTourService returns the tour reports and geo queries.
func NewTourService(tours ports.TourRepository) ports.TourService {
	return &tourService{tours: tours}
}

func (s *tourService) Stats(ctx context.Context) ([]domain.TourStat, error) {
	return s.tours.Stats(ctx, statsMinRating)
}

func (s *tourService) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error) {
	if year < 1 || year > 9999 {
		return nil, domain.FieldValidation("year", "Please provide a valid year")
	}
	return s.tours.MonthlyPlan(ctx, year)
}

// Within finds tours starting within distance of latlng, in unit "mi" or
// "km".
func (s *tourService) Within(ctx context.Context, distance float64, latlng, unit string) ([]*domain.Tour, error) {
	if distance <= 0 {
		return nil, domain.FieldValidation("distance", "Please provide a positive distance")
	}
	lat, lng, err := parseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	var radius float64
	switch unit {
	case "mi":
		radius = distance / earthRadiusMiles
	case "km":
		radius = distance / earthRadiusKm
	default:
		return nil, errUnit()
	}
	return s.tours.Within(ctx, lng, lat, radius)
}

// Distances lists every tour with its distance from latlng, nearest first.
func (s *tourService) Distances(ctx context.Context, latlng, unit string) ([]domain.TourDistance, error) {
	lat, lng, err := parseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	var multiplier float64
	switch unit {
	case "mi":
		multiplier = metersToMiles
	case "km":
		multiplier = metersToKm
	default:
		return nil, errUnit()
	}
	return s.tours.Distances(ctx, lng, lat, multiplier)
}

func errUnit() error {
	return domain.FieldValidation("unit", "Unit must be mi or km")
}

// parseLatLng reads "lat,lng".
func parseLatLng(raw string) (lat, lng float64, err error) {
	invalid := domain.FieldValidation("latlng", "Please provide latitude and longitude in the format lat,lng.")
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, invalid
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, invalid
	}
	return lat, lng, nil
}
