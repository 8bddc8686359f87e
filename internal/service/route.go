package service

import (
	"aegisher/api/internal/apperr"
	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
	"aegisher/api/internal/risk"
)

// RouteService wraps the mock route comparator
type RouteService struct {
	comparator *risk.Comparator
}

// NewRouteService 创建路线服务, src 为 nil 时使用全局随机源
func NewRouteService(src risk.Source) *RouteService {
	return &RouteService{comparator: risk.NewComparator(src)}
}

// Compare builds a safe and a normal route between two points
func (s *RouteService) Compare(req *model.CompareRoutesRequest) (*risk.Comparison, error) {
	if !req.StartLatitude.Set || !req.StartLongitude.Set || !req.EndLatitude.Set || !req.EndLongitude.Set {
		return nil, apperr.Validation("Missing required fields: startLatitude, startLongitude, endLatitude, endLongitude")
	}
	start, end, err := endpoints(req.StartLatitude.Value, req.StartLongitude.Value, req.EndLatitude.Value, req.EndLongitude.Value)
	if err != nil {
		return nil, err
	}
	cmp := s.comparator.Compare(start, end)
	return &cmp, nil
}

// Safe returns only the safe route. Nil coordinates are missing query parameters.
func (s *RouteService) Safe(startLat, startLng, endLat, endLng *float64) (*risk.RouteVariant, error) {
	if startLat == nil || startLng == nil || endLat == nil || endLng == nil {
		return nil, apperr.Validation("Missing required query parameters: startLat, startLng, endLat, endLng")
	}
	start, end, err := endpoints(*startLat, *startLng, *endLat, *endLng)
	if err != nil {
		return nil, err
	}
	route := s.comparator.SafeRoute(start, end)
	return &route, nil
}

func endpoints(startLat, startLng, endLat, endLng float64) (geo.Point, geo.Point, error) {
	start := geo.Point{Lat: startLat, Lon: startLng}
	end := geo.Point{Lat: endLat, Lon: endLng}
	if err := validatePoint(start); err != nil {
		return start, end, err
	}
	if err := validatePoint(end); err != nil {
		return start, end, err
	}
	return start, end, nil
}
