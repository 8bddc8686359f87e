package model

import (
	"encoding/json"
	"fmt"
)

const (
	// PointType is the only GeoJSON geometry the API stores
	PointType = "Point"
	// UnknownAddress is used when a client omits the address
	UnknownAddress = "Unknown location"
)

// Location is a stored point with an optional address.
// It serializes as a GeoJSON point with [lon, lat] coordinates.
type Location struct {
	Latitude  float64 `gorm:"column:latitude;type:double precision;not null;index"`
	Longitude float64 `gorm:"column:longitude;type:double precision;not null;index"`
	Address   string  `gorm:"column:address;type:varchar(255)"`
}

type locationJSON struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
	PlaceName   *string    `json:"placeName,omitempty"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{
		Type:        PointType,
		Coordinates: [2]float64{l.Longitude, l.Latitude},
		Address:     l.Address,
	})
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != PointType {
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	l.Longitude, l.Latitude = raw.Coordinates[0], raw.Coordinates[1]
	l.Address = raw.Address
	return nil
}

// PlaceLocation is a Location that also carries a human place name
type PlaceLocation struct {
	Location  `gorm:"embedded"`
	PlaceName string `gorm:"column:place_name;type:varchar(255)"`
}

func (l PlaceLocation) MarshalJSON() ([]byte, error) {
	name := l.PlaceName
	return json.Marshal(locationJSON{
		Type:        PointType,
		Coordinates: [2]float64{l.Longitude, l.Latitude},
		Address:     l.Address,
		PlaceName:   &name,
	})
}

func (l *PlaceLocation) UnmarshalJSON(data []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := l.Location.UnmarshalJSON(data); err != nil {
		return err
	}
	l.PlaceName = ""
	if raw.PlaceName != nil {
		l.PlaceName = *raw.PlaceName
	}
	return nil
}
