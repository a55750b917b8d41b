package model

import (
	"encoding/json"
	"errors"
)

var ErrInvalidGeofence = errors.New("geofence must carry a center and a radius")

// Geofence is a circular region. RadiusM is in meters.
type Geofence struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radiusM"`
}

// geofenceWire lists every field spelling accepted at ingress. Clients in the
// wild send lat/lng, centerLat/centerLng or latitude/longitude.
type geofenceWire struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	CenterLat *float64 `json:"centerLat"`
	CenterLng *float64 `json:"centerLng"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	RadiusM   *float64 `json:"radiusM"`
	Radius    *float64 `json:"radius"`
}

func (g *Geofence) UnmarshalJSON(data []byte) error {
	var w geofenceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	lat := firstSet(w.Lat, w.CenterLat, w.Latitude)
	lng := firstSet(w.Lng, w.CenterLng, w.Longitude)
	radius := firstSet(w.RadiusM, w.Radius)
	if lat == nil || lng == nil || radius == nil {
		return ErrInvalidGeofence
	}

	*g = Geofence{Lat: *lat, Lng: *lng, RadiusM: *radius}
	return nil
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
