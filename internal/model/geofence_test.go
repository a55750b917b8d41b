package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeofence_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Geofence
		wantErr bool
	}{
		{"canonical", `{"lat":37.5,"lng":127.0,"radiusM":100}`, Geofence{37.5, 127.0, 100}, false},
		{"center fields", `{"centerLat":37.5,"centerLng":127.0,"radiusM":80}`, Geofence{37.5, 127.0, 80}, false},
		{"long names with radius", `{"latitude":-33.9,"longitude":151.2,"radius":50}`, Geofence{-33.9, 151.2, 50}, false},
		{"zero center is still set", `{"lat":0,"lng":0,"radiusM":10}`, Geofence{0, 0, 10}, false},
		{"missing radius", `{"lat":37.5,"lng":127.0}`, Geofence{}, true},
		{"missing center", `{"radiusM":100}`, Geofence{}, true},
		{"half a center", `{"centerLat":37.5,"lng":127.0,"radius":100}`, Geofence{37.5, 127.0, 100}, false},
		{"not an object", `[1,2,3]`, Geofence{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var g Geofence
			err := json.Unmarshal([]byte(tc.input), &g)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, g)
		})
	}
}

func TestGeofence_MarshalUsesCanonicalFields(t *testing.T) {
	data, err := json.Marshal(Geofence{Lat: 1.5, Lng: 2.5, RadiusM: 30})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":1.5,"lng":2.5,"radiusM":30}`, string(data))
}
