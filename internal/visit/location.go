package visit

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat  float64 `json:"lat" yaml:"lat"`
	Long float64 `json:"long" yaml:"long"`
}

// Validate checks that the coordinate is on the globe.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %g", ErrInvalid, c.Lat)
	}
	if c.Long < -180 || c.Long > 180 {
		return fmt.Errorf("%w: longitude %g", ErrInvalid, c.Long)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Long)
}

// Location is a coordinate that may be absent. Latitude and longitude are
// present together or not at all; on the wire an absent location is
// {"lat": null, "long": null}.
type Location struct {
	Coordinate
	Valid bool
}

// At returns a present location.
func At(c Coordinate) Location {
	return Location{Coordinate: c, Valid: true}
}

// LocationFromNullable builds a Location from a pair of optional values,
// rejecting a pair with only one side set.
func LocationFromNullable(lat, long *float64) (Location, error) {
	switch {
	case lat == nil && long == nil:
		return Location{}, nil
	case lat == nil || long == nil:
		return Location{}, fmt.Errorf("%w: location must have both lat and long or neither", ErrInvalid)
	default:
		return At(Coordinate{Lat: *lat, Long: *long}), nil
	}
}

// Nullable returns the latitude and longitude as optional values.
func (l Location) Nullable() (lat, long *float64) {
	if !l.Valid {
		return nil, nil
	}
	la, lo := l.Lat, l.Long
	return &la, &lo
}

func (l Location) String() string {
	if !l.Valid {
		return "unknown"
	}
	return l.Coordinate.String()
}

type wireLocation struct {
	Lat  *float64 `json:"lat" yaml:"lat"`
	Long *float64 `json:"long" yaml:"long"`
}

// MarshalJSON implements json.Marshaler.
func (l Location) MarshalJSON() ([]byte, error) {
	lat, long := l.Nullable()
	return json.Marshal(wireLocation{Lat: lat, Long: long})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Location{}
		return nil
	}
	var w wireLocation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	loc, err := LocationFromNullable(w.Lat, w.Long)
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l Location) MarshalYAML() (interface{}, error) {
	lat, long := l.Nullable()
	return wireLocation{Lat: lat, Long: long}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Location) UnmarshalYAML(value *yaml.Node) error {
	var w wireLocation
	if err := value.Decode(&w); err != nil {
		return err
	}
	loc, err := LocationFromNullable(w.Lat, w.Long)
	if err != nil {
		return err
	}
	*l = loc
	return nil
}
