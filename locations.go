package verda

import "context"

const locationsEndpoint = "/locations"

// Location codes.
const (
	LocationFIN1 = "FIN-01"
	LocationFIN2 = "FIN-02"
	LocationFIN3 = "FIN-03"
	LocationICE1 = "ICE-01"

	DefaultLocation = LocationFIN1
)

// Location is a datacenter location.
type Location struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code"`
}

// LocationsService lists datacenter locations.
type LocationsService struct {
	client *HTTPClient
}

// List returns all locations.
func (s *LocationsService) List(ctx context.Context) ([]Location, error) {
	resp, err := s.client.Get(ctx, locationsEndpoint)
	if err != nil {
		return nil, err
	}
	var locations []Location
	if err := decodeResponse(resp, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}
