package verda

import "context"

const volumeTypesEndpoint = "/volume-types"

// VolumeType is a storage class volumes can be created with, such as
// [VolumeTypeNVMe].
type VolumeType struct {
	Type  string          `json:"type"`
	Price VolumeTypePrice `json:"price"`
}

// VolumeTypePrice is the storage price of a volume type.
type VolumeTypePrice struct {
	PricePerMonthPerGB Price `json:"price_per_month_per_gb"`
}

// VolumeTypesService lists volume types.
type VolumeTypesService struct {
	client *HTTPClient
}

// List returns all volume types.
func (s *VolumeTypesService) List(ctx context.Context) ([]VolumeType, error) {
	resp, err := s.client.Get(ctx, volumeTypesEndpoint)
	if err != nil {
		return nil, err
	}
	var types []VolumeType
	if err := decodeResponse(resp, &types); err != nil {
		return nil, err
	}
	return types, nil
}
