package verda

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/swag"
)

const instanceTypesEndpoint = "/instance-types"

// Price is an amount in the account currency. The API sends prices either as
// JSON numbers or as numeric strings.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	var v any
	if err := swag.ReadJSON(data, &v); err != nil {
		return err
	}
	switch n := v.(type) {
	case nil:
		*p = 0
	case float64:
		*p = Price(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fmt.Errorf("invalid price %q", n)
		}
		*p = Price(f)
	default:
		return fmt.Errorf("invalid price %s", data)
	}
	return nil
}

// CPUSpec describes the CPUs of an instance type.
type CPUSpec struct {
	Description   string `json:"description"`
	NumberOfCores int    `json:"number_of_cores"`
}

// GPUSpec describes the GPUs of an instance type.
type GPUSpec struct {
	Description  string `json:"description"`
	NumberOfGPUs int    `json:"number_of_gpus"`
}

// SizeSpec describes memory or storage of an instance type.
type SizeSpec struct {
	Description     string `json:"description"`
	SizeInGigabytes int    `json:"size_in_gigabytes"`
}

// InstanceType is a purchasable instance configuration.
type InstanceType struct {
	ID string `json:"id"`
	// InstanceType is the name used when creating instances, e.g. "8V100.48M".
	InstanceType string   `json:"instance_type"`
	PricePerHour Price    `json:"price_per_hour"`
	Description  string   `json:"description"`
	CPU          CPUSpec  `json:"cpu"`
	GPU          GPUSpec  `json:"gpu"`
	Memory       SizeSpec `json:"memory"`
	GPUMemory    SizeSpec `json:"gpu_memory"`
	Storage      SizeSpec `json:"storage"`
}

func (t InstanceType) String() string {
	return fmt.Sprintf("%s (%s) $%.2f/h", t.InstanceType, t.Description, float64(t.PricePerHour))
}

// InstanceTypesService lists instance types.
type InstanceTypesService struct {
	client *HTTPClient
}

// List returns all instance types.
func (s *InstanceTypesService) List(ctx context.Context) ([]InstanceType, error) {
	resp, err := s.client.Get(ctx, instanceTypesEndpoint)
	if err != nil {
		return nil, err
	}
	var types []InstanceType
	if err := decodeResponse(resp, &types); err != nil {
		return nil, err
	}
	return types, nil
}
