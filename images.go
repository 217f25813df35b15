package verda

import "context"

const imagesEndpoint = "/images"

// Image is an OS image instances can be deployed with.
type Image struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ImageType is the value passed as CreateInstanceRequest.Image,
	// e.g. "ubuntu-22.04-cuda-12.0".
	ImageType string   `json:"image_type"`
	Details   []string `json:"details"`
}

// ImagesService lists instance images.
type ImagesService struct {
	client *HTTPClient
}

// List returns the available instance images.
func (s *ImagesService) List(ctx context.Context) ([]Image, error) {
	resp, err := s.client.Get(ctx, imagesEndpoint)
	if err != nil {
		return nil, err
	}
	var images []Image
	if err := decodeResponse(resp, &images); err != nil {
		return nil, err
	}
	return images, nil
}
