package verda

import (
	"context"
	"net/url"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

const volumesEndpoint = "/volumes"

// Volume types.
const (
	VolumeTypeHDD  = "HDD"
	VolumeTypeNVMe = "NVMe"
)

// Volume actions.
const (
	VolumeActionAttach = "attach"
	VolumeActionDetach = "detach"
	VolumeActionRename = "rename"
	VolumeActionResize = "resize"
	VolumeActionDelete = "delete"
	VolumeActionClone  = "clone"
)

var volumeActions = []any{
	VolumeActionAttach,
	VolumeActionDetach,
	VolumeActionRename,
	VolumeActionResize,
	VolumeActionDelete,
	VolumeActionClone,
}

// Volume is a block storage volume.
type Volume struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Name       string          `json:"name"`
	Size       int             `json:"size"`
	Type       string          `json:"type"`
	IsOSVolume bool            `json:"is_os_volume"`
	CreatedAt  strfmt.DateTime `json:"created_at"`
	Target     string          `json:"target"`
	Location   string          `json:"location"`
	InstanceID *string         `json:"instance_id"`
}

// CreateVolumeRequest is the payload of [VolumesService.Create].
type CreateVolumeRequest struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Location string `json:"location_code,omitempty"`

	// InstanceID attaches the new volume to an instance.
	InstanceID *string `json:"instance_id,omitempty"`
}

// VolumeActionRequest is the payload of [VolumesService.Action]. Only the
// fields relevant to Action are sent.
type VolumeActionRequest struct {
	IDs        []string `json:"id"`
	Action     string   `json:"action"`
	InstanceID string   `json:"instance_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Size       int      `json:"size,omitempty"`
	Type       string   `json:"type,omitempty"`
	Location   string   `json:"location_code,omitempty"`
}

// VolumesService manages block storage volumes.
type VolumesService struct {
	client *HTTPClient
}

// List returns all volumes, or only those in status when it is not empty.
func (s *VolumesService) List(ctx context.Context, status string) ([]Volume, error) {
	var opts []RequestOption
	if status != "" {
		opts = append(opts, WithQuery(url.Values{"status": {status}}))
	}
	resp, err := s.client.Get(ctx, volumesEndpoint, opts...)
	if err != nil {
		return nil, err
	}
	var volumes []Volume
	if err := decodeResponse(resp, &volumes); err != nil {
		return nil, err
	}
	return volumes, nil
}

// Get returns the volume with the given id.
func (s *VolumesService) Get(ctx context.Context, id string) (*Volume, error) {
	resp, err := s.client.Get(ctx, volumesEndpoint+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var v Volume
	if err := decodeResponse(resp, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Create creates a volume and returns it as reported by the API.
func (s *VolumesService) Create(ctx context.Context, req *CreateVolumeRequest) (*Volume, error) {
	if err := validate.Enum("type", "body", req.Type, []any{VolumeTypeHDD, VolumeTypeNVMe}); err != nil {
		return nil, err
	}
	if err := validate.RequiredString("name", "body", req.Name); err != nil {
		return nil, err
	}
	if err := validate.MinimumInt("size", "body", int64(req.Size), 1, false); err != nil {
		return nil, err
	}
	body := *req
	if body.Location == "" {
		body.Location = DefaultLocation
	}

	resp, err := s.client.Post(ctx, volumesEndpoint, WithJSONBody(&body))
	if err != nil {
		return nil, err
	}
	id, err := readText(resp)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Action performs an action on one or more volumes.
func (s *VolumesService) Action(ctx context.Context, req *VolumeActionRequest) error {
	if err := validate.Enum("action", "body", req.Action, volumeActions); err != nil {
		return err
	}
	if err := validate.MinItems("id", "body", int64(len(req.IDs)), 1); err != nil {
		return err
	}
	return discardResponse(s.client.Put(ctx, volumesEndpoint, WithJSONBody(req)))
}

// Delete deletes a volume. Unless permanent is set the volume is moved to
// the trash first and can be restored for a while.
func (s *VolumesService) Delete(ctx context.Context, id string, permanent bool) error {
	return discardResponse(s.client.Delete(ctx, volumesEndpoint+"/"+url.PathEscape(id),
		WithJSONBody(map[string]bool{"is_permanent": permanent})))
}
