package verda

import (
	"context"
	"net/url"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

const instancesEndpoint = "/instances"

// Instance actions.
const (
	InstanceActionBoot          = "boot"
	InstanceActionStart         = "start"
	InstanceActionShutdown      = "shutdown"
	InstanceActionDelete        = "delete"
	InstanceActionDiscontinue   = "discontinue"
	InstanceActionHibernate     = "hibernate"
	InstanceActionRestore       = "restore"
	InstanceActionForceShutdown = "force_shutdown"
)

var instanceActions = []any{
	InstanceActionBoot,
	InstanceActionStart,
	InstanceActionShutdown,
	InstanceActionDelete,
	InstanceActionDiscontinue,
	InstanceActionHibernate,
	InstanceActionRestore,
	InstanceActionForceShutdown,
}

// Instance statuses.
const (
	InstanceStatusRunning             = "running"
	InstanceStatusProvisioning        = "provisioning"
	InstanceStatusOffline             = "offline"
	InstanceStatusStartingHibernation = "starting_hibernation"
	InstanceStatusHibernating         = "hibernating"
	InstanceStatusRestoring           = "restoring"
	InstanceStatusError               = "error"
)

// InstanceSpec describes one hardware component of an instance.
type InstanceSpec struct {
	Description     string `json:"description"`
	NumberOfCores   int    `json:"number_of_cores,omitempty"`
	NumberOfGPUs    int    `json:"number_of_gpus,omitempty"`
	SizeInGigabytes int    `json:"size_in_gigabytes,omitempty"`
}

// Instance is a virtual machine.
type Instance struct {
	ID              string          `json:"id"`
	InstanceType    string          `json:"instance_type"`
	Image           string          `json:"image"`
	PricePerHour    float64         `json:"price_per_hour"`
	Hostname        string          `json:"hostname"`
	Description     string          `json:"description"`
	IP              string          `json:"ip"`
	Status          string          `json:"status"`
	CreatedAt       strfmt.DateTime `json:"created_at"`
	SSHKeyIDs       []string        `json:"ssh_key_ids"`
	CPU             InstanceSpec    `json:"cpu"`
	GPU             InstanceSpec    `json:"gpu"`
	Memory          InstanceSpec    `json:"memory"`
	Storage         InstanceSpec    `json:"storage"`
	Location        string          `json:"location"`
	StartupScriptID *string         `json:"startup_script_id,omitempty"`
	IsSpot          bool            `json:"is_spot"`
}

// CreateInstanceRequest is the payload of [InstancesService.Create].
type CreateInstanceRequest struct {
	InstanceType    string   `json:"instance_type"`
	Image           string   `json:"image"`
	SSHKeyIDs       []string `json:"ssh_key_ids"`
	Hostname        string   `json:"hostname"`
	Description     string   `json:"description"`
	Location        string   `json:"location,omitempty"`
	StartupScriptID *string  `json:"startup_script_id"`
	IsSpot          bool     `json:"is_spot,omitempty"`
}

// InstancesService deploys and manages instances.
type InstancesService struct {
	client *HTTPClient
}

// List returns the non-deleted instances, or only those in status when it
// is not empty.
func (s *InstancesService) List(ctx context.Context, status string) ([]Instance, error) {
	var opts []RequestOption
	if status != "" {
		opts = append(opts, WithQuery(url.Values{"status": {status}}))
	}
	resp, err := s.client.Get(ctx, instancesEndpoint, opts...)
	if err != nil {
		return nil, err
	}
	var instances []Instance
	if err := decodeResponse(resp, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// Get returns the instance with the given id.
func (s *InstancesService) Get(ctx context.Context, id string) (*Instance, error) {
	resp, err := s.client.Get(ctx, instancesEndpoint+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var inst Instance
	if err := decodeResponse(resp, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Create deploys a new instance and returns it as reported by the API.
// The location defaults to [DefaultLocation].
func (s *InstancesService) Create(ctx context.Context, req *CreateInstanceRequest) (*Instance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := *req
	if body.Location == "" {
		body.Location = DefaultLocation
	}

	resp, err := s.client.Post(ctx, instancesEndpoint, WithJSONBody(&body))
	if err != nil {
		return nil, err
	}
	id, err := readText(resp)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Validate checks the required fields of the request.
func (r *CreateInstanceRequest) Validate() error {
	if err := validate.RequiredString("instance_type", "body", r.InstanceType); err != nil {
		return err
	}
	if err := validate.RequiredString("image", "body", r.Image); err != nil {
		return err
	}
	if err := validate.RequiredString("hostname", "body", r.Hostname); err != nil {
		return err
	}
	return nil
}

// Action performs action on one or more instances.
func (s *InstancesService) Action(ctx context.Context, action string, ids ...string) error {
	if err := validate.Enum("action", "body", action, instanceActions); err != nil {
		return err
	}
	if err := validate.MinItems("id", "body", int64(len(ids)), 1); err != nil {
		return err
	}
	return discardResponse(s.client.Post(ctx, instancesEndpoint+"/action", WithJSONBody(map[string]any{
		"id":     ids,
		"action": action,
	})))
}

// IsAvailable reports whether instanceType can be deployed right now.
func (s *InstancesService) IsAvailable(ctx context.Context, instanceType string, isSpot bool) (bool, error) {
	var opts []RequestOption
	if isSpot {
		opts = append(opts, WithQuery(url.Values{"is_spot": {"true"}}))
	}
	resp, err := s.client.Get(ctx, instancesEndpoint+"/availability/"+url.PathEscape(instanceType), opts...)
	if err != nil {
		return false, err
	}
	var available bool
	if err := decodeResponse(resp, &available); err != nil {
		return false, err
	}
	return available, nil
}
