package verda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	oaierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

// DeploymentStatus is the health of a container deployment.
type DeploymentStatus string

// Deployment statuses.
const (
	DeploymentStatusInitializing    DeploymentStatus = "initializing"
	DeploymentStatusHealthy         DeploymentStatus = "healthy"
	DeploymentStatusDegraded        DeploymentStatus = "degraded"
	DeploymentStatusUnhealthy       DeploymentStatus = "unhealthy"
	DeploymentStatusPaused          DeploymentStatus = "paused"
	DeploymentStatusQuotaReached    DeploymentStatus = "quota_reached"
	DeploymentStatusImagePulling    DeploymentStatus = "image_pulling"
	DeploymentStatusVersionUpdating DeploymentStatus = "version_updating"
)

// EnvVarType tells whether an environment variable holds a value or a
// secret reference.
type EnvVarType string

// Environment variable types.
const (
	EnvVarTypePlain  EnvVarType = "plain"
	EnvVarTypeSecret EnvVarType = "secret"
)

// HealthcheckSettings configures the health check of a container.
type HealthcheckSettings struct {
	Enabled bool    `json:"enabled"`
	Port    *int    `json:"port,omitempty"`
	Path    *string `json:"path,omitempty"`
}

// EntrypointOverrides replaces the image entrypoint and command.
type EntrypointOverrides struct {
	Enabled    bool     `json:"enabled"`
	Entrypoint []string `json:"entrypoint,omitempty"`
	Cmd        []string `json:"cmd,omitempty"`
}

// EnvVar is an environment variable of a container.
type EnvVar struct {
	Name                     string     `json:"name"`
	ValueOrReferenceToSecret string     `json:"value_or_reference_to_secret"`
	Type                     EnvVarType `json:"type"`
}

// Container is one container of a deployment.
type Container struct {
	// Name is assigned by the API and read-only.
	Name                *string              `json:"name,omitempty"`
	Image               string               `json:"image"`
	ExposedPort         int                  `json:"exposed_port"`
	Healthcheck         *HealthcheckSettings `json:"healthcheck,omitempty"`
	EntrypointOverrides *EntrypointOverrides `json:"entrypoint_overrides,omitempty"`
	Env                 []EnvVar             `json:"env,omitempty"`
	VolumeMounts        VolumeMounts         `json:"volume_mounts,omitempty"`
}

// RegistryCredentialsRef names registry credentials added with
// [ContainersService.AddRegistryCredentials].
type RegistryCredentialsRef struct {
	Name string `json:"name"`
}

// ContainerRegistrySettings tells how container images are pulled.
type ContainerRegistrySettings struct {
	IsPrivate   bool                    `json:"is_private"`
	Credentials *RegistryCredentialsRef `json:"credentials,omitempty"`
}

// ComputeResource is a GPU type available to deployments.
type ComputeResource struct {
	Name string `json:"name"`
	Size int    `json:"size"`

	// IsAvailable is only set in API responses.
	IsAvailable *bool `json:"is_available,omitempty"`
}

// ScalingPolicy delays a scaling action.
type ScalingPolicy struct {
	DelaySeconds int `json:"delay_seconds"`
}

// QueueLoadScalingTrigger scales on queue load.
type QueueLoadScalingTrigger struct {
	Threshold float64 `json:"threshold"`
}

// UtilizationScalingTrigger scales on CPU or GPU utilization.
type UtilizationScalingTrigger struct {
	Enabled   bool     `json:"enabled"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// ScalingTriggers groups the scaling triggers of a deployment.
type ScalingTriggers struct {
	QueueLoad      *QueueLoadScalingTrigger   `json:"queue_load,omitempty"`
	CPUUtilization *UtilizationScalingTrigger `json:"cpu_utilization,omitempty"`
	GPUUtilization *UtilizationScalingTrigger `json:"gpu_utilization,omitempty"`
}

// ScalingOptions configures the autoscaler of a deployment.
type ScalingOptions struct {
	MinReplicaCount              int             `json:"min_replica_count"`
	MaxReplicaCount              int             `json:"max_replica_count"`
	ScaleDownPolicy              ScalingPolicy   `json:"scale_down_policy"`
	ScaleUpPolicy                ScalingPolicy   `json:"scale_up_policy"`
	QueueMessageTTLSeconds       int             `json:"queue_message_ttl_seconds"`
	ConcurrentRequestsPerReplica int             `json:"concurrent_requests_per_replica"`
	ScalingTriggers              ScalingTriggers `json:"scaling_triggers"`
}

// Validate checks the replica bounds.
func (o *ScalingOptions) Validate() error {
	var errs []error
	if err := validate.MinimumInt("min_replica_count", "body", int64(o.MinReplicaCount), 0, false); err != nil {
		errs = append(errs, err)
	}
	if err := validate.MinimumInt("max_replica_count", "body", int64(o.MaxReplicaCount), int64(o.MinReplicaCount), false); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return oaierrors.CompositeValidationError(errs...)
	}
	return nil
}

// ReplicaInfo is a running replica of a deployment.
type ReplicaInfo struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	StartedAt strfmt.DateTime `json:"started_at"`
}

// Deployment is a serverless container deployment.
//
// When it has an endpoint and the client was given an inference key, the
// deployment carries an [InferenceClient] and can be called with
// [Deployment.RunSync], [Deployment.Run] and [Deployment.Health].
type Deployment struct {
	Name                      string                    `json:"name"`
	Containers                []Container               `json:"containers"`
	Compute                   ComputeResource           `json:"compute"`
	ContainerRegistrySettings ContainerRegistrySettings `json:"container_registry_settings"`
	IsSpot                    bool                      `json:"is_spot"`
	EndpointBaseURL           *string                   `json:"endpoint_base_url,omitempty"`
	Scaling                   *ScalingOptions           `json:"scaling,omitempty"`
	CreatedAt                 *strfmt.DateTime          `json:"created_at,omitempty"`

	inference *InferenceClient
}

// Validate checks the fields the API requires on create.
func (d *Deployment) Validate() error {
	var errs []error
	if err := validate.RequiredString("name", "body", d.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validate.MinItems("containers", "body", int64(len(d.Containers)), 1); err != nil {
		errs = append(errs, err)
	}
	for i, c := range d.Containers {
		if err := validate.RequiredString(fmt.Sprintf("containers.%d.image", i), "body", c.Image); err != nil {
			errs = append(errs, err)
		}
		if err := validate.MinimumInt(fmt.Sprintf("containers.%d.exposed_port", i), "body", int64(c.ExposedPort), 1, false); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validate.RequiredString("compute.name", "body", d.Compute.Name); err != nil {
		errs = append(errs, err)
	}
	if d.Scaling != nil {
		if err := d.Scaling.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oaierrors.CompositeValidationError(errs...)
	}
	return nil
}

// String describes the deployment without its inference client.
func (d *Deployment) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deployment(name=%s, containers=[", d.Name)
	for i, c := range d.Containers {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%d", c.Image, c.ExposedPort)
	}
	fmt.Fprintf(&b, "], compute=%s x%d, is_spot=%t", d.Compute.Name, d.Compute.Size, d.IsSpot)
	if d.EndpointBaseURL != nil {
		fmt.Fprintf(&b, ", endpoint_base_url=%s", *d.EndpointBaseURL)
	}
	if d.Scaling != nil {
		fmt.Fprintf(&b, ", replicas=%d..%d", d.Scaling.MinReplicaCount, d.Scaling.MaxReplicaCount)
	}
	if d.CreatedAt != nil {
		fmt.Fprintf(&b, ", created_at=%s", d.CreatedAt.String())
	}
	b.WriteString(")")
	return b.String()
}

// SetInferenceClient binds an inference client to the deployment endpoint.
func (d *Deployment) SetInferenceClient(inferenceKey string, opts ...InferenceOption) error {
	if swag.StringValue(d.EndpointBaseURL) == "" {
		return oaierrors.Required("endpoint_base_url", "body", nil)
	}
	ic, err := NewInferenceClient(inferenceKey, *d.EndpointBaseURL, opts...)
	if err != nil {
		return err
	}
	d.inference = ic
	return nil
}

// InferenceClient returns the bound inference client, or nil.
func (d *Deployment) InferenceClient() *InferenceClient {
	return d.inference
}

// RunSync calls the deployment synchronously. See [InferenceClient.RunSync].
func (d *Deployment) RunSync(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	if d.inference == nil {
		return nil, ErrInferenceClientNotInitialized
	}
	return d.inference.RunSync(ctx, req)
}

// Run submits an asynchronous inference. See [InferenceClient.Run].
func (d *Deployment) Run(ctx context.Context, req *InferenceRequest) (*AsyncInferenceExecution, error) {
	if d.inference == nil {
		return nil, ErrInferenceClientNotInitialized
	}
	return d.inference.Run(ctx, req)
}

// Health calls the health endpoint of the first container, or "/health"
// when it has no healthcheck path.
func (d *Deployment) Health(ctx context.Context) (*http.Response, error) {
	if d.inference == nil {
		return nil, ErrInferenceClientNotInitialized
	}
	return d.inference.Health(ctx, d.healthcheckPath())
}

func (d *Deployment) healthcheckPath() string {
	if len(d.Containers) > 0 && d.Containers[0].Healthcheck != nil {
		if p := swag.StringValue(d.Containers[0].Healthcheck.Path); p != "" {
			return p
		}
	}
	return defaultHealthcheckPath
}

// VolumeMountType identifies a kind of volume mount.
type VolumeMountType string

// Volume mount types.
const (
	VolumeMountTypeScratch VolumeMountType = "scratch"
	VolumeMountTypeSecret  VolumeMountType = "secret"
	VolumeMountTypeMemory  VolumeMountType = "memory"
	VolumeMountTypeShared  VolumeMountType = "shared"
)

// memoryMountPath is where memory volumes are mounted. It cannot be changed.
const memoryMountPath = "/dev/shm"

// VolumeMount is a volume mounted into a container.
//
// The set of implementations is closed: [ScratchMount], [SecretMount],
// [MemoryMount] and [SharedFileSystemMount].
type VolumeMount interface {
	MountType() VolumeMountType
	Path() string

	isVolumeMount()
}

// ScratchMount is ephemeral general storage.
type ScratchMount struct {
	MountPath string `json:"mount_path"`
}

// SecretMount mounts the files of a fileset secret.
type SecretMount struct {
	MountPath  string   `json:"mount_path"`
	SecretName string   `json:"secret_name"`
	FileNames  []string `json:"file_names,omitempty"`
}

// MemoryMount is in-memory storage mounted at /dev/shm.
type MemoryMount struct {
	SizeInMB int `json:"size_in_mb"`
}

// SharedFileSystemMount mounts an existing shared filesystem volume.
type SharedFileSystemMount struct {
	MountPath string `json:"mount_path"`
	VolumeID  string `json:"volume_id"`
}

func (ScratchMount) MountType() VolumeMountType          { return VolumeMountTypeScratch }
func (SecretMount) MountType() VolumeMountType           { return VolumeMountTypeSecret }
func (MemoryMount) MountType() VolumeMountType           { return VolumeMountTypeMemory }
func (SharedFileSystemMount) MountType() VolumeMountType { return VolumeMountTypeShared }

func (m ScratchMount) Path() string          { return m.MountPath }
func (m SecretMount) Path() string           { return m.MountPath }
func (MemoryMount) Path() string             { return memoryMountPath }
func (m SharedFileSystemMount) Path() string { return m.MountPath }

func (ScratchMount) isVolumeMount()          {}
func (SecretMount) isVolumeMount()           {}
func (MemoryMount) isVolumeMount()           {}
func (SharedFileSystemMount) isVolumeMount() {}

// VolumeMounts is a list of volume mounts that encodes each entry with its
// type tag and decodes entries back into their concrete type.
type VolumeMounts []VolumeMount

type volumeMountHeader struct {
	Type      VolumeMountType `json:"type"`
	MountPath string          `json:"mount_path,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v VolumeMounts) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	out := make([]json.RawMessage, 0, len(v))
	for _, m := range v {
		header := volumeMountHeader{Type: m.MountType()}
		if _, ok := m.(MemoryMount); ok {
			header.MountPath = memoryMountPath
		}
		head, err := swag.WriteJSON(header)
		if err != nil {
			return nil, err
		}
		body, err := swag.WriteJSON(m)
		if err != nil {
			return nil, err
		}
		out = append(out, swag.ConcatJSON(head, body))
	}
	return swag.WriteJSON(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *VolumeMounts) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := swag.ReadJSON(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	mounts := make(VolumeMounts, 0, len(raw))
	for _, r := range raw {
		var head volumeMountHeader
		if err := swag.ReadJSON(r, &head); err != nil {
			return err
		}
		var m VolumeMount
		switch head.Type {
		case VolumeMountTypeScratch:
			var s ScratchMount
			if err := swag.ReadJSON(r, &s); err != nil {
				return err
			}
			m = s
		case VolumeMountTypeSecret:
			var s SecretMount
			if err := swag.ReadJSON(r, &s); err != nil {
				return err
			}
			m = s
		case VolumeMountTypeMemory:
			var s MemoryMount
			if err := swag.ReadJSON(r, &s); err != nil {
				return err
			}
			m = s
		case VolumeMountTypeShared:
			var s SharedFileSystemMount
			if err := swag.ReadJSON(r, &s); err != nil {
				return err
			}
			m = s
		default:
			return fmt.Errorf("unknown volume mount type %q", head.Type)
		}
		mounts = append(mounts, m)
	}
	*v = mounts
	return nil
}
