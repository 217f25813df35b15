package verda

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
	"github.com/sirupsen/logrus"
)

const (
	containerDeploymentsEndpoint       = "/container-deployments"
	serverlessComputeResourcesEndpoint = "/serverless-compute-resources"
	registryCredentialsEndpoint        = "/container-registry-credentials"
	secretsEndpoint                    = "/secrets"
	filesetSecretsEndpoint             = "/file-secrets"
)

// SecretType tells a plain secret from a fileset secret.
type SecretType string

// Secret types.
const (
	SecretTypeGeneric SecretType = "generic"
	SecretTypeFileset SecretType = "file-secret"
)

// Secret is a secret stored for container deployments. The value is never
// returned by the API.
type Secret struct {
	Name       string          `json:"name"`
	CreatedAt  strfmt.DateTime `json:"created_at"`
	SecretType SecretType      `json:"secret_type"`
}

// RegistryCredential is stored registry credentials as listed by the API.
type RegistryCredential struct {
	Name      string          `json:"name"`
	CreatedAt strfmt.DateTime `json:"created_at"`
}

type containerEnv struct {
	ContainerName string   `json:"container_name"`
	Env           []EnvVar `json:"env"`
}

type filesetFile struct {
	FileName      string `json:"file_name"`
	Base64Content string `json:"base64_content"`
}

// ContainersService manages serverless container deployments, their
// secrets and registry credentials.
//
// When the client has an inference key, every deployment returned with an
// endpoint comes with a bound [InferenceClient].
type ContainersService struct {
	client       *HTTPClient
	inferenceKey string
	httpClient   *http.Client
	logger       logrus.FieldLogger
}

// ListDeployments returns all deployments.
func (s *ContainersService) ListDeployments(ctx context.Context) ([]*Deployment, error) {
	resp, err := s.client.Get(ctx, containerDeploymentsEndpoint)
	if err != nil {
		return nil, err
	}
	var deployments []*Deployment
	if err := decodeResponse(resp, &deployments); err != nil {
		return nil, err
	}
	for _, d := range deployments {
		s.bindInference(d)
	}
	return deployments, nil
}

// GetDeployment returns the deployment with the given name.
func (s *ContainersService) GetDeployment(ctx context.Context, name string) (*Deployment, error) {
	resp, err := s.client.Get(ctx, deploymentPath(name))
	if err != nil {
		return nil, err
	}
	return s.decodeDeployment(resp)
}

// CreateDeployment creates a deployment and returns it as reported by the API.
func (s *ContainersService) CreateDeployment(ctx context.Context, d *Deployment) (*Deployment, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client.Post(ctx, containerDeploymentsEndpoint, WithJSONBody(d))
	if err != nil {
		return nil, err
	}
	return s.decodeDeployment(resp)
}

// UpdateDeployment replaces the configuration of the named deployment.
func (s *ContainersService) UpdateDeployment(ctx context.Context, name string, d *Deployment) (*Deployment, error) {
	resp, err := s.client.Patch(ctx, deploymentPath(name), WithJSONBody(d))
	if err != nil {
		return nil, err
	}
	return s.decodeDeployment(resp)
}

// DeleteDeployment deletes the named deployment.
func (s *ContainersService) DeleteDeployment(ctx context.Context, name string) error {
	return discardResponse(s.client.Delete(ctx, deploymentPath(name)))
}

// GetDeploymentStatus returns the current status of the named deployment.
func (s *ContainersService) GetDeploymentStatus(ctx context.Context, name string) (DeploymentStatus, error) {
	resp, err := s.client.Get(ctx, deploymentPath(name)+"/status")
	if err != nil {
		return "", err
	}
	var body struct {
		Status DeploymentStatus `json:"status"`
	}
	if err := decodeResponse(resp, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

// RestartDeployment restarts all replicas of the named deployment.
func (s *ContainersService) RestartDeployment(ctx context.Context, name string) error {
	return discardResponse(s.client.Post(ctx, deploymentPath(name)+"/restart"))
}

// GetScalingOptions returns the scaling options of the named deployment.
func (s *ContainersService) GetScalingOptions(ctx context.Context, name string) (*ScalingOptions, error) {
	resp, err := s.client.Get(ctx, deploymentPath(name)+"/scaling")
	if err != nil {
		return nil, err
	}
	var opts ScalingOptions
	if err := decodeResponse(resp, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// UpdateScalingOptions replaces the scaling options of the named deployment.
func (s *ContainersService) UpdateScalingOptions(ctx context.Context, name string, opts *ScalingOptions) (*ScalingOptions, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client.Patch(ctx, deploymentPath(name)+"/scaling", WithJSONBody(opts))
	if err != nil {
		return nil, err
	}
	var updated ScalingOptions
	if err := decodeResponse(resp, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetReplicas lists the replicas of the named deployment.
func (s *ContainersService) GetReplicas(ctx context.Context, name string) ([]ReplicaInfo, error) {
	resp, err := s.client.Get(ctx, deploymentPath(name)+"/replicas")
	if err != nil {
		return nil, err
	}
	var body struct {
		List []ReplicaInfo `json:"list"`
	}
	if err := decodeResponse(resp, &body); err != nil {
		return nil, err
	}
	return body.List, nil
}

// PurgeQueue drops the queued requests of the named deployment.
func (s *ContainersService) PurgeQueue(ctx context.Context, name string) error {
	return discardResponse(s.client.Post(ctx, deploymentPath(name)+"/purge-queue"))
}

// PauseDeployment scales the named deployment to zero and keeps it paused.
func (s *ContainersService) PauseDeployment(ctx context.Context, name string) error {
	return discardResponse(s.client.Post(ctx, deploymentPath(name)+"/pause"))
}

// ResumeDeployment resumes a paused deployment.
func (s *ContainersService) ResumeDeployment(ctx context.Context, name string) error {
	return discardResponse(s.client.Post(ctx, deploymentPath(name)+"/resume"))
}

// GetEnvironmentVariables returns the environment variables of every
// container of the named deployment, keyed by container name.
func (s *ContainersService) GetEnvironmentVariables(ctx context.Context, name string) (map[string][]EnvVar, error) {
	resp, err := s.client.Get(ctx, deploymentPath(name)+"/environment-variables")
	if err != nil {
		return nil, err
	}
	return decodeContainerEnvs(resp)
}

// AddEnvironmentVariables adds variables to one container and returns the
// variables of every container.
func (s *ContainersService) AddEnvironmentVariables(ctx context.Context, name, containerName string, vars []EnvVar) (map[string][]EnvVar, error) {
	resp, err := s.client.Post(ctx, deploymentPath(name)+"/environment-variables",
		WithJSONBody(containerEnv{ContainerName: containerName, Env: vars}))
	if err != nil {
		return nil, err
	}
	return decodeContainerEnvs(resp)
}

// UpdateEnvironmentVariables updates variables of one container and
// returns the variables of that container.
func (s *ContainersService) UpdateEnvironmentVariables(ctx context.Context, name, containerName string, vars []EnvVar) (map[string][]EnvVar, error) {
	resp, err := s.client.Patch(ctx, deploymentPath(name)+"/environment-variables",
		WithJSONBody(containerEnv{ContainerName: containerName, Env: vars}))
	if err != nil {
		return nil, err
	}
	var item containerEnv
	if err := decodeResponse(resp, &item); err != nil {
		return nil, err
	}
	return map[string][]EnvVar{item.ContainerName: item.Env}, nil
}

// DeleteEnvironmentVariables removes variables by name from one container
// and returns the variables of every container.
func (s *ContainersService) DeleteEnvironmentVariables(ctx context.Context, name, containerName string, varNames []string) (map[string][]EnvVar, error) {
	resp, err := s.client.Delete(ctx, deploymentPath(name)+"/environment-variables",
		WithJSONBody(map[string]any{"container_name": containerName, "env": varNames}))
	if err != nil {
		return nil, err
	}
	return decodeContainerEnvs(resp)
}

// GetComputeResources returns the compute resources, optionally filtered
// by size (0 for any) and to available ones only.
func (s *ContainersService) GetComputeResources(ctx context.Context, size int, availableOnly bool) ([]ComputeResource, error) {
	resp, err := s.client.Get(ctx, serverlessComputeResourcesEndpoint)
	if err != nil {
		return nil, err
	}
	// Resources come grouped by GPU model.
	var groups [][]ComputeResource
	if err := decodeResponse(resp, &groups); err != nil {
		return nil, err
	}

	var resources []ComputeResource
	for _, group := range groups {
		for _, r := range group {
			if size != 0 && r.Size != size {
				continue
			}
			if availableOnly && !swag.BoolValue(r.IsAvailable) {
				continue
			}
			resources = append(resources, r)
		}
	}
	return resources, nil
}

// GetSecrets lists the secrets.
func (s *ContainersService) GetSecrets(ctx context.Context) ([]Secret, error) {
	return s.listSecrets(ctx, secretsEndpoint)
}

// CreateSecret stores a secret value.
func (s *ContainersService) CreateSecret(ctx context.Context, name, value string) error {
	if err := validate.RequiredString("name", "body", name); err != nil {
		return err
	}
	return discardResponse(s.client.Post(ctx, secretsEndpoint,
		WithJSONBody(map[string]string{"name": name, "value": value})))
}

// DeleteSecret deletes a secret. With force it is deleted even when in use.
func (s *ContainersService) DeleteSecret(ctx context.Context, name string, force bool) error {
	return discardResponse(s.client.Delete(ctx, secretsEndpoint+"/"+url.PathEscape(name),
		WithQuery(url.Values{"force": {strconv.FormatBool(force)}})))
}

// GetRegistryCredentials lists the stored registry credentials.
func (s *ContainersService) GetRegistryCredentials(ctx context.Context) ([]RegistryCredential, error) {
	resp, err := s.client.Get(ctx, registryCredentialsEndpoint)
	if err != nil {
		return nil, err
	}
	var creds []RegistryCredential
	if err := decodeResponse(resp, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// AddRegistryCredentials stores credentials for a private registry.
func (s *ContainersService) AddRegistryCredentials(ctx context.Context, creds RegistryCredentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	return discardResponse(s.client.Post(ctx, registryCredentialsEndpoint, WithJSONBody(creds)))
}

// DeleteRegistryCredentials deletes the named registry credentials.
func (s *ContainersService) DeleteRegistryCredentials(ctx context.Context, name string) error {
	return discardResponse(s.client.Delete(ctx, registryCredentialsEndpoint+"/"+url.PathEscape(name)))
}

// GetFilesetSecrets lists the fileset secrets.
func (s *ContainersService) GetFilesetSecrets(ctx context.Context) ([]Secret, error) {
	return s.listSecrets(ctx, filesetSecretsEndpoint)
}

// DeleteFilesetSecret deletes the named fileset secret.
func (s *ContainersService) DeleteFilesetSecret(ctx context.Context, name string) error {
	return discardResponse(s.client.Delete(ctx, filesetSecretsEndpoint+"/"+url.PathEscape(name)))
}

// CreateFilesetSecretFromFiles creates a fileset secret holding the given
// files, which can then be mounted with a [SecretMount]. Each file is
// stored under its base name.
func (s *ContainersService) CreateFilesetSecretFromFiles(ctx context.Context, name string, paths []string) error {
	if err := validate.RequiredString("name", "body", name); err != nil {
		return err
	}
	files := make([]filesetFile, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read fileset secret file: %w", err)
		}
		files = append(files, filesetFile{
			FileName:      filepath.Base(p),
			Base64Content: base64.StdEncoding.EncodeToString(content),
		})
	}
	return discardResponse(s.client.Post(ctx, filesetSecretsEndpoint, WithJSONBody(map[string]any{
		"name":  name,
		"files": files,
	})))
}

func (s *ContainersService) listSecrets(ctx context.Context, endpoint string) ([]Secret, error) {
	resp, err := s.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var secrets []Secret
	if err := decodeResponse(resp, &secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

func (s *ContainersService) decodeDeployment(resp *http.Response) (*Deployment, error) {
	var d Deployment
	if err := decodeResponse(resp, &d); err != nil {
		return nil, err
	}
	s.bindInference(&d)
	return &d, nil
}

// bindInference attaches an inference client when both an inference key and
// an endpoint are known. A deployment that cannot be bound is still returned.
func (s *ContainersService) bindInference(d *Deployment) {
	if s.inferenceKey == "" || swag.StringValue(d.EndpointBaseURL) == "" {
		return
	}
	err := d.SetInferenceClient(s.inferenceKey,
		WithInferenceHTTPClient(s.httpClient),
		WithInferenceLogger(s.logger),
	)
	if err != nil {
		s.logger.WithError(err).WithField("deployment", d.Name).Warn("cannot bind inference client")
	}
}

func decodeContainerEnvs(resp *http.Response) (map[string][]EnvVar, error) {
	var items []containerEnv
	if err := decodeResponse(resp, &items); err != nil {
		return nil, err
	}
	out := make(map[string][]EnvVar, len(items))
	for _, item := range items {
		out[item.ContainerName] = item.Env
	}
	return out, nil
}

func deploymentPath(name string) string {
	return containerDeploymentsEndpoint + "/" + url.PathEscape(name)
}
