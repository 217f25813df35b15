package verda

import (
	"fmt"

	oaierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

// RegistryType identifies a container registry provider.
type RegistryType string

// Registry types.
const (
	RegistryTypeGCR       RegistryType = "gcr"
	RegistryTypeDockerHub RegistryType = "dockerhub"
	RegistryTypeGitHub    RegistryType = "ghcr"
	RegistryTypeAWSECR    RegistryType = "aws-ecr"
	RegistryTypeCustom    RegistryType = "custom"
)

// RegistryCredentials are credentials for a private container registry.
//
// The set of implementations is closed: [DockerHubCredentials],
// [GitHubCredentials], [GCRCredentials], [AWSECRCredentials] and
// [CustomRegistryCredentials]. Each one encodes with its name and
// registry type.
type RegistryCredentials interface {
	CredentialsName() string
	RegistryType() RegistryType
	Validate() error

	isRegistryCredentials()
}

// DockerHubCredentials authenticate against Docker Hub.
type DockerHubCredentials struct {
	Name        string `json:"-"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
}

// GitHubCredentials authenticate against the GitHub container registry.
type GitHubCredentials struct {
	Name        string `json:"-"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
}

// GCRCredentials authenticate against Google Container Registry with a
// service account key.
type GCRCredentials struct {
	Name              string `json:"-"`
	ServiceAccountKey string `json:"service_account_key"`
}

// AWSECRCredentials authenticate against an AWS ECR repository.
type AWSECRCredentials struct {
	Name            string `json:"-"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	ECRRepo         string `json:"ecr_repo"`
}

// CustomRegistryCredentials authenticate with a docker config.json document.
type CustomRegistryCredentials struct {
	Name             string `json:"-"`
	DockerConfigJSON string `json:"docker_config_json"`
}

func (c *DockerHubCredentials) CredentialsName() string      { return c.Name }
func (c *GitHubCredentials) CredentialsName() string         { return c.Name }
func (c *GCRCredentials) CredentialsName() string            { return c.Name }
func (c *AWSECRCredentials) CredentialsName() string         { return c.Name }
func (c *CustomRegistryCredentials) CredentialsName() string { return c.Name }

func (c *DockerHubCredentials) RegistryType() RegistryType      { return RegistryTypeDockerHub }
func (c *GitHubCredentials) RegistryType() RegistryType         { return RegistryTypeGitHub }
func (c *GCRCredentials) RegistryType() RegistryType            { return RegistryTypeGCR }
func (c *AWSECRCredentials) RegistryType() RegistryType         { return RegistryTypeAWSECR }
func (c *CustomRegistryCredentials) RegistryType() RegistryType { return RegistryTypeCustom }

func (*DockerHubCredentials) isRegistryCredentials()      {}
func (*GitHubCredentials) isRegistryCredentials()         {}
func (*GCRCredentials) isRegistryCredentials()            {}
func (*AWSECRCredentials) isRegistryCredentials()         {}
func (*CustomRegistryCredentials) isRegistryCredentials() {}

// Validate checks the required fields.
func (c *DockerHubCredentials) Validate() error {
	return requiredStrings(map[string]string{
		"name":         c.Name,
		"username":     c.Username,
		"access_token": c.AccessToken,
	})
}

// Validate checks the required fields.
func (c *GitHubCredentials) Validate() error {
	return requiredStrings(map[string]string{
		"name":         c.Name,
		"username":     c.Username,
		"access_token": c.AccessToken,
	})
}

// Validate checks the required fields.
func (c *GCRCredentials) Validate() error {
	return requiredStrings(map[string]string{
		"name":                c.Name,
		"service_account_key": c.ServiceAccountKey,
	})
}

// Validate checks the required fields.
func (c *AWSECRCredentials) Validate() error {
	return requiredStrings(map[string]string{
		"name":              c.Name,
		"access_key_id":     c.AccessKeyID,
		"secret_access_key": c.SecretAccessKey,
		"region":            c.Region,
		"ecr_repo":          c.ECRRepo,
	})
}

// Validate checks the required fields.
func (c *CustomRegistryCredentials) Validate() error {
	return requiredStrings(map[string]string{
		"name":               c.Name,
		"docker_config_json": c.DockerConfigJSON,
	})
}

// MarshalJSON encodes the credentials with their name and type.
func (c *DockerHubCredentials) MarshalJSON() ([]byte, error) {
	type plain DockerHubCredentials
	return marshalRegistryCredentials(c, (*plain)(c))
}

// MarshalJSON encodes the credentials with their name and type.
func (c *GitHubCredentials) MarshalJSON() ([]byte, error) {
	type plain GitHubCredentials
	return marshalRegistryCredentials(c, (*plain)(c))
}

// MarshalJSON encodes the credentials with their name and type.
func (c *GCRCredentials) MarshalJSON() ([]byte, error) {
	type plain GCRCredentials
	return marshalRegistryCredentials(c, (*plain)(c))
}

// MarshalJSON encodes the credentials with their name and type.
func (c *AWSECRCredentials) MarshalJSON() ([]byte, error) {
	type plain AWSECRCredentials
	return marshalRegistryCredentials(c, (*plain)(c))
}

// MarshalJSON encodes the credentials with their name and type.
func (c *CustomRegistryCredentials) MarshalJSON() ([]byte, error) {
	type plain CustomRegistryCredentials
	return marshalRegistryCredentials(c, (*plain)(c))
}

func marshalRegistryCredentials(c RegistryCredentials, fields any) ([]byte, error) {
	head, err := swag.WriteJSON(struct {
		Name string       `json:"name"`
		Type RegistryType `json:"type"`
	}{c.CredentialsName(), c.RegistryType()})
	if err != nil {
		return nil, err
	}
	body, err := swag.WriteJSON(fields)
	if err != nil {
		return nil, err
	}
	return swag.ConcatJSON(head, body), nil
}

// String omits the secret fields.
func (c *DockerHubCredentials) String() string { return credentialsString(c) }

// String omits the secret fields.
func (c *GitHubCredentials) String() string { return credentialsString(c) }

// String omits the secret fields.
func (c *GCRCredentials) String() string { return credentialsString(c) }

// String omits the secret fields.
func (c *AWSECRCredentials) String() string { return credentialsString(c) }

// String omits the secret fields.
func (c *CustomRegistryCredentials) String() string { return credentialsString(c) }

func credentialsString(c RegistryCredentials) string {
	return fmt.Sprintf("RegistryCredentials(name=%s, type=%s)", c.CredentialsName(), c.RegistryType())
}

// requiredStrings validates that every named value is set and reports all
// missing fields at once.
func requiredStrings(fields map[string]string) error {
	var errs []error
	for name, value := range fields {
		if err := validate.RequiredString(name, "body", value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oaierrors.CompositeValidationError(errs...)
	}
	return nil
}
