package verda

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-openapi/validate"
)

const sshKeysEndpoint = "/sshkeys"

// SSHKey is a public SSH key registered with the account.
type SSHKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"key"`
}

// SSHKeysService manages SSH keys.
type SSHKeysService struct {
	client *HTTPClient
}

// List returns all SSH keys.
func (s *SSHKeysService) List(ctx context.Context) ([]SSHKey, error) {
	resp, err := s.client.Get(ctx, sshKeysEndpoint)
	if err != nil {
		return nil, err
	}
	var keys []SSHKey
	if err := decodeResponse(resp, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Get returns the SSH key with the given id.
func (s *SSHKeysService) Get(ctx context.Context, id string) (*SSHKey, error) {
	resp, err := s.client.Get(ctx, sshKeysEndpoint+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	// The endpoint answers with a single-element list.
	var keys []SSHKey
	if err := decodeResponse(resp, &keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("ssh key %s: empty response", id)
	}
	return &keys[0], nil
}

// Create registers a public key and returns it with its new id.
func (s *SSHKeysService) Create(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	if err := validate.RequiredString("name", "body", name); err != nil {
		return nil, err
	}
	if err := validate.RequiredString("key", "body", publicKey); err != nil {
		return nil, err
	}

	resp, err := s.client.Post(ctx, sshKeysEndpoint, WithJSONBody(map[string]string{
		"name": name,
		"key":  publicKey,
	}))
	if err != nil {
		return nil, err
	}
	id, err := readText(resp)
	if err != nil {
		return nil, err
	}
	return &SSHKey{ID: id, Name: name, PublicKey: publicKey}, nil
}

// Delete deletes the SSH key with the given id.
func (s *SSHKeysService) Delete(ctx context.Context, id string) error {
	return discardResponse(s.client.Delete(ctx, sshKeysEndpoint+"/"+url.PathEscape(id)))
}

// DeleteMany deletes several SSH keys in one request.
func (s *SSHKeysService) DeleteMany(ctx context.Context, ids []string) error {
	return discardResponse(s.client.Delete(ctx, sshKeysEndpoint,
		WithJSONBody(map[string][]string{"keys": ids})))
}
