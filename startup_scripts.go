package verda

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-openapi/validate"
)

const startupScriptsEndpoint = "/scripts"

// StartupScript is a script run on first boot of an instance created with
// its id as CreateInstanceRequest.StartupScriptID.
type StartupScript struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Script string `json:"script"`
}

// StartupScriptsService manages startup scripts.
type StartupScriptsService struct {
	client *HTTPClient
}

// List returns all startup scripts.
func (s *StartupScriptsService) List(ctx context.Context) ([]StartupScript, error) {
	resp, err := s.client.Get(ctx, startupScriptsEndpoint)
	if err != nil {
		return nil, err
	}
	var scripts []StartupScript
	if err := decodeResponse(resp, &scripts); err != nil {
		return nil, err
	}
	return scripts, nil
}

// Get returns the startup script with the given id.
func (s *StartupScriptsService) Get(ctx context.Context, id string) (*StartupScript, error) {
	resp, err := s.client.Get(ctx, startupScriptsEndpoint+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var scripts []StartupScript
	if err := decodeResponse(resp, &scripts); err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("startup script %s: empty response", id)
	}
	return &scripts[0], nil
}

// Create stores a startup script and returns it with its new id.
func (s *StartupScriptsService) Create(ctx context.Context, name, script string) (*StartupScript, error) {
	if err := validate.RequiredString("name", "body", name); err != nil {
		return nil, err
	}
	if err := validate.RequiredString("script", "body", script); err != nil {
		return nil, err
	}

	resp, err := s.client.Post(ctx, startupScriptsEndpoint, WithJSONBody(map[string]string{
		"name":   name,
		"script": script,
	}))
	if err != nil {
		return nil, err
	}
	id, err := readText(resp)
	if err != nil {
		return nil, err
	}
	return &StartupScript{ID: id, Name: name, Script: script}, nil
}

// Delete deletes the startup script with the given id.
func (s *StartupScriptsService) Delete(ctx context.Context, id string) error {
	return discardResponse(s.client.Delete(ctx, startupScriptsEndpoint+"/"+url.PathEscape(id)))
}

// DeleteMany deletes several startup scripts in one request.
func (s *StartupScriptsService) DeleteMany(ctx context.Context, ids []string) error {
	return discardResponse(s.client.Delete(ctx, startupScriptsEndpoint,
		WithJSONBody(map[string][]string{"scripts": ids})))
}
