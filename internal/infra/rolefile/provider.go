// Package rolefile loads the role hierarchy from a YAML file.
//
//	roles:
//	  - name: owner
//	    level: 99999
//	    permissions: [activate_users, deactivate_users, change_user_roles, delete_users, manage_system]
//	  - name: admin
//	    level: 9000
//	    permissions: [activate_users, deactivate_users]
package rolefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openlearn/admin-api/pkg/domain/role"
)

type document struct {
	Roles []role.Definition `yaml:"roles"`
}

// Provider reads role definitions from a file on every fetch, so edits
// are picked up by the next reload.
type Provider struct {
	path string
}

// NewProvider creates a provider for the file at path.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// FetchRoles implements role.Provider.
func (p *Provider) FetchRoles(ctx context.Context) ([]role.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", role.ErrFetchFailed, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return defs, nil
}

// Parse decodes a role document. Unknown keys are rejected.
func Parse(data []byte) ([]role.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, role.ErrEmptyHierarchy
		}
		return nil, fmt.Errorf("%w: parse roles: %v", role.ErrFetchFailed, err)
	}
	if len(doc.Roles) == 0 {
		return nil, role.ErrEmptyHierarchy
	}
	return doc.Roles, nil
}
