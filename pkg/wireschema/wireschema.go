// Package wireschema generates JSON Schema documents for the wire
// protocol's three components (header, auth, body), so a schema version
// can be logged alongside every request and keelctl can dump the schema
// for editor/validation tooling. Grounded on the teacher's
// cmd/dfs/commands/config/schema.go, which reflects its own config
// struct the same way.
package wireschema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/keelfs/keeld/internal/wire"
)

// Version identifies the schema shape this build emits; bump it whenever
// a wire.Header/Auth/*Body field is added, removed, or retyped.
const Version = "1.0.0"

// Component names the wire components a schema can be requested for.
type Component string

const (
	ComponentHeader         Component = "header"
	ComponentAuth           Component = "auth"
	ComponentFileBody       Component = "file_body"
	ComponentPermissionBody Component = "permission_body"
	ComponentInfoBody       Component = "info_body"
	ComponentAuthBody       Component = "auth_body"
)

// All lists every component Generate accepts, in the order a full dump
// presents them.
var All = []Component{
	ComponentHeader,
	ComponentAuth,
	ComponentFileBody,
	ComponentPermissionBody,
	ComponentInfoBody,
	ComponentAuthBody,
}

func sampleFor(c Component) (any, string) {
	switch c {
	case ComponentHeader:
		return &wire.Header{}, "Request/response header"
	case ComponentAuth:
		return &wire.Auth{}, "Authentication/authorization component"
	case ComponentFileBody:
		return &wire.FileBody{}, "FILE_OP body"
	case ComponentPermissionBody:
		return &wire.PermissionBody{}, "PERMISSION body"
	case ComponentInfoBody:
		return &wire.InfoBody{}, "INFO body"
	case ComponentAuthBody:
		return &wire.AuthBody{}, "AUTH body (CHANGE_PASSWORD/DELETE fields)"
	default:
		return nil, ""
	}
}

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
}

// Generate reflects the JSON Schema for a single wire component.
func Generate(c Component) (*jsonschema.Schema, error) {
	sample, description := sampleFor(c)
	if sample == nil {
		return nil, fmt.Errorf("wireschema: unknown component %q", c)
	}
	schema := reflector().Reflect(sample)
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = fmt.Sprintf("keeld wire protocol: %s", c)
	schema.Description = description
	return schema, nil
}

// Bundle is the full-dump shape keelctl's --dump-schema writes: every
// component's schema keyed by name, stamped with the protocol and
// schema versions so a consumer can tell two dumps apart.
type Bundle struct {
	SchemaVersion   string                           `json:"schema_version"`
	ProtocolVersion string                           `json:"protocol_version"`
	Components      map[Component]*jsonschema.Schema `json:"components"`
}

// GenerateAll reflects every component in All into a single Bundle.
func GenerateAll() (*Bundle, error) {
	b := &Bundle{
		SchemaVersion:   Version,
		ProtocolVersion: wire.ProtocolVersion,
		Components:      make(map[Component]*jsonschema.Schema, len(All)),
	}
	for _, c := range All {
		schema, err := Generate(c)
		if err != nil {
			return nil, err
		}
		b.Components[c] = schema
	}
	return b, nil
}

// MarshalIndent renders b as indented JSON, matching the teacher's
// `schema.Version`/`json.MarshalIndent("", "  ")` config-schema output.
func (b *Bundle) MarshalIndent() ([]byte, error) {
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wireschema: marshal bundle: %w", err)
	}
	return out, nil
}
