// Package rootsmanifest loads the optional JSON sidecar (C11) that lists
// roots and ignore-glob patterns, validating it against an embedded JSON
// Schema before handing the result back to be unioned with positional CLI
// roots.
package rootsmanifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResourceName = "discdiff-roots-manifest.schema.json"

const schemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"roots": {
			"type": "array",
			"items": { "type": "string", "minLength": 1 }
		},
		"ignore": {
			"type": "array",
			"items": { "type": "string", "minLength": 1 }
		}
	},
	"required": ["roots"],
	"additionalProperties": false
}`

var compiledSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceName, bytes.NewReader([]byte(schemaJSON))); err != nil {
		panic(fmt.Sprintf("rootsmanifest: embedded schema is invalid: %v", err))
	}
	s, err := compiler.Compile(schemaResourceName)
	if err != nil {
		panic(fmt.Sprintf("rootsmanifest: embedded schema failed to compile: %v", err))
	}
	compiledSchema = s
}

// rawManifest mirrors the on-disk JSON shape before glob compilation.
type rawManifest struct {
	Roots  []string `json:"roots"`
	Ignore []string `json:"ignore"`
}

// Manifest is a validated, parsed roots manifest.
type Manifest struct {
	Roots  []string
	Ignore []glob.Glob
}

// Load reads and validates path against the embedded schema, then compiles
// its ignore patterns. Any validation or parse failure is meant to be
// treated as a fatal startup error by the caller.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("rootsmanifest: read %s: %w", path, err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return Manifest{}, fmt.Errorf("rootsmanifest: parse %s: %w", path, err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return Manifest{}, fmt.Errorf("rootsmanifest: %s failed schema validation: %w", path, err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("rootsmanifest: decode %s: %w", path, err)
	}

	m := Manifest{Roots: raw.Roots}
	for _, pattern := range raw.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return Manifest{}, fmt.Errorf("rootsmanifest: %s: invalid ignore pattern %q: %w", path, pattern, err)
		}
		m.Ignore = append(m.Ignore, g)
	}
	return m, nil
}

// MatchIgnore reports whether path matches any of the manifest's ignore
// patterns.
func (m Manifest) MatchIgnore(path string) bool {
	for _, g := range m.Ignore {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// UnionRoots merges the manifest's roots with positional CLI roots,
// de-duplicating while preserving first-seen order.
func UnionRoots(manifestRoots, cliRoots []string) []string {
	seen := make(map[string]bool, len(manifestRoots)+len(cliRoots))
	var out []string
	for _, r := range append(append([]string{}, manifestRoots...), cliRoots...) {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
