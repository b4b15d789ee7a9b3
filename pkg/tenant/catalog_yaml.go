package tenant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// tierTableSchema constrains a tier table file before it is trusted to
// feed ChangePlan's limit checks: an operator typo that drops a plan's
// limits entirely must fail to load rather than silently admit
// unlimited usage. Grounded on this codebase's pkg/firewall's
// compile-then-validate jsonschema.Compiler usage, adapted from
// per-tool-call params to a whole config document.
const tierTableSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tiers"],
  "properties": {
    "tiers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["plan", "schemaVersion", "limits"],
        "properties": {
          "plan": {"type": "string", "minLength": 1},
          "schemaVersion": {"type": "string", "minLength": 1},
          "limits": {
            "type": "object",
            "required": ["runsPerMonth", "repos", "members"],
            "properties": {
              "runsPerMonth": {"type": "integer"},
              "repos": {"type": "integer"},
              "members": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

type tierTableDoc struct {
	Tiers []struct {
		Plan          string `yaml:"plan"`
		SchemaVersion string `yaml:"schemaVersion"`
		Limits        struct {
			RunsPerMonth int64 `yaml:"runsPerMonth"`
			Repos        int64 `yaml:"repos"`
			Members      int64 `yaml:"members"`
		} `yaml:"limits"`
	} `yaml:"tiers"`
}

var tierTableValidator = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const resource = "corectl://tenant/tier-table.schema.json"
	if err := c.AddResource(resource, strings.NewReader(tierTableSchema)); err != nil {
		panic("tenant: invalid embedded tier table schema: " + err.Error())
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		panic("tenant: tier table schema failed to compile: " + err.Error())
	}
	return compiled
}()

// LoadTierTableYAML parses a tier table document (YAML, though JSON is
// valid YAML too), validates its shape against tierTableSchema, and
// builds a StaticCatalog from the result. Rejecting malformed tier
// tables at load time keeps ChangePlan from ever evaluating a usage
// check against a catalog missing a limit field.
func LoadTierTableYAML(data []byte) (*StaticCatalog, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("tenant: parse tier table yaml: %w", err)
	}
	// jsonschema validates against JSON's type set (float64 numbers, plain
	// maps); round-tripping through encoding/json normalizes yaml.v3's
	// richer decoded types (int, map[string]any with non-string-safe
	// values) to match.
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("tenant: normalize tier table for validation: %w", err)
	}
	var asJSON any
	if err := json.Unmarshal(normalized, &asJSON); err != nil {
		return nil, fmt.Errorf("tenant: normalize tier table for validation: %w", err)
	}
	if err := tierTableValidator.Validate(asJSON); err != nil {
		return nil, fmt.Errorf("tenant: tier table failed schema validation: %w", err)
	}

	var doc tierTableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tenant: decode tier table yaml: %w", err)
	}

	tiers := make([]Tier, 0, len(doc.Tiers))
	for _, raw := range doc.Tiers {
		version, err := parseVersion(raw.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("tenant: tier %q: %w", raw.Plan, err)
		}
		tiers = append(tiers, Tier{
			Plan:          raw.Plan,
			SchemaVersion: version,
			Limits: Limits{
				RunsPerMonth: raw.Limits.RunsPerMonth,
				Repos:        raw.Limits.Repos,
				Members:      raw.Limits.Members,
			},
		})
	}
	return NewStaticCatalog(tiers...), nil
}

func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("invalid schemaVersion %q: %w", v, err)
	}
	return parsed, nil
}
