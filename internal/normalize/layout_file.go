package normalize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed layout.schema.json
var layoutSchema []byte

// layoutFile is the on-disk shape of a layout override.
//
//	aliases:
//	  description: ["备注"]
//	split_date: ["入账日期"]
type layoutFile struct {
	Aliases   map[string][]string `yaml:"aliases"`
	SplitDate []string            `yaml:"split_date"`
}

// LoadLayoutFile reads a YAML override and returns the default layout
// extended with it.
func LoadLayoutFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout file: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout validates a YAML override against the layout schema and merges
// it into the default layout.
func ParseLayout(data []byte) (*Layout, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse layout yaml: %w", err)
	}
	if generic == nil {
		return DefaultLayout(), nil
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("layout is not representable as json: %w", err)
	}
	if err := validateLayout(asJSON); err != nil {
		return nil, err
	}

	var lf layoutFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	extra := make(map[Field][]string, len(lf.Aliases))
	for name, aliases := range lf.Aliases {
		if !knownField(name) {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		extra[Field(name)] = aliases
	}
	l := DefaultLayout()
	l.Extend(extra, lf.SplitDate)
	return l, nil
}

func validateLayout(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("layout.schema.json", bytes.NewReader(layoutSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("layout.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal layout: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("layout does not match schema: %w", err)
	}
	return nil
}
