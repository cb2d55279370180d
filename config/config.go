// Package config loads process configuration for the dynalocal server.
// Loaded from dynalocal.yaml if present; every field has a usable default
// and the DYNALOCAL_LISTEN / DYNALOCAL_LOG_LEVEL environment variables
// override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// Region is the region name used in table ARNs.
	Region string `yaml:"region"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// Tables are created at startup, so clients can rely on a known
	// schema without issuing CreateTable themselves.
	Tables []Table `yaml:"tables"`
}

// Table describes one bootstrap table.
type Table struct {
	Name       string      `yaml:"name"`
	Attributes []Attribute `yaml:"attributes"`
	HashKey    string      `yaml:"hashKey"`
	RangeKey   string      `yaml:"rangeKey"`

	GlobalIndexes []Index `yaml:"globalIndexes"`
	LocalIndexes  []Index `yaml:"localIndexes"`
}

// Attribute declares a key attribute and its scalar type (S, N or B).
type Attribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type Index struct {
	Name     string `yaml:"name"`
	HashKey  string `yaml:"hashKey"`
	RangeKey string `yaml:"rangeKey"`

	// Projection is ALL, KEYS_ONLY or INCLUDE. Defaults to ALL.
	Projection       string   `yaml:"projection"`
	NonKeyAttributes []string `yaml:"nonKeyAttributes"`
}

func defaults() Config {
	return Config{
		Listen:   ":8000",
		Region:   "ddblocal",
		LogLevel: "info",
	}
}

// Load reads the config from path. An empty path falls back to discovery,
// and a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = Find()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	if v := os.Getenv("DYNALOCAL_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DYNALOCAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Find searches for dynalocal.yaml walking up from the current directory.
func Find() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "dynalocal.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c Config) validate() error {
	if c.Region == "" {
		return fmt.Errorf("region must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("bootstrap table without a name")
		}
		if t.HashKey == "" {
			return fmt.Errorf("table %s: hashKey is required", t.Name)
		}
	}
	return nil
}

// CreateTableInputs renders the bootstrap tables as CreateTable requests.
func (c Config) CreateTableInputs() []*dynamodb.CreateTableInput {
	inputs := make([]*dynamodb.CreateTableInput, 0, len(c.Tables))
	for _, t := range c.Tables {
		input := &dynamodb.CreateTableInput{
			TableName: aws.String(t.Name),
			KeySchema: keySchema(t.HashKey, t.RangeKey),
		}
		for _, a := range t.Attributes {
			input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
				AttributeName: aws.String(a.Name),
				AttributeType: types.ScalarAttributeType(a.Type),
			})
		}
		for _, idx := range t.GlobalIndexes {
			input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  keySchema(idx.HashKey, idx.RangeKey),
				Projection: projection(idx),
			})
		}
		for _, idx := range t.LocalIndexes {
			input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  keySchema(idx.HashKey, idx.RangeKey),
				Projection: projection(idx),
			})
		}
		inputs = append(inputs, input)
	}
	return inputs
}

func keySchema(hashKey, rangeKey string) []types.KeySchemaElement {
	schema := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if rangeKey != "" {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(rangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}
	return schema
}

func projection(idx Index) *types.Projection {
	p := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	if idx.Projection != "" {
		p.ProjectionType = types.ProjectionType(idx.Projection)
	}
	if len(idx.NonKeyAttributes) > 0 {
		p.NonKeyAttributes = idx.NonKeyAttributes
	}
	return p
}
