package detect

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cyberres/core"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed schema/rules.schema.json
var rulesSchema []byte

var validate = validator.New()

// ruleCatalog is the on-disk layout of the rule catalog
type ruleCatalog struct {
	Rules []core.Rule `yaml:"rules"`
}

// LoadRules loads and validates a rule catalog from a YAML or JSON file
func LoadRules(filename string, logger *zap.SugaredLogger) ([]core.Rule, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog %s: %w", filename, err)
	}

	enabled := 0
	for i := range rules {
		if rules[i].IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		logger.Warnw("Rule catalog has no enabled rules", "path", filename)
	}
	logger.Infow("Loaded rule catalog", "path", filename, "rules", len(rules), "enabled", enabled)
	return rules, nil
}

// ParseRules decodes a rule catalog document. Every problem in the catalog is
// reported at once.
func ParseRules(data []byte) ([]core.Rule, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rules: %v", core.ErrInvalidConfig, err)
	}
	if err := ValidateAgainstSchema(rulesSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: rules %w", core.ErrInvalidConfig, err)
	}

	var catalog ruleCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal rules: %v", core.ErrInvalidConfig, err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(catalog.Rules))
	for i := range catalog.Rules {
		rule := &catalog.Rules[i]
		if err := validate.Struct(rule); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[rule.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", rule.ID))
		}
		seen[rule.ID] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return catalog.Rules, nil
}

// ValidateAgainstSchema checks a decoded YAML document against a JSON schema
func ValidateAgainstSchema(schema []byte, doc interface{}) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
