package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cyberres/core"
	"cyberres/detect"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed schema/policies.schema.json
var policiesSchema []byte

var validate = validator.New()

// AllPolicies selects every policy of the catalog
const AllPolicies = "all"

// Catalog holds policies in declaration order. It is read-only after load.
type Catalog struct {
	policies []core.Policy
	index    map[string]int
}

// NewCatalog builds a catalog from already validated policies
func NewCatalog(policies []core.Policy) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(policies))}
	for _, p := range policies {
		if _, dup := c.index[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate policy %q", core.ErrInvalidConfig, p.Name)
		}
		c.index[p.Name] = len(c.policies)
		c.policies = append(c.policies, p)
	}
	return c, nil
}

// Names returns policy names in declaration order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.policies))
	for i, p := range c.policies {
		names[i] = p.Name
	}
	return names
}

// Policies returns every policy in declaration order
func (c *Catalog) Policies() []core.Policy {
	return append([]core.Policy(nil), c.policies...)
}

// Get looks a policy up by name
func (c *Catalog) Get(name string) (core.Policy, bool) {
	i, ok := c.index[name]
	if !ok {
		return core.Policy{}, false
	}
	return c.policies[i], true
}

// Select resolves a list of requested names. An empty list or "all" selects
// everything. Unknown names are logged and skipped; when nothing is left the
// selection is a configuration error.
func (c *Catalog) Select(names []string, logger *zap.SugaredLogger) ([]core.Policy, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var requested []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.EqualFold(n, AllPolicies) {
			return c.Policies(), nil
		}
		requested = append(requested, n)
	}
	if len(requested) == 0 {
		return c.Policies(), nil
	}

	seen := make(map[string]struct{}, len(requested))
	var selected []core.Policy
	for _, n := range requested {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		p, ok := c.Get(n)
		if !ok {
			logger.Warnw("Unknown policy ignored", "policy", n, "available", c.Names())
			continue
		}
		selected = append(selected, p)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: none of the requested policies %v exist (available: %s)",
			core.ErrInvalidConfig, requested, strings.Join(c.Names(), ", "))
	}
	return selected, nil
}

// LoadCatalog loads and validates a policy catalog file
func LoadCatalog(filename string, logger *zap.SugaredLogger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file: %w", err)
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy catalog %s: %w", filename, err)
	}

	logger.Infow("Loaded policy catalog", "path", filename, "policies", strings.Join(catalog.Names(), ", "))
	return catalog, nil
}

// ParseCatalog decodes a policy catalog document, keeping declaration order
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse policies: %v", core.ErrInvalidConfig, err)
	}
	if err := detect.ValidateAgainstSchema(policiesSchema, doc); err != nil {
		return nil, fmt.Errorf("%w: policies %w", core.ErrInvalidConfig, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: failed to parse policies: %v", core.ErrInvalidConfig, err)
	}
	section := mappingValue(&root, "policies")
	if section == nil || section.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: policies must be a mapping of name to policy", core.ErrInvalidConfig)
	}

	var (
		policies []core.Policy
		errs     []error
	)
	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i].Value
		var p core.Policy
		if err := section.Content[i+1].Decode(&p); err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", name, err))
			continue
		}
		p.Name = name
		if err := validate.Struct(&p); err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", name, err))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		policies = append(policies, p)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return NewCatalog(policies)
}

// mappingValue returns the value node of key in the document's top-level mapping
func mappingValue(root *yaml.Node, key string) *yaml.Node {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
