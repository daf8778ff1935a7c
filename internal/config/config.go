package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fieldline/schedule/daterule"
)

// Config models fieldline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"project"`
	Vocabulary struct {
		Groups []VocabGroup `yaml:"groups"`
	} `yaml:"vocabulary"`
	Roles struct {
		Known []string `yaml:"known"`
	} `yaml:"roles"`
}

// VocabGroup is one keyword group of the date-rule vocabulary override.
type VocabGroup struct {
	Keywords []string    `yaml:"keywords"`
	Rules    []VocabRule `yaml:"rules"`
}

// VocabRule binds a modifier phrase to an anchor and a computation. An
// empty modifier matches any rule text the group keyword already
// matched.
type VocabRule struct {
	Modifier string `yaml:"modifier"`
	Anchor   string `yaml:"anchor"`
	Compute  string `yaml:"compute"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with fl project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	for i, g := range c.Vocabulary.Groups {
		if len(g.Keywords) == 0 {
			return fmt.Errorf("vocabulary group %d has no keywords", i)
		}
		for _, k := range g.Keywords {
			if k == "" {
				return fmt.Errorf("vocabulary group %d has an empty keyword", i)
			}
		}
		if len(g.Rules) == 0 {
			return fmt.Errorf("vocabulary group %d has no rules", i)
		}
		for j, r := range g.Rules {
			if !daterule.KnownAnchor(daterule.Anchor(r.Anchor)) {
				return fmt.Errorf("vocabulary group %d rule %d references unknown anchor %s", i, j, r.Anchor)
			}
			if !daterule.KnownCompute(daterule.Compute(r.Compute)) {
				return fmt.Errorf("vocabulary group %d rule %d references unknown compute %s", i, j, r.Compute)
			}
		}
	}
	for _, role := range c.Roles.Known {
		if role == "" {
			return fmt.Errorf("config.roles.known contains an empty role name")
		}
	}
	return nil
}

// RuleVocabulary converts the override groups into a resolver
// vocabulary. With no override configured the built-in table is
// returned.
func (c *Config) RuleVocabulary() daterule.Vocabulary {
	if len(c.Vocabulary.Groups) == 0 {
		return daterule.DefaultVocabulary()
	}
	vocab := make(daterule.Vocabulary, 0, len(c.Vocabulary.Groups))
	for _, g := range c.Vocabulary.Groups {
		group := daterule.Group{Keywords: g.Keywords}
		for _, r := range g.Rules {
			group.Rules = append(group.Rules, daterule.Rule{
				Modifier: r.Modifier,
				Anchor:   daterule.Anchor(r.Anchor),
				Compute:  daterule.Compute(r.Compute),
			})
		}
		vocab = append(vocab, group)
	}
	return vocab
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID, projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectID, projectName)
}

// Default returns the default Config struct for a project.
func Default(projectID, projectName string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.Name = projectName
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(projectID, projectName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  name: "%s"

roles:
  known:
    - AE Manager
    - Logistics
    - Analyst
    - Moderator
    - Client Lead

# Date-rule vocabulary. Groups are tried in order; within a group the
# first rule whose modifier appears in the rule text wins. A rule with
# no modifier matches whenever the group keyword does.
vocabulary:
  groups:
    - keywords: ["ko date"]
      rules:
        - { modifier: "1 day before", anchor: ko_date, compute: prev_business_day }
        - { modifier: "1 day after", anchor: ko_date, compute: next_business_day }
        - { modifier: "first day of", anchor: ko_date, compute: anchor }
        - { modifier: "final", anchor: ko_date, compute: anchor }

    - keywords: ["fieldwork start", "first day of fieldwork"]
      rules:
        - { modifier: "1 day before", anchor: fieldwork_start, compute: prev_business_day }
        - { modifier: "1 day after", anchor: fieldwork_start, compute: next_business_day }
        - { modifier: "first day of", anchor: fieldwork_start, compute: anchor }

    - keywords: ["fieldwork ends", "last day of field"]
      rules:
        - { modifier: "1 day after", anchor: fieldwork_end, compute: next_business_day }
        - { modifier: "1 day before", anchor: fieldwork_end, compute: prev_business_day }
        - { modifier: "last day of", anchor: fieldwork_end, compute: anchor }

    - keywords: ["pre-field"]
      rules:
        - { modifier: "first day of", anchor: fieldwork_start, compute: minus_7_days }

    - keywords: ["1 week prior to fieldwork start"]
      rules:
        - { anchor: fieldwork_start, compute: minus_7_days }

    - keywords: ["first day of field"]
      rules:
        - { anchor: fieldwork_start, compute: anchor }

    - keywords: ["post-field"]
      rules:
        - { modifier: "first day of", anchor: fieldwork_end, compute: next_business_day }

    - keywords: ["report due date", "report due"]
      rules:
        - { modifier: "1 day before", anchor: report_due, compute: prev_business_day }
        - { modifier: "final", anchor: report_due, compute: anchor }
        - { anchor: report_due, compute: anchor }
`
