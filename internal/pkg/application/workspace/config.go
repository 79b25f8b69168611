package workspace

import (
	"fmt"
	"io"

	"github.com/diwise/context-model/pkg/model/entities"
	"github.com/diwise/context-model/pkg/model/types"
	"github.com/diwise/context-model/pkg/model/types/classes"
	"github.com/diwise/context-model/pkg/model/types/features"
	yaml "gopkg.in/yaml.v2"
)

type FeatureConfig struct {
	Name string `yaml:"name" json:"name"`
	// Kind is one of attribute, reference or containment
	Kind string `yaml:"kind" json:"kind"`
	Many bool   `yaml:"many" json:"many"`
}

func (fc FeatureConfig) Feature() (types.Feature, error) {
	if fc.Name == "" {
		return nil, fmt.Errorf("feature without a name")
	}

	decorators := []features.FeatureDecoratorFunc{}
	if fc.Many {
		decorators = append(decorators, features.Many())
	}

	switch fc.Kind {
	case "", "attribute":
		return features.NewAttribute(fc.Name, decorators...), nil
	case "reference":
		return features.NewReference(fc.Name, decorators...), nil
	case "containment":
		return features.NewContainment(fc.Name, decorators...), nil
	}

	return nil, fmt.Errorf("unsupported kind %q for feature %s", fc.Kind, fc.Name)
}

type ClassConfig struct {
	Name string `yaml:"name"`
	// Layout is one of minimal, container, dynamic, permissive or fixed
	Layout   string          `yaml:"layout"`
	Features []FeatureConfig `yaml:"features"`
}

func (cc ClassConfig) Class() (*classes.ClassImpl, error) {
	decorators := []classes.ClassDecoratorFunc{}

	for _, fc := range cc.Features {
		f, err := fc.Feature()
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", cc.Name, err)
		}
		decorators = append(decorators, classes.F(f))
	}

	return classes.New(cc.Name, decorators...), nil
}

// Decorators returns the entity layout selected for instances of the class.
// Classes of a workspace can change their features at runtime, so every
// layout with dynamic settings follows those changes.
func (cc ClassConfig) Decorators() ([]entities.EntityDecoratorFunc, error) {
	var layout []entities.EntityDecoratorFunc

	switch cc.Layout {
	case "", "minimal":
	case "container":
		layout = append(layout, entities.WithOwnerField())
	case "dynamic", "permissive":
		layout = append(layout, entities.WithOwnerField(), entities.WithDynamicFields())
	case "fixed":
		return []entities.EntityDecoratorFunc{entities.Fixed()}, nil
	default:
		return nil, fmt.Errorf("unsupported layout %q for class %s", cc.Layout, cc.Name)
	}

	return append(layout, entities.Permissive()), nil
}

type NotifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	URI      string         `yaml:"uri"`
	Notifier NotifierConfig `yaml:"notifier"`
	Classes  []ClassConfig  `yaml:"classes"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.URI == "" {
		cfg.URI = DefaultURI
	}

	return cfg, nil
}

const DefaultURI string = "urn:diwise:workspace:default"
