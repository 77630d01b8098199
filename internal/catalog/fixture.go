package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFixture wraps every fixture validation failure.
var ErrInvalidFixture = errors.New("catalog: invalid fixture")

// Fixture models the YAML seed file: communities own collections, images, products
// and answers; collections own resources.
type Fixture struct {
	Communities []CommunityFixture `yaml:"communities"`
}

// CommunityFixture describes one community and everything posted into it.
type CommunityFixture struct {
	ID          int64               `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	CreatedAt   int64               `yaml:"created_at_s"`
	Collections []CollectionFixture `yaml:"collections,omitempty"`
	Images      []ImageFixture      `yaml:"images,omitempty"`
	Products    []ProductFixture    `yaml:"products,omitempty"`
	Answers     []AnswerFixture     `yaml:"answers,omitempty"`
}

// CollectionFixture describes a collection and its resources.
type CollectionFixture struct {
	ID         int64             `yaml:"id"`
	Name       string            `yaml:"name"`
	PreviewRef string            `yaml:"preview_ref,omitempty"`
	CreatedAt  int64             `yaml:"created_at_s"`
	Resources  []ResourceFixture `yaml:"resources,omitempty"`
}

// ResourceFixture describes a link in a collection.
type ResourceFixture struct {
	ID        int64  `yaml:"id"`
	Title     string `yaml:"title"`
	URL       string `yaml:"url"`
	Remark    string `yaml:"remark,omitempty"`
	CreatedAt int64  `yaml:"created_at_s"`
}

// ImageFixture describes a gallery image.
type ImageFixture struct {
	ID        int64  `yaml:"id"`
	MediaRef  string `yaml:"media_ref"`
	CreatedAt int64  `yaml:"created_at_s"`
}

// ProductFixture describes a recommended product.
type ProductFixture struct {
	ID        int64  `yaml:"id"`
	Title     string `yaml:"title"`
	URL       string `yaml:"url"`
	Catalogue string `yaml:"catalogue,omitempty"`
	CreatedAt int64  `yaml:"created_at_s"`
}

// AnswerFixture describes an answer to a community question.
type AnswerFixture struct {
	ID         int64  `yaml:"id"`
	QuestionID int64  `yaml:"question_id"`
	Content    string `yaml:"content"`
	CreatedAt  int64  `yaml:"created_at_s"`
}

// LoadFile reads and validates a fixture from disk.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	fixture, err := Parse(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("%w (%s)", err, path)
	}
	return fixture, nil
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("catalog: parse: %w", err)
	}
	if err := fixture.validate(); err != nil {
		return Fixture{}, err
	}
	return fixture, nil
}

type idSet map[int64]struct{}

func (s idSet) claim(kind string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s id must be positive, got %d", ErrInvalidFixture, kind, id)
	}
	if _, taken := s[id]; taken {
		return fmt.Errorf("%w: duplicate %s id %d", ErrInvalidFixture, kind, id)
	}
	s[id] = struct{}{}
	return nil
}

func (f Fixture) validate() error {
	seen := map[string]idSet{
		"community":  {},
		"collection": {},
		"resource":   {},
		"image":      {},
		"product":    {},
		"answer":     {},
	}
	for _, community := range f.Communities {
		if err := seen["community"].claim("community", community.ID); err != nil {
			return err
		}
		if err := requireText("community name", community.Name); err != nil {
			return err
		}
		for _, collection := range community.Collections {
			if err := seen["collection"].claim("collection", collection.ID); err != nil {
				return err
			}
			if err := requireText("collection name", collection.Name); err != nil {
				return err
			}
			for _, resource := range collection.Resources {
				if err := seen["resource"].claim("resource", resource.ID); err != nil {
					return err
				}
				if err := requireText("resource title", resource.Title); err != nil {
					return err
				}
				if err := requireWebURL(resource.URL); err != nil {
					return err
				}
			}
		}
		for _, image := range community.Images {
			if err := seen["image"].claim("image", image.ID); err != nil {
				return err
			}
			if err := requireText("image media_ref", image.MediaRef); err != nil {
				return err
			}
		}
		for _, product := range community.Products {
			if err := seen["product"].claim("product", product.ID); err != nil {
				return err
			}
			if err := requireText("product title", product.Title); err != nil {
				return err
			}
			if err := requireWebURL(product.URL); err != nil {
				return err
			}
		}
		for _, answer := range community.Answers {
			if err := seen["answer"].claim("answer", answer.ID); err != nil {
				return err
			}
			if answer.QuestionID <= 0 {
				return fmt.Errorf("%w: answer %d needs a question_id", ErrInvalidFixture, answer.ID)
			}
			if err := requireText("answer content", answer.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidFixture, field)
	}
	return nil
}

func requireWebURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidFixture, raw)
	}
	return nil
}
