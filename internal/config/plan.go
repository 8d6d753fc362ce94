package config

import (
	"errors"
	"fmt"

	"github.com/AlfredBerg/scrapecrawl/internal/crawl"
	"github.com/AlfredBerg/scrapecrawl/internal/selector"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrEmptyPlan = errors.New("selector plan has no selector")

// Plan is the content of a plan file: the selector applied to the seeds and
// one selector per following depth.
type Plan struct {
	LinkField string              `yaml:"link_field"`
	Scope     string              `yaml:"scope"`
	Selector  selector.Selector   `yaml:"selector"`
	Queue     []selector.Selector `yaml:"queue"`
}

func LoadPlan(fs afero.Fs, path string) (*Plan, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}
	return ParsePlan(data)
}

func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(p.Selector) == 0 {
		return nil, ErrEmptyPlan
	}
	if p.LinkField == "" {
		p.LinkField = crawl.DefaultLinkField
	}
	return &p, nil
}

func (p *Plan) CrawlQueue() crawl.Queue {
	return crawl.NewQueue(p.Queue...)
}
