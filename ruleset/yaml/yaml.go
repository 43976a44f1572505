// Package yaml is a fluxgate.RuleSetProvider that loads rule-sets from
// YAML files on disk, for embedded deployments without a shared control
// database (a supplemented feature: the distributed store still holds
// token-bucket state, only rule-set authoring moves to static files).
package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxgate/fluxgate"
)

// bandDoc is the on-disk shape of a band; Window accepts any
// time.ParseDuration string ("30s", "1m", "24h").
type bandDoc struct {
	Window   string `yaml:"window"`
	Capacity int64  `yaml:"capacity"`
	Label    string `yaml:"label"`
}

type ruleDoc struct {
	Id                  string         `yaml:"id"`
	Name                string         `yaml:"name"`
	Enabled             *bool          `yaml:"enabled"`
	Scope               string         `yaml:"scope"`
	KeyStrategyId       string         `yaml:"keyStrategyId"`
	OnLimitExceedPolicy string         `yaml:"onLimitExceedPolicy"`
	Bands               []bandDoc      `yaml:"bands"`
	Attributes          map[string]any `yaml:"attributes"`
}

type ruleSetDoc struct {
	Id              string    `yaml:"id"`
	KeyResolverName string    `yaml:"keyResolverName"`
	Rules           []ruleDoc `yaml:"rules"`
}

// Provider serves rule-sets parsed from YAML files under a directory,
// one file per rule-set, keyed by the rule-set's own Id field (not the
// filename).
type Provider struct {
	dir string

	mu       sync.RWMutex
	ruleSets map[string]fluxgate.RuleSet
}

// New loads every *.yaml/*.yml file under dir and returns a Provider.
// Call Reload to re-read the directory after a FileWatch event.
func New(dir string) (*Provider, error) {
	p := &Provider{dir: dir}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads every rule-set file under the configured directory,
// replacing the in-memory set atomically. Call this from a
// reload.FileWatch sink (or directly from a reload.ReloadSink adapter).
func (p *Provider) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("fluxgate/ruleset/yaml: read dir %q: %w", p.dir, err)
	}

	loaded := make(map[string]fluxgate.RuleSet)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		rs, err := loadFile(path)
		if err != nil {
			return fmt.Errorf("fluxgate/ruleset/yaml: %s: %w", path, err)
		}
		loaded[rs.Id] = rs
	}

	p.mu.Lock()
	p.ruleSets = loaded
	p.mu.Unlock()
	return nil
}

func loadFile(path string) (fluxgate.RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fluxgate.RuleSet{}, err
	}
	var doc ruleSetDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fluxgate.RuleSet{}, err
	}
	return buildRuleSet(doc)
}

func buildRuleSet(doc ruleSetDoc) (fluxgate.RuleSet, error) {
	rs := fluxgate.RuleSet{
		Id:              doc.Id,
		KeyResolverName: doc.KeyResolverName,
		Rules:           make([]fluxgate.Rule, 0, len(doc.Rules)),
	}
	for _, rd := range doc.Rules {
		builder := fluxgate.NewRule(rd.Id).
			Name(rd.Name).
			Scope(fluxgate.Scope(rd.Scope)).
			KeyStrategyId(rd.KeyStrategyId).
			RuleSetId(doc.Id)
		if rd.OnLimitExceedPolicy != "" {
			builder = builder.OnLimitExceed(fluxgate.OnLimitExceedPolicy(rd.OnLimitExceedPolicy))
		}
		if rd.Enabled != nil {
			builder = builder.Enabled(*rd.Enabled)
		}
		for key, value := range rd.Attributes {
			builder = builder.Attribute(key, value)
		}
		for _, bd := range rd.Bands {
			window, err := time.ParseDuration(bd.Window)
			if err != nil {
				return fluxgate.RuleSet{}, fmt.Errorf("rule %q: band window %q: %w", rd.Id, bd.Window, err)
			}
			band, err := fluxgate.NewBand(window, bd.Capacity, bd.Label)
			if err != nil {
				return fluxgate.RuleSet{}, fmt.Errorf("rule %q: %w", rd.Id, err)
			}
			builder = builder.AddBand(band)
		}
		rule, err := builder.Build()
		if err != nil {
			return fluxgate.RuleSet{}, err
		}
		rs.Rules = append(rs.Rules, rule)
	}
	if err := rs.Validate(); err != nil {
		return fluxgate.RuleSet{}, err
	}
	return rs, nil
}

// FindById implements fluxgate.RuleSetProvider.
func (p *Provider) FindById(_ context.Context, ruleSetId string) (*fluxgate.RuleSet, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rs, ok := p.ruleSets[ruleSetId]
	if !ok {
		return nil, false, nil
	}
	return &rs, true, nil
}

// HandleReloadEvent implements fluxgate.ReloadSink by re-reading the
// directory, matching the teacher pack's fsnotify-driven config reload.
func (p *Provider) HandleReloadEvent(fluxgate.ReloadEvent) {
	_ = p.Reload()
}

var _ fluxgate.ReloadSink = (*Provider)(nil)
