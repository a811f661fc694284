// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package catalog holds the static reference data of the recommendation
// engine: the device catalog, curated personas, elimination rules, clinical
// boost rules and the answer-to-preference table.
//
// All of it is loaded once at startup and treated as read-only for the
// process lifetime. Engines receive a *Catalog as an injected dependency;
// nothing in this package is mutable after Load returns.
package catalog

import (
	"fmt"
	"regexp"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Device is one candidate insulin pump. Dimensions are free-form string
// attributes matched against stated preferences by the feature engine.
type Device struct {
	ID         string            `koanf:"id" json:"id"`
	Name       string            `koanf:"name" json:"name"`
	Dimensions map[string]string `koanf:"dimensions" json:"dimensions"`
	Pros       []string          `koanf:"pros" json:"pros"`
	Cons       []string          `koanf:"cons" json:"cons"`
}

// PersonaMatch is one curated (device, score) pairing inside a persona.
type PersonaMatch struct {
	DeviceID string   `koanf:"device_id" json:"deviceId"`
	Score    float64  `koanf:"score" json:"score"`
	Reasons  []string `koanf:"reasons" json:"reasons"`
}

// Persona is a curated patient archetype with a ranked device shortlist.
type Persona struct {
	ID          string         `koanf:"id" json:"id"`
	Name        string         `koanf:"name" json:"name"`
	Description string         `koanf:"description" json:"description"`
	Keywords    []string       `koanf:"keywords" json:"keywords"`
	Matches     []PersonaMatch `koanf:"matches" json:"matches"`
}

// EliminationRule removes devices outright when its trigger appears among a
// request's deal-breaker answers. Applied per request, never persisted.
type EliminationRule struct {
	Trigger             string   `koanf:"trigger" json:"trigger"`
	EliminatedDeviceIDs []string `koanf:"eliminated_device_ids" json:"eliminatedDeviceIds"`
	Reason              string   `koanf:"reason" json:"reason"`
}

// ClinicalRule adds a soft, additive boost to one device's score when the
// answered clinical factor matches. An empty Value matches any non-empty
// answer for the factor.
type ClinicalRule struct {
	Factor   string  `koanf:"factor" json:"factor"`
	Value    string  `koanf:"value" json:"value"`
	DeviceID string  `koanf:"device_id" json:"deviceId"`
	Boost    float64 `koanf:"boost" json:"boost"`
	Reason   string  `koanf:"reason" json:"reason"`
}

// Matches reports whether the rule's predicate holds for the answers.
func (r ClinicalRule) Matches(answers map[string]string) bool {
	got, ok := answers[r.Factor]
	if !ok || got == "" {
		return false
	}
	return r.Value == "" || r.Value == got
}

// Preference is one desired dimension value with a weight, produced by an
// answered question.
type Preference struct {
	Dimension string  `koanf:"dimension" json:"dimension"`
	Value     string  `koanf:"value" json:"value"`
	Weight    float64 `koanf:"weight" json:"weight"`
}

// KeywordBucket groups free-text terms that map onto a persona trait. The
// orchestrator scans user descriptions with these patterns before deciding
// between the persona and inference paths.
type KeywordBucket struct {
	Name  string   `koanf:"name" json:"name"`
	Terms []string `koanf:"terms" json:"terms"`

	pattern *regexp.Regexp
}

// Pattern returns the compiled case-insensitive alternation of the bucket's
// terms. Compiled once during Load.
func (b *KeywordBucket) Pattern() *regexp.Regexp {
	return b.pattern
}

// Catalog is the complete immutable reference data set.
type Catalog struct {
	Devices        []Device                           `koanf:"devices"`
	Personas       []Persona                          `koanf:"personas"`
	Eliminations   []EliminationRule                  `koanf:"eliminations"`
	ClinicalRules  []ClinicalRule                     `koanf:"clinical_rules"`
	Preferences    map[string]map[string][]Preference `koanf:"preferences"`
	KeywordBuckets []KeywordBucket                    `koanf:"keyword_buckets"`

	deviceIndex map[string]int
	elimIndex   map[string]*EliminationRule
}

// Load returns the built-in catalog, or the contents of a YAML catalog file
// when a path is given. A catalog file replaces the built-in data wholesale;
// it must be self-contained so that every cross-reference resolves.
func Load(path string) (*Catalog, error) {
	if path == "" {
		cat := defaultCatalog()
		if err := cat.finalize(); err != nil {
			return nil, err
		}
		return cat, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog file %q: %w", path, err)
	}
	cat := &Catalog{}
	if err := k.Unmarshal("", cat); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	if err := cat.finalize(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Default returns the built-in catalog with indexes built. It panics on an
// invalid built-in data set, which is a programming error.
func Default() *Catalog {
	cat := defaultCatalog()
	if err := cat.finalize(); err != nil {
		panic(fmt.Sprintf("built-in catalog invalid: %v", err))
	}
	return cat
}

// finalize validates the data set and builds lookup indexes and compiled
// keyword patterns.
func (c *Catalog) finalize() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("catalog has no devices")
	}

	c.deviceIndex = make(map[string]int, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %d has empty id", i)
		}
		if _, dup := c.deviceIndex[d.ID]; dup {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		c.deviceIndex[d.ID] = i
	}

	for _, p := range c.Personas {
		if len(p.Matches) == 0 {
			return fmt.Errorf("persona %q has no matches", p.ID)
		}
		for _, m := range p.Matches {
			if _, ok := c.deviceIndex[m.DeviceID]; !ok {
				return fmt.Errorf("persona %q references unknown device %q", p.ID, m.DeviceID)
			}
			if m.Score < 0 || m.Score > 100 {
				return fmt.Errorf("persona %q match %q score %f out of [0,100]", p.ID, m.DeviceID, m.Score)
			}
		}
	}

	c.elimIndex = make(map[string]*EliminationRule, len(c.Eliminations))
	for i := range c.Eliminations {
		r := &c.Eliminations[i]
		if r.Trigger == "" {
			return fmt.Errorf("elimination rule %d has empty trigger", i)
		}
		for _, id := range r.EliminatedDeviceIDs {
			if _, ok := c.deviceIndex[id]; !ok {
				return fmt.Errorf("elimination %q references unknown device %q", r.Trigger, id)
			}
		}
		c.elimIndex[r.Trigger] = r
	}

	for _, r := range c.ClinicalRules {
		if _, ok := c.deviceIndex[r.DeviceID]; !ok {
			return fmt.Errorf("clinical rule for factor %q references unknown device %q", r.Factor, r.DeviceID)
		}
	}

	for question, byAnswer := range c.Preferences {
		for answer, prefs := range byAnswer {
			for _, p := range prefs {
				if p.Weight <= 0 {
					return fmt.Errorf("preference %s=%s dimension %q has non-positive weight",
						question, answer, p.Dimension)
				}
			}
		}
	}

	for i := range c.KeywordBuckets {
		b := &c.KeywordBuckets[i]
		if len(b.Terms) == 0 {
			return fmt.Errorf("keyword bucket %q has no terms", b.Name)
		}
		expr := "(?i)(" + b.Terms[0]
		for _, t := range b.Terms[1:] {
			expr += "|" + t
		}
		expr += ")"
		pat, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("keyword bucket %q: %w", b.Name, err)
		}
		b.pattern = pat
	}

	return nil
}

// DeviceByID returns the device with the given id, or false.
func (c *Catalog) DeviceByID(id string) (Device, bool) {
	i, ok := c.deviceIndex[id]
	if !ok {
		return Device{}, false
	}
	return c.Devices[i], true
}

// DeviceOrder returns the catalog insertion position of a device id, used
// for deterministic tie-breaking. Unknown ids sort last.
func (c *Catalog) DeviceOrder(id string) int {
	if i, ok := c.deviceIndex[id]; ok {
		return i
	}
	return len(c.Devices)
}

// Elimination returns the rule for a deal-breaker trigger, or false.
func (c *Catalog) Elimination(trigger string) (*EliminationRule, bool) {
	r, ok := c.elimIndex[trigger]
	return r, ok
}

// PersonaByID returns the persona with the given id, or false.
func (c *Catalog) PersonaByID(id string) (*Persona, bool) {
	for i := range c.Personas {
		if c.Personas[i].ID == id {
			return &c.Personas[i], true
		}
	}
	return nil, false
}
