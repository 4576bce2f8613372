package httpfixture

import (
	"fmt"
	"net/http"
	"regexp"
)

// RuleBasedProvider matches requests against a set of rules.
// The first matching rule wins.
type RuleBasedProvider struct {
	rules    []HTTPFixtureRule
	patterns []*regexp.Regexp
}

// NewRuleBasedProvider creates a new rule-based fixture provider.
// Every pattern rule must compile.
func NewRuleBasedProvider(rules []HTTPFixtureRule) (*RuleBasedProvider, error) {
	patterns := make([]*regexp.Regexp, len(rules))
	for i, rule := range rules {
		if rule.Request.URLType != "pattern" {
			continue
		}
		pattern, err := regexp.Compile(rule.Request.URL)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid URL pattern %q: %w", i, rule.Request.URL, err)
		}
		patterns[i] = pattern
	}
	return &RuleBasedProvider{rules: rules, patterns: patterns}, nil
}

// Rules returns the provider's rules
func (p *RuleBasedProvider) Rules() []HTTPFixtureRule {
	return p.rules
}

// GetFixture returns a fixture for the given request if any rule matches
func (p *RuleBasedProvider) GetFixture(req *http.Request) *Fixture {
	for i := range p.rules {
		if p.matches(req, i) {
			return &p.rules[i].Response
		}
	}
	return nil
}

// matches checks if a request matches the criteria of rule i
func (p *RuleBasedProvider) matches(req *http.Request, i int) bool {
	criteria := p.rules[i].Request

	if criteria.Method != "*" && criteria.Method != "" && req.Method != criteria.Method {
		return false
	}

	if criteria.URLType == "pattern" {
		if !p.patterns[i].MatchString(req.URL.String()) {
			return false
		}
	} else if req.URL.String() != criteria.URL {
		return false
	}

	for key, value := range criteria.Headers {
		if req.Header.Get(key) != value {
			return false
		}
	}

	return true
}

// MapProvider provides fixtures based on a simple map lookup (method+URL key)
type MapProvider struct {
	fixtures map[string]*Fixture
}

// NewMapProvider creates a new map-based fixture provider
// Key format: "METHOD URL" (e.g., "GET http://service:8087/user/42")
func NewMapProvider(fixtures map[string]*Fixture) *MapProvider {
	return &MapProvider{fixtures: fixtures}
}

// GetFixture returns a fixture for the given request based on method+URL key
func (p *MapProvider) GetFixture(req *http.Request) *Fixture {
	key := req.Method + " " + req.URL.String()
	return p.fixtures[key]
}

// FuncProvider uses a function to provide fixtures (most flexible)
type FuncProvider struct {
	fn func(*http.Request) *Fixture
}

// NewFuncProvider creates a new function-based fixture provider
func NewFuncProvider(fn func(*http.Request) *Fixture) *FuncProvider {
	return &FuncProvider{fn: fn}
}

// GetFixture returns a fixture by calling the provided function
func (p *FuncProvider) GetFixture(req *http.Request) *Fixture {
	return p.fn(req)
}

// ChainProvider asks each provider in turn and returns the first fixture
type ChainProvider []FixtureProvider

// GetFixture implements FixtureProvider
func (c ChainProvider) GetFixture(req *http.Request) *Fixture {
	for _, provider := range c {
		if fixture := provider.GetFixture(req); fixture != nil {
			return fixture
		}
	}
	return nil
}
