package claims

// ClaimsFilter decides which top-level attributes of a payload are kept
type ClaimsFilter interface {
	// Filter returns a new Claims containing only the kept attributes
	Filter(c Claims) Claims
}

// NewAttributeFilter builds the filter for an allow list and a deny list.
// An empty allow list keeps everything not denied.
func NewAttributeFilter(allowed, denied []string) ClaimsFilter {
	switch {
	case len(allowed) == 0 && len(denied) == 0:
		return &PassthroughClaimsFilter{}
	case len(denied) == 0:
		return NewAllowListClaimsFilter(allowed)
	case len(allowed) == 0:
		return NewDenyListClaimsFilter(denied)
	default:
		return chainFilter{NewAllowListClaimsFilter(allowed), NewDenyListClaimsFilter(denied)}
	}
}

// AllowListClaimsFilter only keeps attributes in the allow list
type AllowListClaimsFilter struct {
	allowed map[string]bool
}

// NewAllowListClaimsFilter creates a new allow list filter
func NewAllowListClaimsFilter(allowed []string) *AllowListClaimsFilter {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &AllowListClaimsFilter{allowed: set}
}

// Filter implements ClaimsFilter
func (f *AllowListClaimsFilter) Filter(c Claims) Claims {
	if c == nil {
		return nil
	}
	filtered := make(Claims)
	for key, value := range c {
		if f.allowed[key] {
			filtered[key] = value
		}
	}
	return filtered
}

// DenyListClaimsFilter drops attributes in the deny list
type DenyListClaimsFilter struct {
	denied map[string]bool
}

// NewDenyListClaimsFilter creates a new deny list filter
func NewDenyListClaimsFilter(denied []string) *DenyListClaimsFilter {
	set := make(map[string]bool, len(denied))
	for _, name := range denied {
		set[name] = true
	}
	return &DenyListClaimsFilter{denied: set}
}

// Filter implements ClaimsFilter
func (f *DenyListClaimsFilter) Filter(c Claims) Claims {
	if c == nil {
		return nil
	}
	filtered := make(Claims)
	for key, value := range c {
		if !f.denied[key] {
			filtered[key] = value
		}
	}
	return filtered
}

// PassthroughClaimsFilter keeps every attribute
type PassthroughClaimsFilter struct{}

// Filter implements ClaimsFilter
func (f *PassthroughClaimsFilter) Filter(c Claims) Claims {
	return c.Copy()
}

type chainFilter []ClaimsFilter

func (f chainFilter) Filter(c Claims) Claims {
	for _, filter := range f {
		c = filter.Filter(c)
	}
	return c
}
