package sources

import (
	"fmt"
	"regexp"

	"github.com/openmantle/openmantle/pkg/engine"
)

// nameFilter applies the include and exclude patterns of a discovery
// request to discovered entity names. Patterns are unanchored regular
// expressions: include keeps matching names, exclude then drops
// matching names.
type nameFilter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// newNameFilter compiles the request patterns. Empty patterns are
// wildcards.
func newNameFilter(req engine.DiscoveryRequest) (*nameFilter, error) {
	f := &nameFilter{}
	if req.IncludePattern != "" {
		re, err := regexp.Compile(req.IncludePattern)
		if err != nil {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("invalid include pattern '%s'", req.IncludePattern), err)
		}
		f.include = re
	}
	if req.ExcludePattern != "" {
		re, err := regexp.Compile(req.ExcludePattern)
		if err != nil {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("invalid exclude pattern '%s'", req.ExcludePattern), err)
		}
		f.exclude = re
	}
	return f, nil
}

// keep reports whether a discovered name passes both patterns.
func (f *nameFilter) keep(name string) bool {
	if f.include != nil && !f.include.MatchString(name) {
		return false
	}
	if f.exclude != nil && f.exclude.MatchString(name) {
		return false
	}
	return true
}
