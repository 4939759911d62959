// Package discovery finds local model documents by glob pattern.
package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
)

// Lister lists document names by prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Find returns the names matching pattern in lexical order, the order in
// which the models are merged. "**" matches across directories.
func Find(ctx context.Context, l Lister, pattern string) ([]string, error) {
	names, err := l.List(ctx, staticPrefix(pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", pattern)
	}
	var matches []string
	for _, name := range names {
		ok, err := zglob.Match(pattern, name)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %s", pattern)
		}
		if ok {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// staticPrefix returns the directory part of pattern before its first
// wildcard, so object stores only list what can match.
func staticPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return pattern
	}
	j := strings.LastIndexByte(pattern[:i], '/')
	if j < 0 {
		return ""
	}
	return pattern[:j+1]
}
