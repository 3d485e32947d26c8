// Package orgpath encodes department ancestor chains as ltree-compatible labels
// ("1.8.42") and answers containment questions over them component-wise.
package orgpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const Separator = "."

var ErrEncoding = errors.New("orgpath: invalid label component")

type Label string

func (l Label) String() string { return string(l) }

func Encode(chain []string) (Label, error) {
	if len(chain) == 0 {
		return "", fmt.Errorf("%w: empty chain", ErrEncoding)
	}
	for i, c := range chain {
		if err := validateComponent(c); err != nil {
			return "", fmt.Errorf("%w (position %d)", err, i)
		}
	}
	return Label(strings.Join(chain, Separator)), nil
}

func EncodeIDs(ids ...int64) (Label, error) {
	chain := make([]string, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return "", fmt.Errorf("%w: id %d is not positive", ErrEncoding, id)
		}
		chain = append(chain, strconv.FormatInt(id, 10))
	}
	return Encode(chain)
}

// Parse validates s as a well-formed label.
func Parse(s string) (Label, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty label", ErrEncoding)
	}
	return Encode(strings.Split(s, Separator))
}

func (l Label) Append(id int64) (Label, error) {
	if l == "" {
		return EncodeIDs(id)
	}
	next, err := EncodeIDs(id)
	if err != nil {
		return "", err
	}
	return l + Separator + next, nil
}

func (l Label) Components() []string {
	if l == "" {
		return nil
	}
	return strings.Split(string(l), Separator)
}

func (l Label) Depth() int {
	if l == "" {
		return 0
	}
	return strings.Count(string(l), Separator) + 1
}

func (l Label) Parent() (Label, bool) {
	idx := strings.LastIndex(string(l), Separator)
	if idx < 0 {
		return "", false
	}
	return l[:idx], true
}

func (l Label) LastID() (int64, error) {
	comps := l.Components()
	if len(comps) == 0 {
		return 0, fmt.Errorf("%w: empty label", ErrEncoding)
	}
	return parseID(comps[len(comps)-1])
}

func (l Label) IDs() ([]int64, error) {
	comps := l.Components()
	out := make([]int64, 0, len(comps))
	for _, c := range comps {
		id, err := parseID(c)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// IsDescendantOrSelf reports whether candidate equals ancestor or lies below it.
// "1.20" is not below "1.2".
func IsDescendantOrSelf(candidate, ancestor Label) bool {
	if candidate == "" || ancestor == "" {
		return false
	}
	if candidate == ancestor {
		return true
	}
	return strings.HasPrefix(string(candidate), string(ancestor)+Separator)
}

func IsStrictDescendant(candidate, ancestor Label) bool {
	return candidate != ancestor && IsDescendantOrSelf(candidate, ancestor)
}

// Rebase moves label from under oldPrefix to under newPrefix.
func Rebase(label, oldPrefix, newPrefix Label) (Label, error) {
	if !IsDescendantOrSelf(label, oldPrefix) {
		return "", fmt.Errorf("orgpath: %q is not under %q", label, oldPrefix)
	}
	if newPrefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrEncoding)
	}
	return newPrefix + label[len(oldPrefix):], nil
}

func validateComponent(c string) error {
	if c == "" {
		return fmt.Errorf("%w: empty component", ErrEncoding)
	}
	for _, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrEncoding, c, r)
		}
	}
	return nil
}

func parseID(c string) (int64, error) {
	id, err := strconv.ParseInt(c, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a department id", ErrEncoding, c)
	}
	return id, nil
}
