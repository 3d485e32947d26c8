package department

import (
	"time"

	"github.com/Dr1DeX/orgtree/pkg/orgpath"
)

// MaxLevel bounds the hierarchy depth; roots are level 1.
const MaxLevel = 5

type Department struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	ParentID  *int64        `json:"parent_id"`
	Level     int           `json:"level"`
	Path      orgpath.Label `json:"path"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (d Department) IsRoot() bool {
	return d.ParentID == nil
}

// Consistent reports whether level, path and parent agree with each other.
func (d Department) Consistent(parent *Department) bool {
	if d.Level != d.Path.Depth() || d.Level > MaxLevel {
		return false
	}
	last, err := d.Path.LastID()
	if err != nil || last != d.ID {
		return false
	}
	if parent == nil {
		return d.ParentID == nil && d.Level == 1
	}
	if d.ParentID == nil || *d.ParentID != parent.ID {
		return false
	}
	pp, _ := d.Path.Parent()
	return pp == parent.Path
}

// ExpectedPath derives the path of a department with the given id placed under parent.
func ExpectedPath(id int64, parent *Department) (orgpath.Label, int, error) {
	if parent == nil {
		l, err := orgpath.EncodeIDs(id)
		return l, 1, err
	}
	l, err := parent.Path.Append(id)
	return l, parent.Level + 1, err
}
