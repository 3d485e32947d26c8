package mappers

import (
	"sort"
	"strings"
	"time"

	"github.com/Dr1DeX/orgtree/modules/org/presentation/viewmodels"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

// SnapshotToTree nests the flat snapshot. Siblings are ordered by name, then id.
// A node whose parent is missing from the snapshot is treated as a root.
func SnapshotToTree(snap *services.TreeSnapshot) *viewmodels.DepartmentTree {
	out := &viewmodels.DepartmentTree{Roots: []*viewmodels.DepartmentTreeNode{}}
	if snap == nil {
		return out
	}
	out.GeneratedAt = snap.GeneratedAt.UTC().Format(time.RFC3339)

	nodes := make(map[int64]*viewmodels.DepartmentTreeNode, len(snap.Departments))
	for id, n := range snap.Departments {
		nodes[id] = &viewmodels.DepartmentTreeNode{
			ID:                    n.ID,
			Name:                  n.Name,
			Level:                 n.Level,
			Path:                  n.Path.String(),
			EmployeesCount:        n.EmployeesCount,
			SubtreeEmployeesCount: n.SubtreeEmployeesCount,
			Children:              []*viewmodels.DepartmentTreeNode{},
		}
	}

	for id, n := range snap.Departments {
		node := nodes[id]
		if n.ParentID == nil {
			out.Roots = append(out.Roots, node)
			continue
		}
		parent, ok := nodes[*n.ParentID]
		if !ok {
			out.Roots = append(out.Roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortSiblings(out.Roots)
	for _, n := range nodes {
		sortSiblings(n.Children)
	}
	return out
}

func sortSiblings(siblings []*viewmodels.DepartmentTreeNode) {
	sort.SliceStable(siblings, func(i, j int) bool {
		ni := strings.TrimSpace(siblings[i].Name)
		nj := strings.TrimSpace(siblings[j].Name)
		if ni != nj {
			return ni < nj
		}
		return siblings[i].ID < siblings[j].ID
	})
}
