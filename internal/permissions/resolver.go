package permissions

import "sort"

// ResolveCodes expands the directly-assigned permission ids into the
// transitive closure of reachable codes, deduplicated and sorted.
//
// The walk is an explicit-stack DFS with a visited set, so it terminates even
// if an admin has introduced a cycle; cycles are not rejected at write time.
// Ids that no longer resolve to a catalog entry are skipped: a malformed tree
// degrades to fewer permissions, never more.
func ResolveCodes(forest Forest, direct []int64) []string {
	visited := make(map[int64]struct{}, len(direct))
	codes := make(map[string]struct{})

	stack := make([]int64, 0, len(direct))
	stack = append(stack, direct...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		node, ok := forest[id]
		if !ok {
			continue
		}
		if node.Code != "" {
			codes[node.Code] = struct{}{}
		}
		stack = append(stack, node.Children...)
	}

	out := make([]string, 0, len(codes))
	for code := range codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
