package permissions

import "time"

// Permission is one grantable capability. Group codes own children; leaf
// codes have none. The catalog forms a forest over the children edges.
type Permission struct {
	ID          int64
	Code        string
	Description string
	Children    []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Node is the adjacency entry used by the resolver.
type Node struct {
	Code     string
	Children []int64
}

// Forest is the permission catalog keyed by permission id.
type Forest map[int64]Node
