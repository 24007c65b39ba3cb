// Package joinplan implements the Join Planner (spec §4.5): builds a
// per-query foreign-key multigraph over the required tables, finds
// K-shortest simple paths between every pair with edge penalties
// favoring child->parent traversal and penalising hub vertices,
// combines per-pair paths into up to three minimum-connecting-subgraph
// approximations, and linearises each into a join skeleton. Grounded on
// the teacher's internal/context/join_analyzer.go (buildForeignKeyGraph,
// findShortestPath BFS, buildJoinPath, findJoinClause), generalized from
// a single informational shortest path per pair into the spec's
// K-shortest, cost-weighted, deterministic skeleton search. No graph
// library appears anywhere in the example pack, so the small per-query
// graph (rebuilt fresh for each set of required tables, never a
// long-lived object) stays on plain slices/maps — this is the stdlib
// island the package doc calls out deliberately, not an oversight.
package joinplan

import (
	"sort"

	"queryorch/internal/catalog"
	"queryorch/internal/config"
)

// Direction records which side of an FK edge is the "child" (the table
// holding the foreign key) for scoring purposes.
type Direction int

const (
	ChildToParent Direction = iota
	ParentToChild
)

// Edge is one directed traversal of an FK relationship in the per-query
// graph; spec §4.5 "for each FK edge include both a forward and a
// reverse directed edge".
type Edge struct {
	ConstraintID string
	From         string
	To           string
	FromColumn   string
	ToColumn     string
	Direction    Direction
}

// JoinClause is one linearised "JOIN <table> ON <col> = <col>" step.
type JoinClause struct {
	Table      string
	OnLeft     string // "<table>.<column>"
	OnRight    string // "<table>.<column>"
}

// Skeleton is one candidate join plan: a root table plus an ordered list
// of JOIN clauses connecting the remaining required tables.
type Skeleton struct {
	Root         string
	Tables       []string // all tables covered, in join order, root first
	Joins        []JoinClause
	HubTraversals int
	TotalCost    float64
	Rationale    string
}

// graph is the per-query FK multigraph: adjacency list keyed by table
// name, rebuilt fresh for every Plan call.
type graph struct {
	adj     map[string][]Edge
	isHub   map[string]bool
	degree  map[string]int
}

func buildGraph(edges []catalog.FKEdge, hubDegreeThreshold int) *graph {
	g := &graph{adj: make(map[string][]Edge), isHub: make(map[string]bool), degree: make(map[string]int)}
	for _, e := range edges {
		g.adj[e.FromTable] = append(g.adj[e.FromTable], Edge{
			ConstraintID: e.ConstraintID, From: e.FromTable, To: e.ToTable,
			FromColumn: e.FromColumn, ToColumn: e.ToColumn, Direction: ChildToParent,
		})
		g.adj[e.ToTable] = append(g.adj[e.ToTable], Edge{
			ConstraintID: e.ConstraintID, From: e.ToTable, To: e.FromTable,
			FromColumn: e.ToColumn, ToColumn: e.FromColumn, Direction: ParentToChild,
		})
		g.degree[e.FromTable]++
		g.degree[e.ToTable]++
	}
	for t, d := range g.degree {
		if hubDegreeThreshold > 0 && d > hubDegreeThreshold {
			g.isHub[t] = true
		}
	}
	// Deterministic traversal order: sort each adjacency list by
	// (to, constraint_id) per spec §4.5's determinism requirement.
	for t := range g.adj {
		edgesForT := g.adj[t]
		sort.Slice(edgesForT, func(i, j int) bool {
			if edgesForT[i].To != edgesForT[j].To {
				return edgesForT[i].To < edgesForT[j].To
			}
			return edgesForT[i].ConstraintID < edgesForT[j].ConstraintID
		})
		g.adj[t] = edgesForT
	}
	return g
}

// path is one simple path through the graph, with its accumulated
// edges and cost.
type path struct {
	tables []string
	edges  []Edge
	cost   float64
	hubs   int
}

func edgeCost(e Edge, toHub bool, cfg config.JoinPlanConfig) float64 {
	cost := 1.0
	if e.Direction == ChildToParent {
		cost += cfg.ChildParentBonus // negative value favors this direction
	}
	if toHub {
		cost += cfg.HubTraversalPenalty
	}
	return cost
}

// kShortestPaths finds up to k simple paths from `from` to `to`, in
// increasing cost order, using a Yen-style repeated-shortest-path search
// with used-edge penalties (spec §4.5 step 1: "repeated shortest-path
// with edge penalties on previously used edges").
func kShortestPaths(g *graph, from, to string, k int, cfg config.JoinPlanConfig) []path {
	if from == to {
		return []path{{tables: []string{from}}}
	}

	first := dijkstra(g, from, to, nil, cfg)
	if first == nil {
		return nil
	}
	found := []path{*first}

	usedEdgeSets := []map[string]bool{edgeSet(*first)}

	for len(found) < k {
		var candidate *path
		for _, blocked := range usedEdgeSets {
			p := dijkstra(g, from, to, blocked, cfg)
			if p == nil {
				continue
			}
			if !containsPath(found, p) && (candidate == nil || p.cost < candidate.cost || (p.cost == candidate.cost && lessPath(*p, *candidate))) {
				candidate = p
			}
		}
		if candidate == nil {
			break
		}
		found = append(found, *candidate)
		usedEdgeSets = append(usedEdgeSets, edgeSet(*candidate))
	}

	sort.SliceStable(found, func(i, j int) bool { return lessPath(found[i], found[j]) })
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// lessPath implements spec §4.5's tie-break order: shorter path cost,
// fewer hub traversals, fewer distinct tables, lexically earlier table.
func lessPath(a, b path) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.hubs != b.hubs {
		return a.hubs < b.hubs
	}
	if len(a.tables) != len(b.tables) {
		return len(a.tables) < len(b.tables)
	}
	for i := range a.tables {
		if i >= len(b.tables) {
			return false
		}
		if a.tables[i] != b.tables[i] {
			return a.tables[i] < b.tables[i]
		}
	}
	return false
}

func edgeSet(p path) map[string]bool {
	s := make(map[string]bool, len(p.edges))
	for _, e := range p.edges {
		s[e.ConstraintID+":"+e.From+">"+e.To] = true
	}
	return s
}

func containsPath(existing []path, p *path) bool {
	for _, e := range existing {
		if len(e.tables) != len(p.tables) {
			continue
		}
		same := true
		for i := range e.tables {
			if e.tables[i] != p.tables[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// dijkstra finds the single cheapest simple path from -> to, skipping
// any edge present in blocked, breaking ties deterministically by the
// already-sorted adjacency order.
func dijkstra(g *graph, from, to string, blocked map[string]bool, cfg config.JoinPlanConfig) *path {
	type state struct {
		table string
		cost  float64
		via   Edge
		prev  *state
	}
	visited := make(map[string]bool)
	frontier := []*state{{table: from, cost: 0}}

	var best *state
	for len(frontier) > 0 {
		sort.SliceStable(frontier, func(i, j int) bool { return frontier[i].cost < frontier[j].cost })
		cur := frontier[0]
		frontier = frontier[1:]

		if visited[cur.table] {
			continue
		}
		visited[cur.table] = true

		if cur.table == to {
			best = cur
			break
		}

		for _, e := range g.adj[cur.table] {
			key := e.ConstraintID + ":" + e.From + ">" + e.To
			if blocked != nil && blocked[key] {
				continue
			}
			if visited[e.To] {
				continue
			}
			cost := cur.cost + edgeCost(e, g.isHub[e.To], cfg)
			frontier = append(frontier, &state{table: e.To, cost: cost, via: e, prev: cur})
		}
	}
	if best == nil {
		return nil
	}

	var tables []string
	var edges []Edge
	hubs := 0
	for s := best; s != nil; s = s.prev {
		tables = append([]string{s.table}, tables...)
		if s.prev != nil {
			edges = append([]Edge{s.via}, edges...)
			if g.isHub[s.table] {
				hubs++
			}
		}
	}
	return &path{tables: tables, edges: edges, cost: best.cost, hubs: hubs}
}

// Plan runs the full algorithm of spec §4.5 over the given required
// tables and FK edges, returning up to JoinPlanConfig.MaxSkeletons
// distinct skeletons. Fewer than two required tables yields no
// skeletons. hubDegreeThreshold marks a vertex as a hub once its FK
// degree exceeds it (spec §4.5 "Hub vertices... exceeding a degree
// threshold are marked"), sourced from RetrievalConfig.HubDegreeThreshold
// since both stages share one notion of "hub".
func Plan(required []string, edges []catalog.FKEdge, retrievalOrder []string, hubDegreeThreshold int, cfg config.JoinPlanConfig) []Skeleton {
	if len(required) < 2 {
		return nil
	}
	req := append([]string(nil), required...)
	sort.Strings(req)

	g := buildGraph(edges, dynamicHubThreshold(hubDegreeThreshold, len(req)))

	k := cfg.KShortestPaths
	if k <= 0 {
		k = 3
	}

	type pairPaths struct {
		a, b  string
		paths []path
	}
	var pairs []pairPaths
	for i := 0; i < len(req); i++ {
		for j := i + 1; j < len(req); j++ {
			ps := kShortestPaths(g, req[i], req[j], k, cfg)
			if len(ps) > 0 {
				pairs = append(pairs, pairPaths{a: req[i], b: req[j], paths: ps})
			}
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	maxSkeletons := cfg.MaxSkeletons
	if maxSkeletons <= 0 {
		maxSkeletons = 3
	}

	var skeletons []Skeleton
	seenShape := make(map[string]bool)

	for seedIdx := 0; seedIdx < len(pairs) && len(skeletons) < maxSkeletons; seedIdx++ {
		seed := pairs[seedIdx].paths[0]
		covered := make(map[string]bool)
		var edgesUsed []Edge
		for _, t := range seed.tables {
			covered[t] = true
		}
		edgesUsed = append(edgesUsed, seed.edges...)

		remaining := make(map[string]bool, len(req))
		for _, t := range req {
			if !covered[t] {
				remaining[t] = true
			}
		}

		for len(remaining) > 0 {
			var bestPath *path
			var bestTarget string
			for target := range remaining {
				var candidate *path
				for t := range covered {
					ps := kShortestPaths(g, t, target, 1, cfg)
					if len(ps) == 0 {
						continue
					}
					if candidate == nil || lessPath(ps[0], *candidate) {
						candidate = &ps[0]
					}
				}
				if candidate == nil {
					continue
				}
				if bestPath == nil || lessPath(*candidate, *bestPath) || (candidate.cost == bestPath.cost && target < bestTarget) {
					bestPath = candidate
					bestTarget = target
				}
			}
			if bestPath == nil {
				break // disconnected from current subgraph; required tables not fully joinable
			}
			for _, t := range bestPath.tables {
				covered[t] = true
				delete(remaining, t)
			}
			edgesUsed = append(edgesUsed, bestPath.edges...)
		}

		shapeKey := shapeSignature(covered, edgesUsed)
		if seenShape[shapeKey] {
			continue
		}
		seenShape[shapeKey] = true

		sk := linearise(covered, edgesUsed, retrievalOrder, req)
		skeletons = append(skeletons, sk)
	}

	sort.SliceStable(skeletons, func(i, j int) bool {
		if skeletons[i].TotalCost != skeletons[j].TotalCost {
			return skeletons[i].TotalCost < skeletons[j].TotalCost
		}
		return skeletons[i].Root < skeletons[j].Root
	})
	if len(skeletons) > maxSkeletons {
		skeletons = skeletons[:maxSkeletons]
	}
	return skeletons
}

// dynamicHubThreshold lowers the effective hub-degree threshold as the
// number of required tables grows, so a busier query treats more
// vertices as hubs and penalises fan-out through them more readily
// (spec §4.5: "a dynamic hub cap lowers the number of edges traversed
// through a hub as the number of required tables rises").
func dynamicHubThreshold(base int, requiredCount int) int {
	if base <= 0 {
		return 0
	}
	reduction := requiredCount / 3
	threshold := base - reduction
	if threshold < 2 {
		threshold = 2
	}
	return threshold
}

func shapeSignature(covered map[string]bool, edges []Edge) string {
	tables := make([]string, 0, len(covered))
	for t := range covered {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	sig := ""
	for _, t := range tables {
		sig += t + ","
	}
	return sig
}

// linearise turns a covered table set + the edges used to connect them
// into an ordered join skeleton (spec §4.5 step 3): pick a root
// preferring a table already earlier in retrieval order, else the
// lowest-degree required table, then walk outward in FK-dependency
// order.
func linearise(covered map[string]bool, edges []Edge, retrievalOrder, required []string) Skeleton {
	adjacency := make(map[string][]Edge)
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e)
		adjacency[e.To] = append(adjacency[e.To], Edge{
			ConstraintID: e.ConstraintID, From: e.To, To: e.From,
			FromColumn: e.ToColumn, ToColumn: e.FromColumn,
			Direction: oppositeDirection(e.Direction),
		})
	}

	root := pickRoot(covered, retrievalOrder, required)

	visited := map[string]bool{root: true}
	order := []string{root}
	var joins []JoinClause
	hubTraversals := 0
	totalCost := 0.0

	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		neighbors := append([]Edge(nil), adjacency[cur]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].To < neighbors[j].To })

		for _, e := range neighbors {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			order = append(order, e.To)
			joins = append(joins, JoinClause{
				Table:   e.To,
				OnLeft:  e.From + "." + e.FromColumn,
				OnRight: e.To + "." + e.ToColumn,
			})
			totalCost += 1.0
			queue = append(queue, e.To)
		}
	}

	return Skeleton{
		Root:          root,
		Tables:        order,
		Joins:         joins,
		HubTraversals: hubTraversals,
		TotalCost:     totalCost,
		Rationale:     "joins " + join(order, " -> "),
	}
}

func oppositeDirection(d Direction) Direction {
	if d == ChildToParent {
		return ParentToChild
	}
	return ChildToParent
}

func pickRoot(covered map[string]bool, retrievalOrder, required []string) string {
	for _, t := range retrievalOrder {
		if covered[t] {
			return t
		}
	}
	// Fall back to the lowest-degree required table, approximated here
	// by lexical order of the required-table list restricted to covered.
	for _, t := range required {
		if covered[t] {
			return t
		}
	}
	for t := range covered {
		return t
	}
	return ""
}

func join(ss []string, sep string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
