package correlate

import (
	"sort"
	"time"

	"cyberres/core"
)

// unionFind groups alert indices that share a correlation id
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the smaller index as root so roots follow alert order
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// group partitions alert indices into incident candidates.
//
// Alerts carrying correlation ids are grouped transitively over any shared id,
// whatever the time between them. The rest are chained per (threat_type,
// source): an alert joins the open cluster when it fires within gap of the
// cluster's last alert, otherwise it starts a new one.
func group(alerts []core.Alert, gap time.Duration) [][]int {
	uf := newUnionFind(len(alerts))
	owner := make(map[string]int)
	var explicit, implicit []int

	for i := range alerts {
		if len(alerts[i].CorrelationIDs) == 0 {
			implicit = append(implicit, i)
			continue
		}
		explicit = append(explicit, i)
		for _, id := range alerts[i].CorrelationIDs {
			if id == "" {
				continue
			}
			if first, ok := owner[id]; ok {
				uf.union(first, i)
			} else {
				owner[id] = i
			}
		}
	}

	var groups [][]int
	byRoot := make(map[int]int)
	for _, i := range explicit {
		root := uf.find(i)
		gi, ok := byRoot[root]
		if !ok {
			gi = len(groups)
			byRoot[root] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], i)
	}

	sort.SliceStable(implicit, func(a, b int) bool {
		return alerts[implicit[a]].Timestamp.Before(alerts[implicit[b]].Timestamp)
	})

	type clusterKey struct {
		threat core.ThreatType
		source string
	}
	type cluster struct {
		index int
		last  time.Time
	}
	open := make(map[clusterKey]*cluster)
	for _, i := range implicit {
		a := &alerts[i]
		k := clusterKey{threat: a.ThreatType, source: a.Source}
		if c, ok := open[k]; ok && a.Timestamp.Sub(c.last) <= gap {
			groups[c.index] = append(groups[c.index], i)
			if a.Timestamp.After(c.last) {
				c.last = a.Timestamp
			}
			continue
		}
		open[k] = &cluster{index: len(groups), last: a.Timestamp}
		groups = append(groups, []int{i})
	}

	return groups
}
