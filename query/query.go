package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/index"
	"github.com/prometheus/client_golang/prometheus"
)

var queryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "bikedash_query_latency_seconds",
	Help: "Aggregation latency distribution by operation",
}, []string{"op"})

func init() {
	prometheus.MustRegister(queryLatency)
}

// ErrNoGroupColumns is returned by grouped queries without grouping columns.
var ErrNoGroupColumns = errors.New("no grouping columns")

// Aggregation is the function applied to the value column of each group.
type Aggregation int

const (
	Mean Aggregation = iota
	Sum
	Count
)

func (a Aggregation) String() string {
	switch a {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	case Count:
		return "count"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// Query is a grouped aggregation over one value column.
type Query struct {
	GroupBy     []string
	Value       string
	Aggregation Aggregation
}

// Group is one partition of a grouped result.
type Group struct {
	Key   index.Key `json:"key"`
	Count int       `json:"count"`
	Value float64   `json:"value"`
}

// Grouped is the result of a grouped query, with groups ordered by key.
type Grouped struct {
	GroupBy     []string    `json:"group_by"`
	Value       string      `json:"value"`
	Aggregation Aggregation `json:"-"`
	Groups      []Group     `json:"groups"`
}

// GroupedMeans maps grouping tuples to the mean of a value column.
type GroupedMeans = Grouped

// Values returns the aggregate of every group keyed by its key string.
func (g *Grouped) Values() map[string]float64 {
	out := make(map[string]float64, len(g.Groups))
	for _, grp := range g.Groups {
		out[grp.Key.String()] = grp.Value
	}
	return out
}

// GroupMean partitions t by the distinct tuples of groupCols and returns the
// mean of valueCol within each partition.
func GroupMean(t *db.Table, groupCols []string, valueCol string) (*GroupedMeans, error) {
	q := &Query{GroupBy: groupCols, Value: valueCol, Aggregation: Mean}
	return q.Execute(t)
}

// Execute plans and runs q against t.
func (q *Query) Execute(t *db.Table) (*Grouped, error) {
	start := time.Now()
	defer func() {
		queryLatency.WithLabelValues("group_" + q.Aggregation.String()).Observe(time.Since(start).Seconds())
	}()

	plan, err := NewPlanner().OptimizeQuery(t.Schema(), q)
	if err != nil {
		return nil, err
	}

	keyCols := make([][]int64, len(q.GroupBy))
	for i, name := range q.GroupBy {
		vals, err := t.Int64s(name)
		if err != nil {
			return nil, fmt.Errorf("group by %q: %w", name, err)
		}
		keyCols[i] = vals
	}

	var values []float64
	if q.Aggregation != Count {
		if values, err = t.Float64s(q.Value); err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", q.Value, err)
		}
	}

	idx, err := index.Build(plan.IndexStrategy, keyCols)
	if err != nil {
		return nil, err
	}

	out := &Grouped{
		GroupBy:     append([]string(nil), q.GroupBy...),
		Value:       q.Value,
		Aggregation: q.Aggregation,
	}
	for _, p := range idx.Partitions() {
		var sum float64
		n := 0
		it := p.Rows.Iterator()
		for it.HasNext() {
			row := it.Next()
			if values != nil {
				sum += values[row]
			}
			n++
		}

		grp := Group{Key: p.Key, Count: n}
		switch q.Aggregation {
		case Mean:
			grp.Value = sum / float64(n)
		case Sum:
			grp.Value = sum
		case Count:
			grp.Value = float64(n)
		}
		out.Groups = append(out.Groups, grp)
	}
	return out, nil
}
