package query

import (
	"fmt"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/index"
	"github.com/apache/arrow-go/v18/arrow"
)

// Plan represents a query execution plan
type Plan struct {
	ColumnPruning []string // Columns needed
	IndexStrategy index.Strategy
}

// Planner checks queries against a schema and picks how to partition rows
type Planner struct{}

// NewPlanner creates a query planner
func NewPlanner() *Planner {
	return &Planner{}
}

// OptimizeQuery creates an execution plan for the query
func (p *Planner) OptimizeQuery(schema *arrow.Schema, q *Query) (*Plan, error) {
	if len(q.GroupBy) == 0 {
		return nil, ErrNoGroupColumns
	}
	if q.Aggregation < Mean || q.Aggregation > Count {
		return nil, fmt.Errorf("unsupported aggregation: %v", q.Aggregation)
	}

	plan := &Plan{
		ColumnPruning: p.determineRequiredColumns(q),
		IndexStrategy: p.chooseIndexStrategy(q),
	}
	for _, col := range plan.ColumnPruning {
		if len(schema.FieldIndices(col)) == 0 {
			return nil, &db.ColumnError{Column: col, Err: db.ErrColumnNotFound}
		}
	}
	return plan, nil
}

// chooseIndexStrategy uses a plain bitmap index for single-column keys and
// hashes composite keys into buckets.
func (p *Planner) chooseIndexStrategy(q *Query) index.Strategy {
	if len(q.GroupBy) > 1 {
		return index.HashIndex
	}
	return index.RoaringBitmap
}

func (p *Planner) determineRequiredColumns(q *Query) []string {
	seen := make(map[string]bool)
	columns := make([]string, 0, len(q.GroupBy)+1)
	add := func(col string) {
		if !seen[col] {
			seen[col] = true
			columns = append(columns, col)
		}
	}
	for _, col := range q.GroupBy {
		add(col)
	}
	if q.Aggregation != Count {
		add(q.Value)
	}
	return columns
}
