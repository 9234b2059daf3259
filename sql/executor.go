package sql

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tis-abe-akira/our-sql/storage"
)

// ───────────────────────────────────────────────────────────────────────────
// Executor
// ───────────────────────────────────────────────────────────────────────────
//
// Executor walks a parsed Statement and drives it against a
// storage.Database, choosing between three access paths for SELECT:
//
//  1. select_by_pk   — WHERE is exactly "pk = <literal>"
//  2. range_by_pk    — WHERE is an AND of only pk-column comparisons
//  3. full scan      — anything else, filtered row by row
//
// The cheapest access path wins; predicate evaluation and row
// materialization are shared code regardless of which path produced the
// rows. Plan detection only ever has a single PK index to exploit, so
// it is far simpler than a general-purpose query planner.

// Result is the outcome of executing one statement.
type Result struct {
	Cols         []string
	Rows         [][]storage.Value
	RowsAffected int
}

// Executor runs parsed statements against a database.
type Executor struct {
	db *storage.Database
}

// NewExecutor returns an Executor bound to db.
func NewExecutor(db *storage.Database) *Executor {
	return &Executor{db: db}
}

// Execute runs one parsed statement and returns its result.
func (ex *Executor) Execute(stmt Statement) (*Result, error) {
	var res *Result
	var err error
	switch s := stmt.(type) {
	case *SelectStmt:
		res, err = ex.execSelect(s)
	case *InsertStmt:
		res, err = ex.execInsert(s)
	case *UpdateStmt:
		res, err = ex.execUpdate(s)
	case *DeleteStmt:
		res, err = ex.execDelete(s)
	case *CreateTableStmt:
		res, err = ex.execCreateTable(s)
	case *DropTableStmt:
		res, err = ex.execDropTable(s)
	default:
		return nil, fmt.Errorf("%w: unsupported statement type %T", ErrExecution, stmt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return res, nil
}

// ───────────────────────────────────────────────────────────────────────────
// SELECT
// ───────────────────────────────────────────────────────────────────────────

func (ex *Executor) execSelect(s *SelectStmt) (*Result, error) {
	table, err := ex.db.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	pkCol := table.Schema.PKColumn()

	var rows []storage.Row
	if s.Where == nil {
		rows, err = table.SelectAll()
	} else if key, ok := equalityOnPK(s.Where, pkCol); ok {
		row, serr := table.SelectByPK(key)
		switch {
		case serr == nil:
			rows = []storage.Row{row}
		case isNotFound(serr):
			rows = nil
		default:
			return nil, serr
		}
	} else if plan, ok := rangeOnPK(s.Where, pkCol); ok {
		rows, err = table.RangeByPK(plan.lo, plan.hi, plan.loIncl, plan.hiIncl)
	} else {
		rows, err = scanFiltered(table, s.Where)
	}
	if err != nil {
		return nil, err
	}

	cols := s.Cols
	if cols == nil {
		cols = make([]string, len(table.Schema.Columns))
		for i, c := range table.Schema.Columns {
			cols[i] = c.Name
		}
	} else {
		for _, c := range cols {
			if table.Schema.IndexOf(c) < 0 {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCol, c)
			}
		}
	}

	if s.OrderBy != "" {
		if table.Schema.IndexOf(s.OrderBy) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCol, s.OrderBy)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			less := valueLess(rows[i][s.OrderBy], rows[j][s.OrderBy])
			if s.Desc {
				return valueLess(rows[j][s.OrderBy], rows[i][s.OrderBy])
			}
			return less
		})
	}

	if s.Limit != nil && *s.Limit < len(rows) {
		rows = rows[:*s.Limit]
	}

	out := &Result{Cols: cols}
	for _, row := range rows {
		vals := make([]storage.Value, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, nil
}

func scanFiltered(table *storage.Table, where Expr) ([]storage.Row, error) {
	all, err := table.SelectAll()
	if err != nil {
		return nil, err
	}
	var out []storage.Row
	for _, row := range all {
		ok, err := evalPredicate(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// equalityOnPK reports whether where is exactly "pkCol = <literal>".
func equalityOnPK(where Expr, pkCol string) (int64, bool) {
	b, ok := where.(*Binary)
	if !ok || b.Op != "=" {
		return 0, false
	}
	if v, litOK := varLit(b.Left, b.Right, pkCol); litOK {
		return v, true
	}
	if v, litOK := varLit(b.Right, b.Left, pkCol); litOK {
		return v, true
	}
	return 0, false
}

func varLit(varSide, litSide Expr, pkCol string) (int64, bool) {
	v, ok := varSide.(*VarRef)
	if !ok || v.Name != pkCol {
		return 0, false
	}
	l, ok := litSide.(*Literal)
	if !ok || l.Val.Type != storage.ColInt {
		return 0, false
	}
	return l.Val.Int, true
}

type pkRangePlan struct {
	lo, hi         int64
	loIncl, hiIncl bool
}

// rangeOnPK reports whether where decomposes entirely into an AND of
// comparisons between pkCol and integer literals (no OR, no other
// columns, no !=). If so, it returns the combined [lo, hi] bound.
func rangeOnPK(where Expr, pkCol string) (pkRangePlan, bool) {
	conjuncts, ok := collectPKConjuncts(where, pkCol)
	if !ok || len(conjuncts) == 0 {
		return pkRangePlan{}, false
	}
	for _, c := range conjuncts {
		if c.op == "=" && len(conjuncts) > 1 {
			// Ambiguous mix of equality and range bounds: let the caller
			// fall back to a full scan rather than guess.
			return pkRangePlan{}, false
		}
	}
	if len(conjuncts) == 1 && conjuncts[0].op == "=" {
		return pkRangePlan{}, false // handled by the equality fast path instead
	}

	plan := pkRangePlan{lo: math.MinInt64, hi: math.MaxInt64, loIncl: true, hiIncl: true}
	for _, c := range conjuncts {
		switch c.op {
		case "<":
			if c.val < plan.hi || (c.val == plan.hi && plan.hiIncl) {
				plan.hi, plan.hiIncl = c.val, false
			}
		case "<=":
			if c.val < plan.hi {
				plan.hi, plan.hiIncl = c.val, true
			}
		case ">":
			if c.val > plan.lo || (c.val == plan.lo && plan.loIncl) {
				plan.lo, plan.loIncl = c.val, false
			}
		case ">=":
			if c.val > plan.lo {
				plan.lo, plan.loIncl = c.val, true
			}
		default:
			return pkRangePlan{}, false
		}
	}
	return plan, true
}

type pkConjunct struct {
	op  string
	val int64
}

func collectPKConjuncts(e Expr, pkCol string) ([]pkConjunct, bool) {
	b, ok := e.(*Binary)
	if !ok {
		return nil, false
	}
	if b.Op == "AND" {
		l, ok1 := collectPKConjuncts(b.Left, pkCol)
		r, ok2 := collectPKConjuncts(b.Right, pkCol)
		if !ok1 || !ok2 {
			return nil, false
		}
		return append(l, r...), true
	}
	if b.Op == "OR" {
		return nil, false
	}
	if v, flipped, ok := pkVarSide(b, pkCol); ok {
		op := b.Op
		if flipped {
			op = flipOp(op)
		}
		if op == "!=" {
			return nil, false
		}
		return []pkConjunct{{op: op, val: v}}, true
	}
	return nil, false
}

func pkVarSide(b *Binary, pkCol string) (int64, bool, bool) {
	if v, ok := varLit(b.Left, b.Right, pkCol); ok {
		return v, false, true
	}
	if v, ok := varLit(b.Right, b.Left, pkCol); ok {
		return v, true, true
	}
	return 0, false, false
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Predicate / value evaluation (used by the full-scan path)
// ───────────────────────────────────────────────────────────────────────────

func evalPredicate(row storage.Row, e Expr) (bool, error) {
	b, ok := e.(*Binary)
	if !ok {
		return false, fmt.Errorf("expression is not a predicate: %T", e)
	}
	switch b.Op {
	case "AND":
		l, err := evalPredicate(row, b.Left)
		if err != nil || !l {
			return false, err
		}
		return evalPredicate(row, b.Right)
	case "OR":
		l, err := evalPredicate(row, b.Left)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalPredicate(row, b.Right)
	default:
		left, err := evalValue(row, b.Left)
		if err != nil {
			return false, err
		}
		right, err := evalValue(row, b.Right)
		if err != nil {
			return false, err
		}
		ok, err := compareValues(b.Op, left, right)
		if err != nil {
			if errors.Is(err, storage.ErrTypeError) {
				return false, nil
			}
			return false, err
		}
		return ok, nil
	}
}

func evalValue(row storage.Row, e Expr) (storage.Value, error) {
	switch n := e.(type) {
	case *VarRef:
		v, ok := row[n.Name]
		if !ok {
			return storage.Value{}, fmt.Errorf("%w: %s", ErrUnknownCol, n.Name)
		}
		return v, nil
	case *Literal:
		return n.Val, nil
	default:
		return storage.Value{}, fmt.Errorf("cannot evaluate expression of type %T", e)
	}
}

func compareValues(op string, a, b storage.Value) (bool, error) {
	if a.Type != b.Type {
		return false, fmt.Errorf("%w: type mismatch in comparison", storage.ErrTypeError)
	}
	var cmp int
	if a.Type == storage.ColInt {
		switch {
		case a.Int < b.Int:
			cmp = -1
		case a.Int > b.Int:
			cmp = 1
		}
	} else {
		switch {
		case a.Text < b.Text:
			cmp = -1
		case a.Text > b.Text:
			cmp = 1
		}
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

func valueLess(a, b storage.Value) bool {
	if a.Type == storage.ColInt {
		return a.Int < b.Int
	}
	return a.Text < b.Text
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// ───────────────────────────────────────────────────────────────────────────
// INSERT / UPDATE / DELETE / DDL
// ───────────────────────────────────────────────────────────────────────────

func (ex *Executor) execInsert(s *InsertStmt) (*Result, error) {
	table, err := ex.db.GetTable(s.Table)
	if err != nil {
		return nil, err
	}

	// A bare VALUES list (no column list) maps positionally onto the
	// schema's own column order.
	cols := s.Cols
	if len(cols) == 0 {
		if len(s.Vals) != len(table.Schema.Columns) {
			return nil, fmt.Errorf("%w: table %q has %d columns, VALUES has %d", storage.ErrSchemaError, s.Table, len(table.Schema.Columns), len(s.Vals))
		}
		cols = make([]string, len(table.Schema.Columns))
		for i, c := range table.Schema.Columns {
			cols[i] = c.Name
		}
	}

	row := make(storage.Row, len(cols))
	for i, col := range cols {
		idx := table.Schema.IndexOf(col)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCol, col)
		}
		v, err := evalValue(nil, s.Vals[i])
		if err != nil {
			return nil, err
		}
		if v.Type != table.Schema.Columns[idx].Type {
			return nil, fmt.Errorf("%w: column %q expects %s, got %s", storage.ErrTypeError, col, table.Schema.Columns[idx].Type, v.Type)
		}
		row[col] = v
	}
	if err := table.Insert(row); err != nil {
		return nil, err
	}
	return &Result{RowsAffected: 1}, nil
}

func (ex *Executor) execUpdate(s *UpdateStmt) (*Result, error) {
	table, err := ex.db.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	pkCol := table.Schema.PKColumn()

	changes := make(storage.Row, len(s.Sets))
	for col, expr := range s.Sets {
		v, err := evalValue(nil, expr)
		if err != nil {
			return nil, err
		}
		changes[col] = v
	}

	var targets []int64
	if s.Where == nil {
		rows, err := table.SelectAll()
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	} else if key, ok := equalityOnPK(s.Where, pkCol); ok {
		targets = []int64{key}
	} else if plan, ok := rangeOnPK(s.Where, pkCol); ok {
		rows, err := table.RangeByPK(plan.lo, plan.hi, plan.loIncl, plan.hiIncl)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	} else {
		rows, err := scanFiltered(table, s.Where)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	}

	count := 0
	for _, pk := range targets {
		if err := table.UpdateByPK(pk, changes); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		count++
	}
	return &Result{RowsAffected: count}, nil
}

func (ex *Executor) execDelete(s *DeleteStmt) (*Result, error) {
	table, err := ex.db.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	pkCol := table.Schema.PKColumn()

	var targets []int64
	if s.Where == nil {
		rows, err := table.SelectAll()
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	} else if key, ok := equalityOnPK(s.Where, pkCol); ok {
		targets = []int64{key}
	} else if plan, ok := rangeOnPK(s.Where, pkCol); ok {
		rows, err := table.RangeByPK(plan.lo, plan.hi, plan.loIncl, plan.hiIncl)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	} else {
		rows, err := scanFiltered(table, s.Where)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			targets = append(targets, row[pkCol].Int)
		}
	}

	count := 0
	for _, pk := range targets {
		if err := table.DeleteByPK(pk); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		count++
	}
	return &Result{RowsAffected: count}, nil
}

func (ex *Executor) execCreateTable(s *CreateTableStmt) (*Result, error) {
	if err := ex.db.CreateTable(s.Table, storage.Schema{Columns: s.Cols}); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (ex *Executor) execDropTable(s *DropTableStmt) (*Result, error) {
	if err := ex.db.DropTable(s.Table); err != nil {
		return nil, err
	}
	return &Result{}, nil
}
