package queryir

// From starts a chain at the named logical table.
func From(name string) *BaseTable {
	return &BaseTable{Name: name}
}

// Filter restricts the table to rows where column <op> value.
func (t *BaseTable) Filter(column string, op Operator, value Operand) *FilteredTable {
	return filter(t, column, op, value)
}

// Filter restricts the table to rows where column <op> value.
func (t *FilteredTable) Filter(column string, op Operator, value Operand) *FilteredTable {
	return filter(t, column, op, value)
}

// Where is Filter with Eq.
func (t *BaseTable) Where(column string, value Operand) *FilteredTable {
	return filter(t, column, Eq, value)
}

// Where is Filter with Eq.
func (t *FilteredTable) Where(column string, value Operand) *FilteredTable {
	return filter(t, column, Eq, value)
}

// Between keeps rows with lo <= column <= hi.
func (t *BaseTable) Between(column string, lo, hi Operand) *FilteredTable {
	return between(t, column, lo, hi)
}

// Between keeps rows with lo <= column <= hi.
func (t *FilteredTable) Between(column string, lo, hi Operand) *FilteredTable {
	return between(t, column, lo, hi)
}

// OnOrBefore keeps rows with column <= value.
func (t *BaseTable) OnOrBefore(column string, value Operand) *FilteredTable {
	return filter(t, column, Le, value)
}

// OnOrBefore keeps rows with column <= value.
func (t *FilteredTable) OnOrBefore(column string, value Operand) *FilteredTable {
	return filter(t, column, Le, value)
}

// OnOrAfter keeps rows with column >= value.
func (t *BaseTable) OnOrAfter(column string, value Operand) *FilteredTable {
	return filter(t, column, Ge, value)
}

// OnOrAfter keeps rows with column >= value.
func (t *FilteredTable) OnOrAfter(column string, value Operand) *FilteredTable {
	return filter(t, column, Ge, value)
}

// FirstBy selects the row with the smallest sort key per patient.
func (t *BaseTable) FirstBy(columns ...string) *Row { return rowBy(t, columns, false) }

// FirstBy selects the row with the smallest sort key per patient.
func (t *FilteredTable) FirstBy(columns ...string) *Row { return rowBy(t, columns, false) }

// LastBy selects the row with the largest sort key per patient.
func (t *BaseTable) LastBy(columns ...string) *Row { return rowBy(t, columns, true) }

// LastBy selects the row with the largest sort key per patient.
func (t *FilteredTable) LastBy(columns ...string) *Row { return rowBy(t, columns, true) }

// Earliest is FirstBy("date").
func (t *BaseTable) Earliest() *Row { return rowBy(t, []string{"date"}, false) }

// Earliest is FirstBy("date").
func (t *FilteredTable) Earliest() *Row { return rowBy(t, []string{"date"}, false) }

// Latest is LastBy("date").
func (t *BaseTable) Latest() *Row { return rowBy(t, []string{"date"}, true) }

// Latest is LastBy("date").
func (t *FilteredTable) Latest() *Row { return rowBy(t, []string{"date"}, true) }

// ActiveAsOf selects the registration-shaped row covering date: the latest
// row (by date_start, date_end) with date_start <= date <= date_end.
func (t *BaseTable) ActiveAsOf(date Operand) *Row { return activeAsOf(t, date) }

// ActiveAsOf selects the registration-shaped row covering date: the latest
// row (by date_start, date_end) with date_start <= date <= date_end.
func (t *FilteredTable) ActiveAsOf(date Operand) *Row { return activeAsOf(t, date) }

// Count counts rows per patient.
func (t *BaseTable) Count() *ValueFromAggregate { return aggregate(t, Count, "") }

// Count counts rows per patient.
func (t *FilteredTable) Count() *ValueFromAggregate { return aggregate(t, Count, "") }

// Exists is true for every patient with at least one row.
func (t *BaseTable) Exists() *ValueFromAggregate { return aggregate(t, Exists, "") }

// Exists is true for every patient with at least one row.
func (t *FilteredTable) Exists() *ValueFromAggregate { return aggregate(t, Exists, "") }

// Aggregate applies fn to column over every row per patient.
func (t *BaseTable) Aggregate(fn AggregateFunc, column string) *ValueFromAggregate {
	return aggregate(t, fn, column)
}

// Aggregate applies fn to column over every row per patient.
func (t *FilteredTable) Aggregate(fn AggregateFunc, column string) *ValueFromAggregate {
	return aggregate(t, fn, column)
}

// Get reads column from the selected row.
func (r *Row) Get(column string) *ValueFromRow {
	return &ValueFromRow{Source: r, Column: column}
}

func filter(src Table, column string, op Operator, value Operand) *FilteredTable {
	return &FilteredTable{Source: src, Column: column, Operator: op, Value: value}
}

func between(src Table, column string, lo, hi Operand) *FilteredTable {
	return filter(src, column, Ge, lo).Filter(column, Le, hi)
}

func rowBy(src Table, columns []string, descending bool) *Row {
	return &Row{Source: src, SortColumns: append([]string(nil), columns...), Descending: descending}
}

func activeAsOf(src Table, date Operand) *Row {
	return filter(src, "date_start", Le, date).
		Filter("date_end", Ge, date).
		LastBy("date_start", "date_end")
}

func aggregate(src Table, fn AggregateFunc, column string) *ValueFromAggregate {
	return &ValueFromAggregate{Source: src, Function: fn, Column: column}
}
