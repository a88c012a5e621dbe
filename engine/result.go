package engine

// Span is the [start, end) byte range of a statement within the SQL text it
// was compiled from.
type Span [2]int

func (s Span) Start() int { return s[0] }
func (s Span) End() int   { return s[1] }

// Values holds the rows produced by one statement under a single header.
type Values struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// Table is the outcome of executing (part of) one statement.
type Table struct {
	SQL      string  `json:"sql"`
	Position Span    `json:"position"`
	Done     bool    `json:"done"`
	Values   *Values `json:"values,omitempty"`
}

// StatementResult is either a Step carrying a Table, or the Finish marker
// that ends a run.
type StatementResult struct {
	Step   *Table `json:"step,omitempty"`
	Finish bool   `json:"finish,omitempty"`
}

// Finish returns the end-of-run marker.
func Finish() StatementResult {
	return StatementResult{Finish: true}
}

func (r StatementResult) IsFinish() bool {
	return r.Step == nil
}
