package sheet

// Source is a read-only view over a tabular workbook.
type Source interface {
	// Sheets lists sheet names in workbook order.
	Sheets() []string
	// Rows returns the data rows of a sheet keyed by the header labels of
	// its first row. A missing sheet is an error; an empty sheet is not.
	Rows(name string) ([]Row, error)
}

// Memory is an in-memory Source for tests and fixtures.
type Memory struct {
	order  []string
	sheets map[string][]Row
}

func NewMemory() *Memory {
	return &Memory{sheets: make(map[string][]Row)}
}

func (m *Memory) Add(name string, rows ...Row) *Memory {
	if _, ok := m.sheets[name]; !ok {
		m.order = append(m.order, name)
	}
	m.sheets[name] = append(m.sheets[name], rows...)
	return m
}

func (m *Memory) Sheets() []string { return append([]string(nil), m.order...) }

func (m *Memory) Rows(name string) ([]Row, error) {
	rows, ok := m.sheets[name]
	if !ok {
		return nil, &NotFoundError{Sheet: name}
	}
	return rows, nil
}

// NotFoundError reports a sheet name absent from the workbook.
type NotFoundError struct {
	Sheet string
}

func (e *NotFoundError) Error() string {
	return "sheet not found: " + e.Sheet
}
