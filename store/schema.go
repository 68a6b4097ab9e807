package store

import "fmt"

// ColumnType controls how values are encoded and decoded.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInt
	TypeReal
	TypeBool
	TypeTime
	TypeJSON
)

// Column describes one table column.
type Column struct {
	Name    string
	Type    ColumnType
	Mutable bool // may be changed by UpdateOne
}

// Table is the whitelist of columns a table accepts.
type Table struct {
	Name    string
	Columns []Column
}

const (
	TableLeads         = "leads"
	TableConversations = "conversations"
)

var tables = map[string]Table{
	TableLeads: {
		Name: TableLeads,
		Columns: []Column{
			{Name: "id"},
			{Name: "employee_id"},
			{Name: "source_tool"},
			{Name: "thread_id"},
			{Name: "run_id"},
			{Name: "tool_call_id"},
			{Name: "business_name"},
			{Name: "contact_name"},
			{Name: "contact_title"},
			{Name: "email"},
			{Name: "phone"},
			{Name: "website"},
			{Name: "address"},
			{Name: "city"},
			{Name: "state"},
			{Name: "postal_code"},
			{Name: "country"},
			{Name: "categories", Type: TypeJSON},
			{Name: "rating", Type: TypeReal},
			{Name: "review_count", Type: TypeInt},
			{Name: "relevance_score", Type: TypeInt},
			{Name: "contact_role_score", Type: TypeInt},
			{Name: "location_score", Type: TypeInt},
			{Name: "completeness_score", Type: TypeInt},
			{Name: "online_presence_score", Type: TypeInt},
			{Name: "total_score", Type: TypeInt},
			{Name: "raw_data", Type: TypeJSON},
			{Name: "validated", Type: TypeBool, Mutable: true},
			{Name: "outreach_sent", Type: TypeBool, Mutable: true},
			{Name: "response_received", Type: TypeBool, Mutable: true},
			{Name: "converted", Type: TypeBool, Mutable: true},
			{Name: "notes", Mutable: true},
			{Name: "created_at", Type: TypeTime},
			{Name: "updated_at", Type: TypeTime},
		},
	},
	TableConversations: {
		Name: TableConversations,
		Columns: []Column{
			{Name: "id"},
			{Name: "thread_id"},
			{Name: "employee_id"},
			{Name: "run_id"},
			{Name: "created_at", Type: TypeTime},
		},
	},
}

// LookupTable returns the table definition for name.
func LookupTable(name string) (Table, error) {
	t, ok := tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has the named column.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
