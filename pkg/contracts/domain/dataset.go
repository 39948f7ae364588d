package domain

// Column is a selectable dataset column; its header is its identity
type Column struct {
	Header string `json:"header"`
}

// Row is one string-keyed record of a dataset
type Row map[string]string

// PaginationMeta describes the page of a dataset that was loaded
type PaginationMeta struct {
	N     int `json:"n,omitempty"`
	Page  int `json:"pg,omitempty"`
	Rows  int `json:"rows,omitempty"`
	Pages int `json:"pages,omitempty"`
}

// Dataset is a loaded page of a named dataframe
type Dataset struct {
	Name    string         `json:"name"`
	Columns []Column       `json:"columns"`
	Rows    []Row          `json:"rows"`
	Meta    PaginationMeta `json:"meta"`
}
