package domain

// OperationKind identifies the single active field of an Operation. The kind
// string doubles as the form-field name and as the uniqueness key inside a
// configuration.
type OperationKind string

const (
	OperationKindValue      OperationKind = "value"
	OperationKindFilter     OperationKind = "filter"
	OperationKindExpression OperationKind = "expression"
)

// Valid reports whether k is one of the known kinds
func (k OperationKind) Valid() bool {
	switch k {
	case OperationKindValue, OperationKindFilter, OperationKindExpression:
		return true
	}
	return false
}

// Operation is a single named transformation attached to a configuration.
// Only the field selected by Kind is meaningful; the others are unused slots.
type Operation struct {
	Kind       OperationKind `json:"kind" yaml:"kind" validate:"required,oneof=value filter expression"`
	Value      *string       `json:"value,omitempty" yaml:"value,omitempty"`
	Filter     *string       `json:"filter,omitempty" yaml:"filter,omitempty"`
	Expression *string       `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// NewOperation returns an operation of the given kind with its argument set
func NewOperation(kind OperationKind, argument string) Operation {
	op := Operation{Kind: kind}
	op.SetArgument(argument)
	return op
}

// Argument returns the active field, or "" when unset
func (o Operation) Argument() string {
	var p *string
	switch o.Kind {
	case OperationKindValue:
		p = o.Value
	case OperationKindFilter:
		p = o.Filter
	case OperationKindExpression:
		p = o.Expression
	}
	if p == nil {
		return ""
	}
	return *p
}

// SetArgument writes the field selected by Kind and clears the others
func (o *Operation) SetArgument(argument string) {
	o.Value, o.Filter, o.Expression = nil, nil, nil
	arg := argument
	switch o.Kind {
	case OperationKindValue:
		o.Value = &arg
	case OperationKindFilter:
		o.Filter = &arg
	case OperationKindExpression:
		o.Expression = &arg
	}
}

// Clone returns a copy that shares no pointers with o
func (o Operation) Clone() Operation {
	c := Operation{Kind: o.Kind}
	if o.Value != nil {
		v := *o.Value
		c.Value = &v
	}
	if o.Filter != nil {
		v := *o.Filter
		c.Filter = &v
	}
	if o.Expression != nil {
		v := *o.Expression
		c.Expression = &v
	}
	return c
}

// Configuration is the rule set for one dataset column
type Configuration struct {
	Column     string      `json:"column" yaml:"column" validate:"required"`
	Operations []Operation `json:"operations" yaml:"operations" validate:"required,min=1,dive"`
}

// Clone deep-copies the configuration
func (c Configuration) Clone() Configuration {
	ops := make([]Operation, len(c.Operations))
	for i, op := range c.Operations {
		ops[i] = op.Clone()
	}
	return Configuration{Column: c.Column, Operations: ops}
}

// Kinds lists the operation kinds in positional order
func (c Configuration) Kinds() []OperationKind {
	kinds := make([]OperationKind, len(c.Operations))
	for i, op := range c.Operations {
		kinds[i] = op.Kind
	}
	return kinds
}

// ConfigurationSet is the submission payload
type ConfigurationSet struct {
	Configurations []Configuration `json:"configurations" yaml:"configurations" validate:"required,min=1,dive"`
}

// SubmitResult is what the submission service answers with
type SubmitResult struct {
	Message  string `json:"message"`
	ConfigID string `json:"config_id,omitempty"`
}
