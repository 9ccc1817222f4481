package queryir

// PopulationName is the output that selects which patients are included.
// It must be a boolean Value and is never projected as a column.
const PopulationName = "population"

// PatientIDName is the key column of every result and cannot name an output.
const PatientIDName = "patient_id"

// Output binds a name to a Value or a Literal.
type Output struct {
	Name  string
	Value Operand
}

// Cohort is an ordered mapping from output names to operands.
// Output order is preserved by the compiler and the serializer.
type Cohort struct {
	Outputs []Output
}

// NewCohort returns an empty cohort.
func NewCohort() *Cohort {
	return &Cohort{}
}

// Add appends an output, or replaces the operand of an existing output with
// the same name in place. It returns the cohort for chaining.
func (c *Cohort) Add(name string, value Operand) *Cohort {
	for i := range c.Outputs {
		if c.Outputs[i].Name == name {
			c.Outputs[i].Value = value
			return c
		}
	}
	c.Outputs = append(c.Outputs, Output{Name: name, Value: value})
	return c
}

// Lookup returns the operand bound to name.
func (c *Cohort) Lookup(name string) (Operand, bool) {
	for _, o := range c.Outputs {
		if o.Name == name {
			return o.Value, true
		}
	}
	return nil, false
}

// Population returns the population value, if present and node valued.
func (c *Cohort) Population() (Value, bool) {
	op, ok := c.Lookup(PopulationName)
	if !ok {
		return nil, false
	}
	v, ok := op.(Value)
	return v, ok
}

// Names returns the output names in order.
func (c *Cohort) Names() []string {
	names := make([]string, len(c.Outputs))
	for i, o := range c.Outputs {
		names[i] = o.Name
	}
	return names
}

// Roots returns the node-valued outputs in order.
func (c *Cohort) Roots() []Node {
	var roots []Node
	for _, o := range c.Outputs {
		if v, ok := o.Value.(Value); ok {
			roots = append(roots, v)
		}
	}
	return roots
}
