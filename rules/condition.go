package rules

// Condition is a boolean expression tree over facts.
// Implementations: Equals, GreaterThan, LessThan, Contains, And, Or, Not.
type Condition interface {
	condition()
}

// Equals holds when the fact is structurally equal to Value.
type Equals struct {
	Field string
	Value Value
}

// GreaterThan holds when the numeric fact is greater than Value.
type GreaterThan struct {
	Field string
	Value Value
}

// LessThan holds when the numeric fact is less than Value.
type LessThan struct {
	Field string
	Value Value
}

// Contains holds when a string fact contains Value as a substring, or a list
// fact contains an element equal to Value.
type Contains struct {
	Field string
	Value Value
}

// And holds when every sub-condition holds. An empty And is true.
type And []Condition

// Or holds when any sub-condition holds. An empty Or is false.
type Or []Condition

// Not negates exactly one sub-condition.
type Not struct {
	Condition Condition
}

func (Equals) condition()      {}
func (GreaterThan) condition() {}
func (LessThan) condition()    {}
func (Contains) condition()    {}
func (And) condition()         {}
func (Or) condition()          {}
func (Not) condition()         {}

// Condition tags used by the exchange format.
const (
	TagEquals      = "Equals"
	TagGreaterThan = "GreaterThan"
	TagLessThan    = "LessThan"
	TagContains    = "Contains"
	TagAnd         = "And"
	TagOr          = "Or"
	TagNot         = "Not"
)

// Fields returns the fact names referenced by c, in first-seen order.
func Fields(c Condition) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(Condition)
	walk = func(c Condition) {
		var field string
		switch cond := c.(type) {
		case Equals:
			field = cond.Field
		case GreaterThan:
			field = cond.Field
		case LessThan:
			field = cond.Field
		case Contains:
			field = cond.Field
		case And:
			for _, sub := range cond {
				walk(sub)
			}
			return
		case Or:
			for _, sub := range cond {
				walk(sub)
			}
			return
		case Not:
			walk(cond.Condition)
			return
		default:
			return
		}
		if !seen[field] {
			seen[field] = true
			out = append(out, field)
		}
	}
	walk(c)
	return out
}
