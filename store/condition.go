package store

import "strings"

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEqual          CompareOp = "="
	OpNotEqual       CompareOp = "<>"
	OpLess           CompareOp = "<"
	OpLessOrEqual    CompareOp = "<="
	OpGreater        CompareOp = ">"
	OpGreaterOrEqual CompareOp = ">="
)

func validOp(op CompareOp) bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	}
	return false
}

// Path is a parsed dot-separated attribute path, optionally wrapped in
// size(...) to mean the cardinality of the array at the path.
type Path struct {
	raw      string
	segments []string
	size     bool
}

const sizePrefix = "size("

// ParsePath parses a dot-separated path such as "shipping.address.city" or
// "size(tags)". Bracket index syntax is rejected; use the array-element
// conditions instead of indexing.
func ParsePath(s string) (Path, error) {
	raw := s
	size := false
	if strings.HasPrefix(s, sizePrefix) && strings.HasSuffix(s, ")") {
		size = true
		s = s[len(sizePrefix) : len(s)-1]
	}
	if s == "" {
		return Path{}, NewError(StatusInvalidArgument, "empty attribute path")
	}
	if strings.ContainsAny(s, "[]") {
		return Path{}, Errorf(StatusInvalidArgument,
			"path %q uses index syntax; use array-element conditions instead", raw)
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" {
			return Path{}, Errorf(StatusInvalidArgument, "path %q has an empty segment", raw)
		}
	}
	return Path{raw: raw, segments: segments, size: size}, nil
}

// MustParsePath is ParsePath that panics on error, for statically known paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Segments returns the path's attribute segments.
func (p Path) Segments() []string { return p.segments }

// Size reports whether the path is wrapped in size(...).
func (p Path) Size() bool { return p.size }

func (p Path) String() string { return p.raw }

// ConditionKind discriminates the closed set of condition variants. Adding a
// variant is a compile-time-checked change in the compiler and evaluator.
type ConditionKind int

const (
	ConditionExists ConditionKind = iota + 1
	ConditionNotExists
	ConditionCompare
	ConditionArrayElementExists
	ConditionArrayElementNotExists
)

// Condition is one predicate over a document path.
type Condition struct {
	Kind  ConditionKind
	Path  Path
	Op    CompareOp // ConditionCompare only
	Value any       // ConditionCompare and the array-element kinds
}

// Exists matches documents where the path resolves to a present attribute.
func Exists(path Path) Condition {
	return Condition{Kind: ConditionExists, Path: path}
}

// NotExists matches documents where the path does not resolve.
func NotExists(path Path) Condition {
	return Condition{Kind: ConditionNotExists, Path: path}
}

// Compare matches documents where the value at path compares true against
// value. A size(...) path compares the length of the array at the path.
func Compare(path Path, op CompareOp, value any) Condition {
	return Condition{Kind: ConditionCompare, Path: path, Op: op, Value: value}
}

// ArrayElementExists matches documents whose array at path contains an
// element canonically equal to value (see CanonicalElement).
func ArrayElementExists(path Path, value any) Condition {
	return Condition{Kind: ConditionArrayElementExists, Path: path, Value: value}
}

// ArrayElementNotExists is the negation of ArrayElementExists.
func ArrayElementNotExists(path Path, value any) Condition {
	return Condition{Kind: ConditionArrayElementNotExists, Path: path, Value: value}
}

// CouplingKind discriminates the coupling tree variants.
type CouplingKind int

const (
	CouplingEmpty CouplingKind = iota
	CouplingSingle
	CouplingAnd
	CouplingOr
)

// Coupling is a boolean tree over conditions. A nil *Coupling or the zero
// value is the empty coupling, which matches everything.
type Coupling struct {
	Kind        CouplingKind
	Condition   Condition // CouplingSingle
	Left, Right *Coupling // CouplingAnd, CouplingOr
}

// Single wraps one condition into a coupling.
func Single(c Condition) *Coupling {
	return &Coupling{Kind: CouplingSingle, Condition: c}
}

// And combines two couplings conjunctively.
func And(left, right *Coupling) *Coupling {
	return &Coupling{Kind: CouplingAnd, Left: left, Right: right}
}

// Or combines two couplings disjunctively.
func Or(left, right *Coupling) *Coupling {
	return &Coupling{Kind: CouplingOr, Left: left, Right: right}
}

// Empty reports whether the coupling matches everything.
func (c *Coupling) Empty() bool {
	return c == nil || c.Kind == CouplingEmpty
}

// Validate checks the coupling tree synchronously, before any backend call.
// It rejects unknown variants, invalid operators, size(...) paths outside
// comparisons, comparison literals no stored value can compare against, and
// array-element values without a canonical form.
func (c *Coupling) Validate() error {
	if c.Empty() {
		return nil
	}
	switch c.Kind {
	case CouplingSingle:
		return c.Condition.validate()
	case CouplingAnd, CouplingOr:
		if c.Left == nil || c.Right == nil {
			return NewError(StatusInvalidArgument, "coupling branch is missing a side")
		}
		if err := c.Left.Validate(); err != nil {
			return err
		}
		return c.Right.Validate()
	default:
		return Errorf(StatusInvalidArgument, "unknown coupling kind %d", c.Kind)
	}
}

func (c Condition) validate() error {
	if len(c.Path.segments) == 0 {
		return NewError(StatusInvalidArgument, "condition has no path; construct paths with ParsePath")
	}
	switch c.Kind {
	case ConditionExists, ConditionNotExists:
		if c.Path.size {
			return Errorf(StatusInvalidArgument, "size(%s) is only valid in comparisons", strings.Join(c.Path.segments, "."))
		}
		return nil
	case ConditionCompare:
		if !validOp(c.Op) {
			return Errorf(StatusInvalidArgument, "unknown comparison operator %q", string(c.Op))
		}
		if c.Path.size {
			if _, ok := NumberValue(c.Value); !ok {
				return Errorf(StatusInvalidArgument, "size(%s) must compare against a number", strings.Join(c.Path.segments, "."))
			}
			return nil
		}
		switch KindOf(c.Value) {
		case KindString, KindInteger, KindDouble:
			return nil
		case KindBool:
			// Booleans have no ordering; only equality is meaningful.
			if c.Op != OpEqual && c.Op != OpNotEqual {
				return Errorf(StatusInvalidArgument, "operator %q is not defined for bool literals", string(c.Op))
			}
			return nil
		default:
			return Errorf(StatusInvalidArgument, "comparison literal of kind %s is not comparable", KindOf(c.Value))
		}
	case ConditionArrayElementExists, ConditionArrayElementNotExists:
		if c.Path.size {
			return NewError(StatusInvalidArgument, "size(...) cannot be used with array-element conditions")
		}
		if _, ok := CanonicalElement(c.Value); !ok {
			return Errorf(StatusInvalidArgument, "array-element value of kind %s has no canonical form", KindOf(c.Value))
		}
		return nil
	default:
		return Errorf(StatusInvalidArgument, "unknown condition kind %d", c.Kind)
	}
}
