package store

// Matches evaluates the coupling against a document in process. Backends
// without native filter expressions use this as their evaluator; backends
// with one compile the same tree instead, and the two always agree.
//
// A missing intermediate path segment makes Exists false and any comparison
// false, never an error. Cross-kind comparisons are false, except that
// integer and double compare numerically.
func (c *Coupling) Matches(doc Document) bool {
	if c.Empty() {
		return true
	}
	switch c.Kind {
	case CouplingSingle:
		return c.Condition.matches(doc)
	case CouplingAnd:
		return c.Left.Matches(doc) && c.Right.Matches(doc)
	case CouplingOr:
		return c.Left.Matches(doc) || c.Right.Matches(doc)
	default:
		return false
	}
}

func (c Condition) matches(doc Document) bool {
	node, found := lookupPath(doc, c.Path.segments)
	switch c.Kind {
	case ConditionExists:
		return found
	case ConditionNotExists:
		return !found
	case ConditionCompare:
		if !found {
			return false
		}
		if c.Path.size {
			arr, ok := node.([]any)
			if !ok {
				return false
			}
			want, ok := NumberValue(c.Value)
			if !ok {
				return false
			}
			return compareFloats(float64(len(arr)), c.Op, want)
		}
		return compareValues(node, c.Op, c.Value)
	case ConditionArrayElementExists:
		return found && arrayContains(node, c.Value)
	case ConditionArrayElementNotExists:
		return !found || !arrayContains(node, c.Value)
	default:
		return false
	}
}

// lookupPath walks doc along segments, descending through nested maps.
func lookupPath(doc Document, segments []string) (any, bool) {
	var node any = map[string]any(doc)
	for _, seg := range segments {
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

func compareValues(node any, op CompareOp, want any) bool {
	ln, lok := NumberValue(node)
	rn, rok := NumberValue(want)
	if lok && rok {
		return compareFloats(ln, op, rn)
	}
	if lok != rok {
		return false
	}
	switch l := node.(type) {
	case string:
		r, ok := want.(string)
		if !ok {
			return false
		}
		return compareStrings(l, op, r)
	case bool:
		r, ok := want.(bool)
		if !ok {
			return false
		}
		switch op {
		case OpEqual:
			return l == r
		case OpNotEqual:
			return l != r
		}
		return false
	default:
		return false
	}
}

func compareFloats(l float64, op CompareOp, r float64) bool {
	switch op {
	case OpEqual:
		return l == r
	case OpNotEqual:
		return l != r
	case OpLess:
		return l < r
	case OpLessOrEqual:
		return l <= r
	case OpGreater:
		return l > r
	case OpGreaterOrEqual:
		return l >= r
	}
	return false
}

func compareStrings(l string, op CompareOp, r string) bool {
	switch op {
	case OpEqual:
		return l == r
	case OpNotEqual:
		return l != r
	case OpLess:
		return l < r
	case OpLessOrEqual:
		return l <= r
	case OpGreater:
		return l > r
	case OpGreaterOrEqual:
		return l >= r
	}
	return false
}

// arrayContains reports membership by canonical string equality, so the
// integer 3 matches the string "3" regardless of the stored kind.
func arrayContains(node, want any) bool {
	arr, ok := node.([]any)
	if !ok {
		return false
	}
	wantCanon, ok := CanonicalElement(want)
	if !ok {
		return false
	}
	for _, el := range arr {
		if canon, ok := CanonicalElement(el); ok && canon == wantCanon {
			return true
		}
	}
	return false
}
