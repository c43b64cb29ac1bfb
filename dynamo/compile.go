package dynamo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// exprContext accumulates synthetic placeholders for one request. All
// expressions of a request share one index space, so names and values from
// nested couplings, update clauses and overwrite guards never collide.
type exprContext struct {
	names  map[string]string
	values map[string]types.AttributeValue
	next   int
}

func newExprContext() *exprContext {
	return &exprContext{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// name allocates a placeholder for one attribute name segment.
func (c *exprContext) name(segment string) string {
	p := fmt.Sprintf("#n%d", c.next)
	c.next++
	c.names[p] = segment
	return p
}

// value allocates a placeholder for one literal.
func (c *exprContext) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", store.WrapError(store.StatusInvalidArgument, "unmarshalable literal", err)
	}
	return c.valueAV(av), nil
}

// valueAV allocates a placeholder for an already-marshaled literal.
func (c *exprContext) valueAV(av types.AttributeValue) string {
	p := fmt.Sprintf(":v%d", c.next)
	c.next++
	c.values[p] = av
	return p
}

// apply copies the accumulated placeholder tables into a request, leaving
// them nil when empty since DynamoDB rejects empty expression maps.
func (c *exprContext) apply(names *map[string]string, values *map[string]types.AttributeValue) {
	if len(c.names) > 0 {
		*names = c.names
	}
	if len(c.values) > 0 {
		*values = c.values
	}
}

// compileCoupling renders a condition tree as a DynamoDB condition/filter
// expression. The empty coupling compiles to the empty string.
func compileCoupling(c *store.Coupling, ectx *exprContext) (string, error) {
	if c.Empty() {
		return "", nil
	}
	switch c.Kind {
	case store.CouplingSingle:
		return compileCondition(c.Condition, ectx)
	case store.CouplingAnd, store.CouplingOr:
		left, err := compileCoupling(c.Left, ectx)
		if err != nil {
			return "", err
		}
		right, err := compileCoupling(c.Right, ectx)
		if err != nil {
			return "", err
		}
		op := "AND"
		if c.Kind == store.CouplingOr {
			op = "OR"
		}
		return fmt.Sprintf("(%s) %s (%s)", left, op, right), nil
	default:
		return "", store.Errorf(store.StatusInvalidArgument, "unknown coupling kind %d", c.Kind)
	}
}

func compileCondition(cond store.Condition, ectx *exprContext) (string, error) {
	segments := cond.Path.Segments()
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = ectx.name(seg)
	}
	pathExpr := strings.Join(parts, ".")
	if cond.Path.Size() {
		pathExpr = "size(" + pathExpr + ")"
	}

	switch cond.Kind {
	case store.ConditionExists:
		return fmt.Sprintf("attribute_exists(%s)", pathExpr), nil
	case store.ConditionNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", pathExpr), nil
	case store.ConditionCompare:
		vp, err := ectx.value(cond.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", pathExpr, cond.Op, vp), nil
	case store.ConditionArrayElementExists:
		expr, err := compileContains(pathExpr, cond.Value, ectx)
		if err != nil {
			return "", err
		}
		return expr, nil
	case store.ConditionArrayElementNotExists:
		expr, err := compileContains(pathExpr, cond.Value, ectx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", expr), nil
	default:
		return "", store.Errorf(store.StatusInvalidArgument, "unknown condition kind %d", cond.Kind)
	}
}

// compileContains renders array membership under canonical-string equality.
// Elements may be stored in their raw kind or as canonical strings, so
// non-string literals probe both forms; DynamoDB's own numeric equality
// covers integer-vs-double within the raw probe. A string literal in
// canonical number form likewise probes the stored number, so "2" finds a
// stored numeric 2 the same way the client evaluator does.
func compileContains(pathExpr string, value any, ectx *exprContext) (string, error) {
	canon, ok := store.CanonicalElement(value)
	if !ok {
		return "", store.Errorf(store.StatusInvalidArgument,
			"array-element value of kind %s has no canonical form", store.KindOf(value))
	}
	canonPlaceholder := ectx.valueAV(&types.AttributeValueMemberS{Value: canon})
	if _, isString := value.(string); isString {
		if !isCanonicalNumber(canon) {
			return fmt.Sprintf("contains(%s, %s)", pathExpr, canonPlaceholder), nil
		}
		numPlaceholder := ectx.valueAV(&types.AttributeValueMemberN{Value: canon})
		return fmt.Sprintf("contains(%s, %s) OR contains(%s, %s)",
			pathExpr, canonPlaceholder, pathExpr, numPlaceholder), nil
	}
	rawPlaceholder, err := ectx.value(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("contains(%s, %s) OR contains(%s, %s)",
		pathExpr, canonPlaceholder, pathExpr, rawPlaceholder), nil
}

// isCanonicalNumber reports whether s is exactly the canonical decimal form
// of some number. Only then does a stored number canonicalize back to s, so
// "2" gets a numeric probe but "2.0" and "02" do not.
func isCanonicalNumber(s string) bool {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return strconv.FormatFloat(n, 'f', -1, 64) == s
}
