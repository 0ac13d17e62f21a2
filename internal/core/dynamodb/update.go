package dynamodb

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// applyUpdateExpression mutates item per an update expression: a sequence
// of SET / REMOVE / ADD / DELETE clauses in any order, each keyword bounded
// by spaces.
func applyUpdateExpression(item Item, expr string, names map[string]string, values map[string]AttributeValue) error {
	for _, action := range parseUpdateActions(strings.TrimSpace(expr)) {
		var err error
		switch action.keyword {
		case "SET":
			err = applySet(item, action.body, names, values)
		case "REMOVE":
			err = applyRemove(item, action.body, names)
		case "ADD":
			err = applyAdd(item, action.body, names, values)
		case "DELETE":
			err = applyDelete(item, action.body, names, values)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type updateAction struct {
	keyword string
	body    string
}

// parseUpdateActions finds the clause keywords at word boundaries and
// slices out each clause body.
func parseUpdateActions(expr string) []updateAction {
	upper := strings.ToUpper(expr)
	type position struct {
		index   int
		keyword string
	}
	var positions []position

	for _, kw := range []string{"SET", "REMOVE", "ADD", "DELETE"} {
		from := 0
		for {
			rel := strings.Index(upper[from:], kw)
			if rel < 0 {
				break
			}
			abs := from + rel
			atStart := abs == 0 || expr[abs-1] == ' '
			atEnd := abs+len(kw) >= len(expr) || expr[abs+len(kw)] == ' '
			if atStart && atEnd {
				positions = append(positions, position{index: abs, keyword: kw})
			}
			from = abs + len(kw)
		}
	}

	for i := 1; i < len(positions); i++ {
		for j := i; j > 0 && positions[j-1].index > positions[j].index; j-- {
			positions[j-1], positions[j] = positions[j], positions[j-1]
		}
	}

	actions := make([]updateAction, 0, len(positions))
	for i, pos := range positions {
		end := len(expr)
		if i+1 < len(positions) {
			end = positions[i+1].index
		}
		actions = append(actions, updateAction{
			keyword: pos.keyword,
			body:    strings.TrimSpace(expr[pos.index+len(pos.keyword) : end]),
		})
	}
	return actions
}

func applySet(item Item, body string, names map[string]string, values map[string]AttributeValue) error {
	for _, assignment := range splitArgs(body) {
		assignment = strings.TrimSpace(assignment)
		eq := strings.Index(assignment, "=")
		if eq < 0 {
			return errValidation(fmt.Sprintf("Invalid SET expression: %s", assignment))
		}
		attr := resolveName(strings.TrimSpace(assignment[:eq]), names)
		value, err := resolveSetValue(item, strings.TrimSpace(assignment[eq+1:]), names, values)
		if err != nil {
			return err
		}
		item[attr] = value
	}
	return nil
}

// resolveSetValue evaluates a SET right-hand side: a direct reference,
// if_not_exists, list_append, or plus/minus arithmetic on decimal reals.
func resolveSetValue(item Item, valStr string, names map[string]string, values map[string]AttributeValue) (AttributeValue, error) {
	valStr = strings.TrimSpace(valStr)

	if args, ok := functionArgs(valStr, "if_not_exists"); ok {
		pieces := splitArgs(args)
		if len(pieces) == 2 {
			attr := resolveName(strings.TrimSpace(pieces[0]), names)
			if existing, ok := item[attr]; ok {
				return existing, nil
			}
			return resolveSetValue(item, pieces[1], names, values)
		}
	}

	if args, ok := functionArgs(valStr, "list_append"); ok {
		pieces := splitArgs(args)
		if len(pieces) == 2 {
			left, err := resolveSetValue(item, pieces[0], names, values)
			if err != nil {
				return AttributeValue{}, err
			}
			right, err := resolveSetValue(item, pieces[1], names, values)
			if err != nil {
				return AttributeValue{}, err
			}
			combined := make([]AttributeValue, 0, len(left.L)+len(right.L))
			combined = append(combined, left.L...)
			combined = append(combined, right.L...)
			return AttributeValue{L: combined}, nil
		}
	}

	if left, right, isAdd, ok := splitArithmetic(valStr); ok {
		leftVal, err := resolveSetValue(item, left, names, values)
		if err != nil {
			return AttributeValue{}, err
		}
		rightVal, err := resolveSetValue(item, right, names, values)
		if err != nil {
			return AttributeValue{}, err
		}
		ln, _ := leftVal.number()
		rn, _ := rightVal.number()
		var result decimal.Decimal
		if isAdd {
			result = ln.Add(rn)
		} else {
			result = ln.Sub(rn)
		}
		return numberValue(renderNumber(result)), nil
	}

	if strings.HasPrefix(valStr, ":") {
		return resolveValue(valStr, values)
	}

	attr := resolveName(valStr, names)
	if v, ok := item[attr]; ok {
		return v, nil
	}
	return AttributeValue{}, errValidation(fmt.Sprintf("Cannot resolve value: %s", valStr))
}

// splitArithmetic finds a top-level + or - with a non-empty left side.
func splitArithmetic(expr string) (left, right string, isAdd, ok bool) {
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '+':
			if depth == 0 && i > 0 {
				return expr[:i], expr[i+1:], true, true
			}
		case '-':
			if depth == 0 && i > 0 {
				lhs := strings.TrimSpace(expr[:i])
				if lhs != "" && !strings.HasSuffix(lhs, "(") {
					return expr[:i], expr[i+1:], false, true
				}
			}
		}
	}
	return "", "", false, false
}

func applyRemove(item Item, body string, names map[string]string) error {
	for _, part := range strings.Split(body, ",") {
		delete(item, resolveName(strings.TrimSpace(part), names))
	}
	return nil
}

// applyAdd adds to a numeric attribute (creating it if absent) or unions
// into a set attribute.
func applyAdd(item Item, body string, names map[string]string, values map[string]AttributeValue) error {
	for _, clause := range splitArgs(body) {
		parts := strings.SplitN(strings.TrimSpace(clause), " ", 2)
		if len(parts) != 2 {
			return errValidation("Invalid ADD expression")
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		value, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return err
		}

		existing, ok := item[attr]
		if !ok {
			item[attr] = value
			continue
		}

		if en, ok := existing.number(); ok {
			if vn, ok := value.number(); ok {
				item[attr] = numberValue(renderNumber(en.Add(vn)))
				continue
			}
		}

		switch {
		case existing.SS != nil && value.SS != nil:
			item[attr] = AttributeValue{SS: unionStrings(existing.SS, value.SS)}
		case existing.NS != nil && value.NS != nil:
			item[attr] = AttributeValue{NS: unionStrings(existing.NS, value.NS)}
		case existing.BS != nil && value.BS != nil:
			item[attr] = AttributeValue{BS: unionBytes(existing.BS, value.BS)}
		}
	}
	return nil
}

// applyDelete removes elements from a set attribute, dropping the
// attribute entirely when the result is empty.
func applyDelete(item Item, body string, names map[string]string, values map[string]AttributeValue) error {
	for _, clause := range splitArgs(body) {
		parts := strings.SplitN(strings.TrimSpace(clause), " ", 2)
		if len(parts) != 2 {
			return errValidation("Invalid DELETE expression")
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		value, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return err
		}

		existing, ok := item[attr]
		if !ok {
			continue
		}

		switch {
		case existing.SS != nil && value.SS != nil:
			remaining := subtractStrings(existing.SS, value.SS)
			if len(remaining) == 0 {
				delete(item, attr)
			} else {
				item[attr] = AttributeValue{SS: remaining}
			}
		case existing.NS != nil && value.NS != nil:
			remaining := subtractStrings(existing.NS, value.NS)
			if len(remaining) == 0 {
				delete(item, attr)
			} else {
				item[attr] = AttributeValue{NS: remaining}
			}
		case existing.BS != nil && value.BS != nil:
			remaining := subtractBytes(existing.BS, value.BS)
			if len(remaining) == 0 {
				delete(item, attr)
			} else {
				item[attr] = AttributeValue{BS: remaining}
			}
		}
	}
	return nil
}

func unionStrings(a, b []string) []string {
	out := append([]string{}, a...)
	for _, v := range b {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

func subtractStrings(a, remove []string) []string {
	var out []string
	for _, v := range a {
		drop := false
		for _, r := range remove {
			if v == r {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}

func unionBytes(a, b [][]byte) [][]byte {
	out := append([][]byte{}, a...)
	for _, v := range b {
		found := false
		for _, existing := range out {
			if string(existing) == string(v) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

func subtractBytes(a, remove [][]byte) [][]byte {
	var out [][]byte
	for _, v := range a {
		drop := false
		for _, r := range remove {
			if string(v) == string(r) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}
