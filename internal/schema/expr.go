package schema

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// Keys accepted by each expression form. The first key of each form is its head.
var (
	scalarRefinementKeys = []string{
		"min", "max", "exclusive_min", "exclusive_max",
		"pattern", "min_length", "max_length",
		"enum", "const",
		"gte_field", "gt_field", "lte_field", "lt_field",
	}
	formKeys = map[string][]string{
		"type":   append([]string{"type", "description"}, scalarRefinementKeys...),
		"fields": {"fields", "closed", "when", "description"},
		"items":  {"items", "min_items", "max_items", "description"},
		"one_of": {"one_of", "description"},
		"all_of": {"all_of", "closed", "description"},
		"ref":    {"ref", "description"},
		"when":   {"when", "description"},
		"enum":   {"enum", "description"},
		"const":  {"const", "description"},
	}
	// Order in which heads are recognized
	heads = []string{"type", "fields", "items", "one_of", "all_of", "ref", "when", "enum", "const"}

	predicateOps   = []string{"equals", "not_equals", "in", "present", "absent"}
	conditionKeys  = append([]string{"field", "then"}, predicateOps...)
	dynamicBoundOp = map[string]types.Op{
		"gte_field": types.OpGTE,
		"gt_field":  types.OpGT,
		"lte_field": types.OpLTE,
		"lt_field":  types.OpLT,
	}
)

// ParseExpr parses one inline type expression written in the document
// syntax, e.g. `int` or `{type: string, pattern: "^[A-Z]{3}$"}`
func ParseExpr(data []byte) (types.Expr, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}
	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	p := &exprParser{}
	expr := p.expr(root, "expr")
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return expr, nil
}

// exprParser accumulates errors while turning nodes into expressions
type exprParser struct {
	errs        ValidationErrors
	description string
}

func (p *exprParser) fail(node *yaml.Node, path, suggestion, format string, args ...any) {
	p.errs = append(p.errs, ValidationError{
		Field:      path,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestion,
		Line:       node.Line,
	})
}

// entry is one key of a mapping node
type entry struct {
	key *yaml.Node
	val *yaml.Node
}

// mapping returns the entries of a mapping node by key, reporting duplicates
func (p *exprParser) mapping(node *yaml.Node, path string) (map[string]entry, []string) {
	entries := make(map[string]entry, len(node.Content)/2)
	var order []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if _, dup := entries[k.Value]; dup {
			p.fail(k, path+"."+k.Value, "", "duplicate key '%s'", k.Value)
			continue
		}
		entries[k.Value] = entry{key: k, val: node.Content[i+1]}
		order = append(order, k.Value)
	}
	return entries, order
}

func (p *exprParser) definition(node *yaml.Node, path string) types.Expr {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "description" {
				p.description = node.Content[i+1].Value
			}
		}
	}
	return p.expr(node, path)
}

func (p *exprParser) expr(node *yaml.Node, path string) types.Expr {
	switch node.Kind {
	case yaml.ScalarNode:
		return p.named(node, path)
	case yaml.MappingNode:
		return p.mappingExpr(node, path)
	case yaml.AliasNode:
		return p.expr(node.Alias, path)
	}
	p.fail(node, path, "write a type name like 'string' or a mapping like '{type: int, min: 0}'", "expected a type expression")
	return nil
}

// named resolves a bare name to a built-in atom or a reference
func (p *exprParser) named(node *yaml.Node, path string) types.Expr {
	name := strings.TrimSpace(node.Value)
	if atom, ok := types.Lookup(name); ok {
		return atom
	}
	ref, err := types.ParseRef(name)
	if err != nil {
		p.fail(node, path, "", "%v", err)
		return nil
	}
	if !isIdentifier(ref.Name) || (ref.Package != "" && !packageNamePattern.MatchString(ref.Package)) {
		p.fail(node, path, didYouMean(name, types.KindNames()), "'%s' is neither a built-in type nor a definition name", name)
		return nil
	}
	return ref
}

func (p *exprParser) mappingExpr(node *yaml.Node, path string) types.Expr {
	entries, order := p.mapping(node, path)

	head := ""
	for _, h := range heads {
		if _, ok := entries[h]; ok {
			head = h
			break
		}
	}
	if head == "" {
		p.fail(node, path, "add one of: "+strings.Join(heads, ", "), "expression has no form key")
		return nil
	}
	if !p.checkKeys(entries, order, formKeys[head], path, head) {
		return nil
	}

	switch head {
	case "type":
		return p.scalar(entries, path)
	case "fields":
		return p.structure(entries, path)
	case "items":
		return p.list(entries, path)
	case "one_of":
		alts := p.sequence(entries["one_of"].val, path+".one_of")
		if len(alts) == 0 {
			p.fail(entries["one_of"].val, path+".one_of", "", "one_of needs at least one alternative")
			return nil
		}
		return types.NewUnion(alts...)
	case "all_of":
		parts := p.sequence(entries["all_of"].val, path+".all_of")
		if len(parts) == 0 {
			p.fail(entries["all_of"].val, path+".all_of", "", "all_of needs at least one expression")
			return nil
		}
		return types.AllOf(p.boolean(entries, "closed", path), parts...)
	case "ref":
		return p.named(entries["ref"].val, path+".ref")
	case "when":
		conds := p.conditionals(entries["when"].val, path+".when")
		if len(conds) == 1 {
			return conds[0]
		}
		return &types.Struct{Conditionals: conds}
	case "enum":
		lits := p.literals(entries["enum"].val, path+".enum")
		if len(lits) == 0 {
			return nil
		}
		return types.Enum(lits...)
	case "const":
		v, ok := p.literal(entries["const"].val, path+".const")
		if !ok {
			return nil
		}
		return types.Literal(v)
	}
	return nil
}

// checkKeys rejects keys the form does not accept
func (p *exprParser) checkKeys(entries map[string]entry, order, allowed []string, path, form string) bool {
	ok := true
	for _, k := range order {
		if contains(allowed, k) {
			continue
		}
		ok = false
		suggestion := didYouMean(k, allowed)
		if suggestion == "" {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			suggestion = "allowed keys: " + strings.Join(sorted, ", ")
		}
		p.fail(entries[k].key, path+"."+k, suggestion, "unknown key '%s' in %s expression", k, form)
	}
	return ok
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func (p *exprParser) scalar(entries map[string]entry, path string) types.Expr {
	typeNode := entries["type"].val
	base := p.named(typeNode, path+".type")
	if base == nil {
		return nil
	}

	atom, isAtom := base.(*types.Atom)
	if !isAtom {
		for _, k := range scalarRefinementKeys {
			if e, ok := entries[k]; ok {
				p.fail(e.key, path+"."+k, "compose with all_of: ["+typeNode.Value+", {type: ..., "+k+": ...}]",
					"refinement '%s' needs a built-in scalar type, got '%s'", k, typeNode.Value)
				return nil
			}
		}
		return base
	}

	number := atom.Kind == types.KindNumber
	text := atom.Kind == types.KindString
	requireKind := func(k string, want bool, kind string) bool {
		if want {
			return true
		}
		p.fail(entries[k].key, path+"."+k, "", "'%s' applies to %s types, not '%s'", k, kind, typeNode.Value)
		return false
	}

	for _, k := range []string{"min", "max", "exclusive_min", "exclusive_max"} {
		e, ok := entries[k]
		if !ok || !requireKind(k, number, "numeric") {
			continue
		}
		var n float64
		if err := e.val.Decode(&n); err != nil {
			p.fail(e.val, path+"."+k, "", "'%s' must be a number", k)
			continue
		}
		b := &types.Bound{Value: n, Exclusive: strings.HasPrefix(k, "exclusive_")}
		if strings.HasSuffix(k, "min") {
			atom.Min = b
		} else {
			atom.Max = b
		}
	}

	for _, k := range []string{"min_length", "max_length"} {
		e, ok := entries[k]
		if !ok || !requireKind(k, text, "string") {
			continue
		}
		var n int
		if err := e.val.Decode(&n); err != nil || n < 0 {
			p.fail(e.val, path+"."+k, "", "'%s' must be a non-negative integer", k)
			continue
		}
		if k == "min_length" {
			atom.MinLength = &n
		} else {
			atom.MaxLength = &n
		}
	}

	if e, ok := entries["pattern"]; ok && requireKind("pattern", text, "string") {
		var patterns []string
		switch e.val.Kind {
		case yaml.ScalarNode:
			patterns = []string{e.val.Value}
		case yaml.SequenceNode:
			if err := e.val.Decode(&patterns); err != nil {
				p.fail(e.val, path+".pattern", "", "'pattern' must be a string or a list of strings")
				patterns = nil
			}
		default:
			p.fail(e.val, path+".pattern", "", "'pattern' must be a string or a list of strings")
		}
		for _, pat := range patterns {
			if _, err := types.CompilePattern(pat); err != nil {
				p.fail(e.val, path+".pattern", "", "%v", err)
				continue
			}
			atom.Patterns = append(atom.Patterns, pat)
		}
		atom.Patterns = types.NormalizePatterns(atom.Patterns)
	}

	for _, k := range []string{"gte_field", "gt_field", "lte_field", "lt_field"} {
		op := dynamicBoundOp[k]
		e, ok := entries[k]
		if !ok || !requireKind(k, number, "numeric") {
			continue
		}
		fp, err := value.ParsePath(e.val.Value)
		if err != nil {
			p.fail(e.val, path+"."+k, "", "'%s' must name a sibling field: %v", k, err)
			continue
		}
		atom.Dynamic = append(atom.Dynamic, types.DynamicBound{Op: op, Field: fp})
	}
	atom.Dynamic = types.NormalizeDynamic(atom.Dynamic)

	var lits []value.Value
	if e, ok := entries["enum"]; ok {
		lits = append(lits, p.literals(e.val, path+".enum")...)
	}
	if e, ok := entries["const"]; ok {
		if v, ok := p.literal(e.val, path+".const"); ok {
			lits = append(lits, v)
		}
	}
	if lits != nil {
		for _, l := range lits {
			if types.KindOf(l) != atom.Kind {
				p.fail(typeNode, path, "", "literal %s is not a %s", l, atom.TypeName())
			}
		}
		atom.Literals = types.NormalizeLiterals(lits)
	}

	if atom.Min != nil && atom.Max != nil && atom.Min.Value > atom.Max.Value {
		p.fail(typeNode, path, "swap min and max", "min %v is greater than max %v", atom.Min.Value, atom.Max.Value)
	}
	return atom
}

func (p *exprParser) structure(entries map[string]entry, path string) types.Expr {
	fieldsNode := entries["fields"].val
	s := &types.Struct{Closed: p.boolean(entries, "closed", path)}

	if fieldsNode.Kind != yaml.MappingNode {
		p.fail(fieldsNode, path+".fields", "write 'fields: {name: string}'", "fields must be a mapping of name to field spec")
		return nil
	}

	seen := map[string]bool{}
	for i := 0; i+1 < len(fieldsNode.Content); i += 2 {
		k, v := fieldsNode.Content[i], fieldsNode.Content[i+1]
		fpath := path + ".fields." + k.Value
		if seen[k.Value] {
			p.fail(k, fpath, "", "duplicate field '%s'", k.Value)
			continue
		}
		seen[k.Value] = true
		if !isIdentifier(k.Value) {
			p.fail(k, fpath, "", "field name '%s' is not a valid identifier", k.Value)
			continue
		}
		if spec, ok := p.field(k.Value, v, fpath); ok {
			s.Fields = append(s.Fields, spec)
		}
	}

	if e, ok := entries["when"]; ok {
		s.Conditionals = p.conditionals(e.val, path+".when")
	}
	return s
}

// field parses a field spec. A bare name is an optional field of that type;
// a mapping adds required/default to an inline expression.
func (p *exprParser) field(name string, node *yaml.Node, path string) (types.FieldSpec, bool) {
	if node.Kind != yaml.MappingNode {
		t := p.expr(node, path)
		return types.FieldSpec{Name: name, Type: t}, t != nil
	}

	spec := types.FieldSpec{Name: name}
	exprNode := &yaml.Node{Kind: yaml.MappingNode, Line: node.Line, Column: node.Column}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		switch k.Value {
		case "required":
			if err := v.Decode(&spec.Required); err != nil {
				p.fail(v, path+".required", "", "required must be true or false")
			}
		case "default":
			def, err := value.FromNode(v)
			if err != nil {
				p.fail(v, path+".default", "", "%v", err)
				continue
			}
			spec.Default = &def
		default:
			exprNode.Content = append(exprNode.Content, k, v)
		}
	}

	if len(exprNode.Content) == 0 {
		p.fail(node, path, "add 'type: ...'", "field '%s' has no type", name)
		return spec, false
	}
	before := len(p.errs)
	spec.Type = p.expr(exprNode, path)
	return spec, len(p.errs) == before && spec.Type != nil
}

func (p *exprParser) list(entries map[string]entry, path string) types.Expr {
	elem := p.expr(entries["items"].val, path+".items")
	if elem == nil {
		return nil
	}
	l := &types.List{Elem: elem}
	for _, k := range []string{"min_items", "max_items"} {
		e, ok := entries[k]
		if !ok {
			continue
		}
		var n int
		if err := e.val.Decode(&n); err != nil || n < 0 {
			p.fail(e.val, path+"."+k, "", "'%s' must be a non-negative integer", k)
			continue
		}
		if k == "min_items" {
			l.MinItems = &n
		} else {
			l.MaxItems = &n
		}
	}
	if l.MinItems != nil && l.MaxItems != nil && *l.MinItems > *l.MaxItems {
		p.fail(entries["items"].key, path, "", "min_items %d is greater than max_items %d", *l.MinItems, *l.MaxItems)
	}
	return l
}

func (p *exprParser) sequence(node *yaml.Node, path string) []types.Expr {
	if node.Kind != yaml.SequenceNode {
		p.fail(node, path, "", "expected a list of type expressions")
		return nil
	}
	out := make([]types.Expr, 0, len(node.Content))
	for i, child := range node.Content {
		if e := p.expr(child, fmt.Sprintf("%s[%d]", path, i)); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (p *exprParser) conditionals(node *yaml.Node, path string) []*types.Conditional {
	var nodes []*yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		nodes = node.Content
	case yaml.MappingNode:
		nodes = []*yaml.Node{node}
	default:
		p.fail(node, path, "write 'when: {field: kind, equals: a, then: {...}}'", "expected a condition or list of conditions")
		return nil
	}

	var out []*types.Conditional
	for i, n := range nodes {
		cpath := path
		if node.Kind == yaml.SequenceNode {
			cpath = fmt.Sprintf("%s[%d]", path, i)
		}
		if c := p.condition(n, cpath); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (p *exprParser) condition(node *yaml.Node, path string) *types.Conditional {
	if node.Kind != yaml.MappingNode {
		p.fail(node, path, "", "a condition must be a mapping")
		return nil
	}
	entries, order := p.mapping(node, path)
	if !p.checkKeys(entries, order, conditionKeys, path, "when") {
		return nil
	}

	fe, ok := entries["field"]
	if !ok {
		p.fail(node, path, "add 'field: <sibling field>'", "condition needs a field")
		return nil
	}
	field, err := value.ParsePath(fe.val.Value)
	if err != nil || len(field) == 0 {
		p.fail(fe.val, path+".field", "", "invalid field path '%s'", fe.val.Value)
		return nil
	}

	var ops []string
	for _, op := range predicateOps {
		if _, ok := entries[op]; ok {
			ops = append(ops, op)
		}
	}
	if len(ops) != 1 {
		p.fail(node, path, "use exactly one of: "+strings.Join(predicateOps, ", "), "condition needs exactly one operator, got %d", len(ops))
		return nil
	}

	pred := types.Predicate{Field: field}
	opNode := entries[ops[0]].val
	switch ops[0] {
	case "equals", "not_equals":
		v, ok := p.literal(opNode, path+"."+ops[0])
		if !ok {
			return nil
		}
		pred.Op = types.PredEquals
		if ops[0] == "not_equals" {
			pred.Op = types.PredNotEquals
		}
		pred.Values = []value.Value{v}
	case "in":
		pred.Op = types.PredIn
		pred.Values = types.NormalizeLiterals(p.literals(opNode, path+".in"))
		if len(pred.Values) == 0 {
			return nil
		}
	case "present", "absent":
		var flag bool
		if err := opNode.Decode(&flag); err != nil || !flag {
			p.fail(opNode, path+"."+ops[0], "", "'%s' must be true", ops[0])
			return nil
		}
		pred.Op = types.PredPresent
		if ops[0] == "absent" {
			pred.Op = types.PredAbsent
		}
	}

	te, ok := entries["then"]
	if !ok {
		p.fail(node, path, "add 'then: {fields: {...}}'", "condition needs a then expression")
		return nil
	}
	then := p.expr(te.val, path+".then")
	if then == nil {
		return nil
	}
	return types.When(pred, then)
}

func (p *exprParser) literal(node *yaml.Node, path string) (value.Value, bool) {
	if node.Kind != yaml.ScalarNode {
		p.fail(node, path, "", "expected a scalar literal")
		return value.Value{}, false
	}
	v, err := value.FromNode(node)
	if err != nil {
		p.fail(node, path, "", "%v", err)
		return value.Value{}, false
	}
	return v, true
}

func (p *exprParser) literals(node *yaml.Node, path string) []value.Value {
	if node.Kind != yaml.SequenceNode || len(node.Content) == 0 {
		p.fail(node, path, "write '[a, b, c]'", "expected a non-empty list of literals")
		return nil
	}
	var out []value.Value
	for i, child := range node.Content {
		if v, ok := p.literal(child, fmt.Sprintf("%s[%d]", path, i)); ok {
			out = append(out, v)
		}
	}
	return out
}

func (p *exprParser) boolean(entries map[string]entry, key, path string) bool {
	e, ok := entries[key]
	if !ok {
		return false
	}
	var b bool
	if err := e.val.Decode(&b); err != nil {
		p.fail(e.val, path+"."+key, "", "'%s' must be true or false", key)
	}
	return b
}
