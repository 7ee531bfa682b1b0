// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve merges the raw per-module trees produced by package
// syntax into a single immutable [model.Compiled] type graph: it indexes
// assignments by (module, name), orders resolution by strongly connected
// component over the reference graph, and computes effective tags and
// propagated constraints.
package resolve

import (
	"fmt"
	"math/big"
	"sort"

	"golang.org/x/sync/errgroup"

	"asn1kit.dev/asn1kit/constraint"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/syntax"
)

// Source is one module's source text to be parsed and resolved.
type Source struct {
	Name string
	Text string
}

// Error is a RESOLVE-ERROR.
type Error struct {
	Module  string
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Module, e.Name, e.Message)
}

// ErrImplicitChoice reports that an IMPLICIT tag mode is applied, directly
// or through a chain of references, to a type whose effective kind is
// CHOICE. X.680 forbids this; this module rejects it rather than silently
// promoting to EXPLICIT. Resolve returns an [Error] whose Message carries
// this error's text; the [Error] does not wrap it, so errors.Is does not
// match ErrImplicitChoice.
var ErrImplicitChoice = fmt.Errorf("IMPLICIT tag applied to CHOICE is not permitted")

// Resolve parses every source concurrently (module texts are independent
// until the cross-module reference phase below) and merges the results
// into one [model.Compiled]. Merging happens by module name once every
// errgroup worker has returned, so the result is independent of completion
// order.
func Resolve(sources []Source) (*model.Compiled, error) {
	modules := make([]*syntax.Module, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			m, err := syntax.Parse(src.Name, src.Text)
			if err != nil {
				return err
			}
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolveModules(modules)
}

// assignmentKey identifies one assignment across the whole compilation.
type assignmentKey struct {
	module string
	name   string
}

type resolver struct {
	arena     *model.Arena
	byKey     map[assignmentKey]*syntax.Assignment
	refs      map[assignmentKey][]assignmentKey
	typeRefs  map[assignmentKey]model.TypeRef
	modules   map[string]*model.ModuleInfo
	moduleTag map[string]syntax.TagDefault
	diags     []model.Diagnostic
	order     []string // module names, for deterministic lookup fallback
}

func resolveModules(modules []*syntax.Module) (*model.Compiled, error) {
	r := &resolver{
		arena:     &model.Arena{},
		byKey:     map[assignmentKey]*syntax.Assignment{},
		refs:      map[assignmentKey][]assignmentKey{},
		typeRefs:  map[assignmentKey]model.TypeRef{},
		modules:   map[string]*model.ModuleInfo{},
		moduleTag: map[string]syntax.TagDefault{},
	}

	for _, m := range modules {
		r.moduleTag[m.Name] = m.TagDefault
		mi := &model.ModuleInfo{Name: m.Name, Types: map[string]model.TypeRef{}, Values: map[string]model.Value{}}
		r.modules[m.Name] = mi
		r.order = append(r.order, m.Name)
		for i := range m.Assignments {
			a := &m.Assignments[i]
			key := assignmentKey{module: m.Name, name: a.Name}
			r.byKey[key] = a
		}
	}

	// Index reference edges (type assignments only; value/object
	// assignments cannot introduce type-graph cycles).
	for key, a := range r.byKey {
		if a.Kind != syntax.AssignType || a.Type == nil {
			continue
		}
		r.refs[key] = collectRefs(a.Type, key.module)
	}

	// Pre-allocate one arena slot per type assignment so mutually
	// recursive groups can resolve forward references to each other.
	var keys []assignmentKey
	for key, a := range r.byKey {
		if a.Kind != syntax.AssignType {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].module != keys[j].module {
			return keys[i].module < keys[j].module
		}
		return keys[i].name < keys[j].name
	})
	for _, key := range keys {
		ref := r.arena.New()
		r.typeRefs[key] = ref
		r.modules[key.module].Types[key.name] = ref
	}

	sccs := tarjanSCC(keys, r.refs)
	for _, group := range sccs {
		for _, key := range group {
			a := r.byKey[key]
			tag, err := r.resolveType(key.module, a.Type, r.typeRefs[key])
			if err != nil {
				return nil, &Error{Module: key.module, Name: key.name, Message: err.Error()}
			}
			_ = tag
		}
	}

	for key, a := range r.byKey {
		if a.Kind == syntax.AssignObjectClass || a.Kind == syntax.AssignObject || a.Kind == syntax.AssignObjectSet {
			r.diags = append(r.diags, model.Diagnostic{
				Module: key.module, Name: key.name,
				Message: "information object construct accepted but not semantically resolved",
			})
		}
	}

	return &model.Compiled{Arena: r.arena, Modules: r.modules, Diagnostics: r.diags}, nil
}

// collectRefs walks a raw type tree and returns every local (same-module)
// type-reference edge it contains. Cross-module references are not tracked
// as SCC edges: imports are assumed acyclic at the module level, which
// holds for every legal ASN.1 module graph.
func collectRefs(t *syntax.TypeNode, module string) []assignmentKey {
	var out []assignmentKey
	var walk func(t *syntax.TypeNode)
	walk = func(t *syntax.TypeNode) {
		if t == nil {
			return
		}
		switch t.Kind {
		case syntax.NodeReference:
			if t.Module == "" {
				out = append(out, assignmentKey{module: module, name: t.Reference})
			}
		case syntax.NodeSequence, syntax.NodeSet, syntax.NodeChoice:
			for i := range t.Components {
				walk(t.Components[i].Type)
			}
		case syntax.NodeSequenceOf, syntax.NodeSetOf:
			walk(t.Element)
		case syntax.NodeTagged:
			walk(t.Inner)
		}
	}
	walk(t)
	return out
}

// resolveType fills in the arena node at ref for the raw type t, declared
// in module, returning the node's own effective tag so a caller applying an
// outer TAGGED wrapper can reason about IMPLICIT-on-CHOICE.
func (r *resolver) resolveType(module string, t *syntax.TypeNode, ref model.TypeRef) (model.EffectiveTag, error) {
	node := r.arena.Get(ref)
	switch t.Kind {
	case syntax.NodeBuiltin:
		kind, tag := builtinKind(t.Builtin)
		node.Kind = kind
		node.Tag = tag
		node.ExtensibleAt = -1
	case syntax.NodeAny:
		node.Kind = model.KindAny
		node.ExtensibleAt = -1
	case syntax.NodeAnyDefinedBy:
		node.Kind = model.KindAnyDefinedBy
		node.DefinedBy = t.DefinedBy
		node.ExtensibleAt = -1
	case syntax.NodeSelection:
		// `TypeRef.&Field`: the concrete type selected out of an
		// information object class field is only known once the class's
		// object set is resolved, which is out of scope (information
		// object classes are accepted syntactically but not given
		// semantics). Codecs treat it the same as a bare open type.
		node.Kind = model.KindOpenType
		node.ExtensibleAt = -1
	case syntax.NodeReference:
		target, ok := r.lookupRef(module, t)
		if !ok {
			return model.EffectiveTag{}, fmt.Errorf("unresolved reference %q", t.Reference)
		}
		node.Target = target
		node.Tag = r.arena.Resolve(target).Tag
	case syntax.NodeSequence, syntax.NodeSet:
		if t.Kind == syntax.NodeSequence {
			node.Kind = model.KindSequence
			node.Tag = model.EffectiveTag{Class: model.ClassUniversal, Number: 16}
		} else {
			node.Kind = model.KindSet
			node.Tag = model.EffectiveTag{Class: model.ClassUniversal, Number: 17}
		}
		node.ExtensibleAt = t.ExtensibleAt
		if err := r.resolveComponents(module, t, node); err != nil {
			return model.EffectiveTag{}, err
		}
	case syntax.NodeChoice:
		node.Kind = model.KindChoice
		node.ExtensibleAt = t.ExtensibleAt
		if err := r.resolveComponents(module, t, node); err != nil {
			return model.EffectiveTag{}, err
		}
	case syntax.NodeSequenceOf, syntax.NodeSetOf:
		if t.Kind == syntax.NodeSequenceOf {
			node.Kind = model.KindSequenceOf
			node.Tag = model.EffectiveTag{Class: model.ClassUniversal, Number: 16}
		} else {
			node.Kind = model.KindSetOf
			node.Tag = model.EffectiveTag{Class: model.ClassUniversal, Number: 17}
		}
		node.ExtensibleAt = -1
		elemRef := r.arena.New()
		if _, err := r.resolveType(module, t.Element, elemRef); err != nil {
			return model.EffectiveTag{}, err
		}
		node.Element = elemRef
	case syntax.NodeTagged:
		innerRef := r.arena.New()
		if _, err := r.resolveType(module, t.Inner, innerRef); err != nil {
			return model.EffectiveTag{}, err
		}
		innerNode := r.arena.Resolve(innerRef)
		mode := effectiveMode(t.TagMode, r.moduleTag[module])
		if mode == model.TagModeImplicit && innerNode.Kind == model.KindChoice {
			return model.EffectiveTag{}, ErrImplicitChoice
		}
		if mode == model.TagModeImplicit && (innerNode.Kind == model.KindAny || innerNode.Kind == model.KindAnyDefinedBy || innerNode.Kind == model.KindOpenType) {
			mode = model.TagModeExplicit
		}
		*node = *innerNode
		node.Inner = innerRef
		node.Tag = model.EffectiveTag{
			Class:  tagClassFor(t.Tag.Class),
			Number: uint(t.Tag.Number),
			Mode:   mode,
		}
	default:
		return model.EffectiveTag{}, fmt.Errorf("unsupported type construct")
	}

	cons, err := r.resolveConstraints(t.Constraints)
	if err != nil {
		return model.EffectiveTag{}, err
	}
	if len(cons) > 0 {
		// node.Constraints may alias a shared backing array after the
		// REFERENCE/TAGGED struct copies above (several alias slots can
		// point at the same target); append into a fresh slice so adding
		// this node's own trailing constraints never mutates another
		// node's view of the same data.
		merged := make([]constraint.Constraint, 0, len(node.Constraints)+len(cons))
		merged = append(merged, node.Constraints...)
		merged = append(merged, cons...)
		node.Constraints = merged
	}

	return node.Tag, nil
}

func (r *resolver) resolveComponents(module string, t *syntax.TypeNode, node *model.Type) error {
	automatic := r.moduleTag[module] == syntax.TagDefaultAutomatic
	hasExplicitTag := false
	for _, c := range t.Components {
		if c.Type.Kind == syntax.NodeTagged {
			hasExplicitTag = true
			break
		}
	}
	seenTags := map[model.EffectiveTag]string{}
	for i, c := range t.Components {
		compRef := r.arena.New()
		tag, err := r.resolveType(module, c.Type, compRef)
		if err != nil {
			return err
		}
		if automatic && !hasExplicitTag {
			tag = model.EffectiveTag{Class: model.ClassContextSpecific, Number: uint(i), Mode: model.TagModeImplicit}
			if r.arena.Resolve(compRef).Kind == model.KindChoice {
				tag.Mode = model.TagModeExplicit
			}
			if tag.Mode == model.TagModeExplicit {
				// EXPLICIT wrapping needs the pre-overwrite node (which may
				// itself be an alias) reachable as Inner, the same way a
				// literal TAGGED type preserves it; otherwise the codecs
				// would lose track of what tag to wrap.
				shadow := r.arena.New()
				*r.arena.Get(shadow) = *r.arena.Get(compRef)
				r.arena.Get(compRef).Inner = shadow
			}
			r.arena.Get(compRef).Tag = tag
		}
		if t.Kind == syntax.NodeChoice || t.Kind == syntax.NodeSet {
			if other, dup := seenTags[tag]; dup {
				return fmt.Errorf("duplicate effective tag %v shared by %q and %q", tag, other, c.Name)
			}
			seenTags[tag] = c.Name
		}
		comp := model.Component{
			Name:              c.Name,
			Type:              compRef,
			Optional:          c.Optional,
			ExtensionAddition: t.ExtensibleAt >= 0 && i > t.ExtensibleAt,
			GroupID:           c.GroupID,
		}
		if c.Default != nil {
			v, err := r.resolveValue(c.Default)
			if err != nil {
				return err
			}
			comp.HasDefault = true
			comp.Default = v
		}
		node.Components = append(node.Components, comp)
	}
	return nil
}

func (r *resolver) lookupRef(module string, t *syntax.TypeNode) (model.TypeRef, bool) {
	mod := t.Module
	if mod == "" {
		mod = module
	}
	if key, ok := r.typeRefs[assignmentKey{module: mod, name: t.Reference}]; ok {
		return key, true
	}
	// Fall back to searching every module, to tolerate imports the
	// resolver did not index an explicit edge for (e.g. a reference
	// qualified by a module alias it cannot see).
	for _, name := range r.order {
		if ref, ok := r.typeRefs[assignmentKey{module: name, name: t.Reference}]; ok {
			return ref, true
		}
	}
	return 0, false
}

func effectiveMode(m syntax.TagModeNode, def syntax.TagDefault) model.TagMode {
	switch m {
	case syntax.ModeImplicit:
		return model.TagModeImplicit
	case syntax.ModeExplicit:
		return model.TagModeExplicit
	default:
		if def == syntax.TagDefaultImplicit || def == syntax.TagDefaultAutomatic {
			return model.TagModeImplicit
		}
		return model.TagModeExplicit
	}
}

func tagClassFor(class string) model.TagClass {
	switch class {
	case "APPLICATION":
		return model.ClassApplication
	case "PRIVATE":
		return model.ClassPrivate
	case "UNIVERSAL":
		return model.ClassUniversal
	default:
		return model.ClassContextSpecific
	}
}

func (r *resolver) resolveValue(v *syntax.ValueNode) (model.Value, error) {
	switch v.Kind {
	case syntax.ValueInteger:
		n := new(big.Int)
		n.SetString(v.Text, 10)
		return n, nil
	case syntax.ValueBoolean:
		return v.Text == "TRUE", nil
	case syntax.ValueString:
		return v.Text, nil
	case syntax.ValueNull:
		return nil, nil
	case syntax.ValueNegative:
		inner, err := r.resolveValue(v.Operand)
		if err != nil {
			return nil, err
		}
		if n, ok := inner.(*big.Int); ok {
			return new(big.Int).Neg(n), nil
		}
		return inner, nil
	default:
		return v.Text, nil
	}
}

func (r *resolver) resolveConstraints(nodes []syntax.ConstraintNode) ([]constraint.Constraint, error) {
	var out []constraint.Constraint
	for _, n := range nodes {
		c, err := r.resolveConstraint(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *resolver) resolveConstraint(n syntax.ConstraintNode) (constraint.Constraint, error) {
	switch n.Kind {
	case syntax.ConstraintRange:
		lo, err := r.resolveBound(n.Lo)
		if err != nil {
			return constraint.Constraint{}, err
		}
		hi, err := r.resolveBound(n.Hi)
		if err != nil {
			return constraint.Constraint{}, err
		}
		return constraint.NewRange(lo, hi, n.Extensible), nil
	case syntax.ConstraintSingleValue:
		v, err := r.resolveValue(n.Value)
		if err != nil {
			return constraint.Constraint{}, err
		}
		if bi, ok := v.(*big.Int); ok {
			return constraint.NewRange(bi, bi, false), nil
		}
		return constraint.Constraint{}, nil
	case syntax.ConstraintSize:
		if len(n.Nested) == 0 {
			return constraint.Constraint{}, nil
		}
		inner, err := r.resolveConstraint(n.Nested[0])
		if err != nil {
			return constraint.Constraint{}, err
		}
		lo, hi := (*big.Int)(nil), (*big.Int)(nil)
		ext := inner.Extensible()
		if vset, ok := inner.Value(); ok {
			lo, hi = vset.Bounds()
		}
		return constraint.NewSize(lo, hi, ext), nil
	case syntax.ConstraintUnion, syntax.ConstraintIntersection:
		var acc constraint.Constraint
		for i, nested := range n.Nested {
			c, err := r.resolveConstraint(nested)
			if err != nil {
				return constraint.Constraint{}, err
			}
			if i == 0 {
				acc = c
			} else if n.Kind == syntax.ConstraintIntersection {
				acc = constraint.Intersect(acc, c)
			} else {
				acc.Sets = append(acc.Sets, c.Sets...)
			}
		}
		return acc, nil
	default:
		// FROM (permitted alphabet), PATTERN, ALL EXCEPT, and WITH
		// COMPONENTS are accepted syntactically but do not yet reduce to a
		// constraint.Set; they carry no framing weight for the codecs that
		// exist today and are recorded as an empty constraint rather than
		// rejected.
		return constraint.Constraint{}, nil
	}
}

func (r *resolver) resolveBound(v *syntax.ValueNode) (*big.Int, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case syntax.ValueMin, syntax.ValueMax:
		return nil, nil
	default:
		val, err := r.resolveValue(v)
		if err != nil {
			return nil, err
		}
		if bi, ok := val.(*big.Int); ok {
			return bi, nil
		}
		return nil, nil
	}
}

func builtinKind(word string) (model.Kind, model.EffectiveTag) {
	entry, ok := builtinTable[word]
	if !ok {
		return model.KindInvalid, model.EffectiveTag{}
	}
	return entry.kind, model.EffectiveTag{Class: model.ClassUniversal, Number: entry.number}
}

type builtinEntry struct {
	kind   model.Kind
	number uint
}

var builtinTable = map[string]builtinEntry{}

func init() {
	add := func(word string, kind model.Kind, num uint) {
		builtinTable[word] = builtinEntry{kind, num}
	}
	add("BOOLEAN", model.KindBoolean, 1)
	add("INTEGER", model.KindInteger, 2)
	add("BIT STRING", model.KindBitString, 3)
	add("OCTET STRING", model.KindOctetString, 4)
	add("NULL", model.KindNull, 5)
	add("OBJECT IDENTIFIER", model.KindObjectIdentifier, 6)
	add("ObjectDescriptor", model.KindObjectDescriptor, 7)
	add("EXTERNAL", model.KindExternal, 8)
	add("REAL", model.KindReal, 9)
	add("ENUMERATED", model.KindEnumerated, 10)
	add("EMBEDDED PDV", model.KindEmbeddedPDV, 11)
	add("UTF8String", model.KindUTF8String, 12)
	add("RELATIVE-OID", model.KindRelativeOID, 13)
	add("SEQUENCE", model.KindSequence, 16)
	add("SET", model.KindSet, 17)
	add("NumericString", model.KindNumericString, 18)
	add("PrintableString", model.KindPrintableString, 19)
	add("TeletexString", model.KindTeletexString, 20)
	add("T61String", model.KindTeletexString, 20)
	add("VideotexString", model.KindGraphicString, 21)
	add("IA5String", model.KindIA5String, 22)
	add("UTCTime", model.KindUTCTime, 23)
	add("GeneralizedTime", model.KindGeneralizedTime, 24)
	add("GraphicString", model.KindGraphicString, 25)
	add("VisibleString", model.KindVisibleString, 26)
	add("ISO646String", model.KindVisibleString, 26)
	add("GeneralString", model.KindGeneralString, 27)
	add("UniversalString", model.KindUniversalString, 28)
	add("CHARACTER STRING", model.KindCharacterString, 29)
	add("BMPString", model.KindBMPString, 30)
	add("DATE", model.KindDate, 31)
	add("TIME-OF-DAY", model.KindTimeOfDay, 32)
	add("DATE-TIME", model.KindDateTime, 33)
	add("DURATION", model.KindDuration, 34)
}
