// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asn1kit

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/big"
	"time"

	"asn1kit.dev/asn1kit/ber"
	"asn1kit.dev/asn1kit/gser"
	"asn1kit.dev/asn1kit/jer"
	"asn1kit.dev/asn1kit/model"
	"asn1kit.dev/asn1kit/per"
	"asn1kit.dev/asn1kit/resolve"
	"asn1kit.dev/asn1kit/xer"
)

// Source is one input to [Compile] or [Parse]: either ASN.1 module text, an
// already-[Parse]d module map, or a previously-[CompiledSpec.Marshal]ed
// blob. It is a closed set; the three implementations below are the only
// ones.
type Source interface {
	isSource()
}

// SourceText is ASN.1 module source text, identified by Name for
// diagnostics (a file name or other caller-chosen label).
type SourceText struct {
	Name string
	Data string
}

func (SourceText) isSource() {}

// SourceModel wraps the result of a prior [Parse] call, letting a caller
// assemble a [CompiledSpec] from modules it already resolved without
// re-lexing and re-parsing their text.
type SourceModel struct {
	Compiled *model.Compiled
}

func (SourceModel) isSource() {}

// SourceBlob is a byte slice produced by [CompiledSpec.Marshal], letting a
// caller reload a spec it persisted earlier without its original module
// text at hand.
type SourceBlob struct {
	Data []byte
}

func (SourceBlob) isSource() {}

// Codec names one of the encoding rules a [CompiledSpec] can use for
// [CompiledSpec.Encode]/[CompiledSpec.Decode].
type Codec uint8

const (
	BER Codec = iota
	DER
	PER
	UPER
	XER
	JER
	GSER
)

// String returns the ASN.1 keyword for c.
func (c Codec) String() string {
	switch c {
	case BER:
		return "BER"
	case DER:
		return "DER"
	case PER:
		return "PER"
	case UPER:
		return "UPER"
	case XER:
		return "XER"
	case JER:
		return "JER"
	case GSER:
		return "GSER"
	}
	return "INVALID"
}

// options collects the effect of every [Option] passed to [Compile].
type options struct {
	diagnostics *[]model.Diagnostic
}

// Option configures a [Compile] call.
type Option func(*options)

// WithDiagnostics arranges for the resolver's non-fatal diagnostics (see
// [model.Diagnostic]) to be appended to *out once compilation succeeds.
func WithDiagnostics(out *[]model.Diagnostic) Option {
	return func(o *options) { o.diagnostics = out }
}

// CompiledSpec binds a resolved module graph to the codec [Compile] was
// asked to use, exposing [CompiledSpec.Encode]/[CompiledSpec.Decode]
// without requiring the caller to re-specify the codec on every call.
type CompiledSpec struct {
	Model *model.Compiled
	Codec Codec
}

// Error reports that [Compile] or [Parse] could not assemble a
// [model.Compiled] from the supplied sources.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return "asn1kit: " + e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Parse merges sources into a single [model.Compiled] module graph, without
// binding it to any particular codec. It is the "dict" build step (spec.md
// §6/§9): the result can be encoded/decoded against by any codec package
// directly, or wrapped into a [CompiledSpec] via [Compile] with a
// [SourceModel].
func Parse(sources []Source) (*model.Compiled, error) {
	var texts []resolve.Source
	var parts []*model.Compiled

	for _, src := range sources {
		switch s := src.(type) {
		case SourceText:
			texts = append(texts, resolve.Source{Name: s.Name, Text: s.Data})
		case SourceModel:
			if s.Compiled == nil {
				return nil, &Error{Message: "SourceModel carries a nil *model.Compiled"}
			}
			parts = append(parts, s.Compiled)
		case SourceBlob:
			spec, err := UnmarshalCompiledSpec(s.Data)
			if err != nil {
				return nil, &Error{Message: "decoding SourceBlob", Err: err}
			}
			parts = append(parts, spec.Model)
		default:
			return nil, &Error{Message: fmt.Sprintf("unknown Source variant %T", src)}
		}
	}

	if len(texts) > 0 {
		c, err := resolve.Resolve(texts)
		if err != nil {
			return nil, &Error{Message: "resolving module text", Err: err}
		}
		parts = append(parts, c)
	}

	if len(parts) == 0 {
		return nil, &Error{Message: "no sources supplied"}
	}
	merged := parts[0]
	for _, p := range parts[1:] {
		var err error
		merged, err = mergeCompiled(merged, p)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// mergeCompiled combines two independently-resolved compilations into one.
// Each carries its own [model.Arena], and a [model.TypeRef] is only
// meaningful relative to the Arena that produced it, so b's nodes are
// copied into a new Arena with every internal TypeRef (Target, Inner,
// Element, Components[i].Type) shifted by the length of a's Arena before
// the two Types slices are concatenated. Module name collisions are
// rejected rather than silently resolved by last-source-wins, since that
// would hide which definition callers actually get.
func mergeCompiled(a, b *model.Compiled) (*model.Compiled, error) {
	offset := model.TypeRef(len(a.Arena.Types))
	shift := func(ref model.TypeRef) model.TypeRef {
		if ref < 0 {
			return ref
		}
		return ref + offset
	}

	types := make([]*model.Type, len(a.Arena.Types), len(a.Arena.Types)+len(b.Arena.Types))
	copy(types, a.Arena.Types)
	for _, t := range b.Arena.Types {
		nt := *t
		nt.Target = shift(nt.Target)
		nt.Element = shift(nt.Element)
		nt.Inner = shift(nt.Inner)
		if len(nt.Components) > 0 {
			comps := make([]model.Component, len(nt.Components))
			copy(comps, nt.Components)
			for i := range comps {
				comps[i].Type = shift(comps[i].Type)
			}
			nt.Components = comps
		}
		types = append(types, &nt)
	}
	arena := &model.Arena{Types: types}

	modules := make(map[string]*model.ModuleInfo, len(a.Modules)+len(b.Modules))
	for name, mi := range a.Modules {
		modules[name] = mi
	}
	for name, mi := range b.Modules {
		if _, dup := modules[name]; dup {
			return nil, &Error{Message: fmt.Sprintf("module %q defined by more than one source", name)}
		}
		shifted := &model.ModuleInfo{Name: mi.Name, Types: make(map[string]model.TypeRef, len(mi.Types)), Values: mi.Values}
		for tname, ref := range mi.Types {
			shifted.Types[tname] = shift(ref)
		}
		modules[name] = shifted
	}

	return &model.Compiled{
		Arena:       arena,
		Modules:     modules,
		Diagnostics: append(append([]model.Diagnostic{}, a.Diagnostics...), b.Diagnostics...),
	}, nil
}

// Compile resolves sources and binds the result to codec, ready for
// [CompiledSpec.Encode]/[CompiledSpec.Decode].
func Compile(sources []Source, codec Codec, opts ...Option) (*CompiledSpec, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m, err := Parse(sources)
	if err != nil {
		return nil, err
	}
	if o.diagnostics != nil {
		*o.diagnostics = append(*o.diagnostics, m.Diagnostics...)
	}
	return &CompiledSpec{Model: m, Codec: codec}, nil
}

// Encode renders value, which must conform to the type named typeName in
// s.Model, using s.Codec. DER and BER share ber.Marshal/ber.MarshalBER; UPER
// uses per.MarshalUPER; every other codec has exactly one encode mode.
func (s *CompiledSpec) Encode(typeName string, value model.Value) ([]byte, error) {
	switch s.Codec {
	case BER:
		return ber.MarshalBER(s.Model, typeName, value)
	case DER:
		return ber.Marshal(s.Model, typeName, value)
	case PER:
		return per.Marshal(s.Model, typeName, value)
	case UPER:
		return per.MarshalUPER(s.Model, typeName, value)
	case XER:
		return xer.Marshal(s.Model, typeName, value)
	case JER:
		return jer.Marshal(s.Model, typeName, value)
	case GSER:
		return gser.Marshal(s.Model, typeName, value)
	}
	return nil, &Error{Message: fmt.Sprintf("unknown codec %v", s.Codec)}
}

// Decode parses data as the type named typeName in s.Model, using s.Codec.
// GSER has no decode direction (RFC 3641 defines it as display-only); a
// GSER CompiledSpec always fails here with a [gser.UnsupportedError].
func (s *CompiledSpec) Decode(typeName string, data []byte) (model.Value, error) {
	switch s.Codec {
	case BER, DER:
		return ber.Unmarshal(s.Model, typeName, data)
	case PER:
		return per.Unmarshal(s.Model, typeName, data)
	case UPER:
		return per.UnmarshalUPER(s.Model, typeName, data)
	case XER:
		return xer.Unmarshal(s.Model, typeName, data)
	case JER:
		return jer.Unmarshal(s.Model, typeName, data)
	case GSER:
		return gser.Unmarshal(s.Model, typeName, data)
	}
	return nil, &Error{Message: fmt.Sprintf("unknown codec %v", s.Codec)}
}

// persistedSpec is the gob wire shape for [CompiledSpec.Marshal]: a version
// tag, the codec, and the fields needed to reconstruct a *model.Compiled,
// since model.Compiled/Arena themselves carry no gob tags and are kept free
// of encoding concerns.
type persistedSpec struct {
	Version     int
	Codec       Codec
	Types       []model.Type
	Modules     map[string]persistedModule
	Diagnostics []model.Diagnostic
}

type persistedModule struct {
	Name   string
	Types  map[string]model.TypeRef
	Values map[string]model.Value
}

const persistedSpecVersion = 1

func init() {
	gob.Register(&big.Int{})
	gob.Register(float64(0))
	gob.Register(&big.Float{})
	gob.Register(BitString{})
	gob.Register([]byte(nil))
	gob.Register(ObjectIdentifier(nil))
	gob.Register(RelativeOID(nil))
	gob.Register("")
	gob.Register(time.Time{})
	gob.Register(time.Duration(0))
	gob.Register(&model.Choice{})
	gob.Register(&model.Struct{})
	gob.Register([]model.Value(nil))
	gob.Register(&model.OpenType{})
}

// Marshal serializes s into a stable binary form via encoding/gob, for
// later reconstruction with [UnmarshalCompiledSpec] without access to the
// original module text (spec.md §9's persisted-spec design note).
func (s *CompiledSpec) Marshal() ([]byte, error) {
	ps := persistedSpec{
		Version:     persistedSpecVersion,
		Codec:       s.Codec,
		Diagnostics: s.Model.Diagnostics,
		Modules:     make(map[string]persistedModule, len(s.Model.Modules)),
	}
	for _, t := range s.Model.Arena.Types {
		ps.Types = append(ps.Types, *t)
	}
	for name, mi := range s.Model.Modules {
		ps.Modules[name] = persistedModule{Name: mi.Name, Types: mi.Types, Values: mi.Values}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ps); err != nil {
		return nil, &Error{Message: "encoding CompiledSpec", Err: err}
	}
	return buf.Bytes(), nil
}

// UnmarshalCompiledSpec reconstructs a [CompiledSpec] previously produced
// by [CompiledSpec.Marshal].
func UnmarshalCompiledSpec(data []byte) (*CompiledSpec, error) {
	var ps persistedSpec
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ps); err != nil {
		return nil, &Error{Message: "decoding CompiledSpec", Err: err}
	}
	if ps.Version != persistedSpecVersion {
		return nil, &Error{Message: fmt.Sprintf("unsupported CompiledSpec version %d", ps.Version)}
	}

	arena := &model.Arena{Types: make([]*model.Type, len(ps.Types))}
	for i := range ps.Types {
		t := ps.Types[i]
		arena.Types[i] = &t
	}
	modules := make(map[string]*model.ModuleInfo, len(ps.Modules))
	for name, pm := range ps.Modules {
		modules[name] = &model.ModuleInfo{Name: pm.Name, Types: pm.Types, Values: pm.Values}
	}

	return &CompiledSpec{
		Model: &model.Compiled{
			Arena:       arena,
			Modules:     modules,
			Diagnostics: ps.Diagnostics,
		},
		Codec: ps.Codec,
	}, nil
}
