// Package facts loads the semantic facts that extraction cannot compute
// (inference results, impls, deref rules, crate wiring and macro
// expansions) from a YAML document into the store.
//
// Syntax is referenced by locators: either a byte range
//
//	{file: main.rs, start: 12, end: 17}
//
// or the nth (0-based) occurrence of a piece of text in the file
//
//	{file: main.rs, text: "p.len()", nth: 1}
//
// Types are written the way they appear in source: &T, &mut T, Name<A, B>,
// builtins, (A, B) and impl Trait. Resolution targets are paths resolved in
// the environment of the body the fact belongs to, for example Point::len
// or Shape::Circle.
package facts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/scopebind/internal/store"
)

// Document is the YAML layout of a facts file.
type Document struct {
	Types        []TypeFact      `yaml:"types"`
	Inference    []Resolution    `yaml:"inference"`
	Derefs       []DerefFact     `yaml:"derefs"`
	Impls        []ImplFact      `yaml:"impls"`
	ExternCrates []ExternCrate   `yaml:"extern_crates"`
	Preludes     []PreludeFact   `yaml:"preludes"`
	MacroCalls   []MacroCallFact `yaml:"macro_calls"`
	Expansions   []ExpansionFact `yaml:"expansions"`
}

// Locator points at a node of an authored file.
type Locator struct {
	File  string  `yaml:"file"`
	Start *uint32 `yaml:"start"`
	End   *uint32 `yaml:"end"`
	Text  string  `yaml:"text"`
	Nth   int     `yaml:"nth"`
}

func (l Locator) String() string {
	if l.Text != "" {
		return fmt.Sprintf("%s %q#%d", l.File, l.Text, l.Nth)
	}
	if l.Start != nil && l.End != nil {
		return fmt.Sprintf("%s %d..%d", l.File, *l.Start, *l.End)
	}
	return l.File
}

// TypeFact records the type of an expression or, when no expression has
// that range or Pat is set, of a pattern.
type TypeFact struct {
	At   Locator `yaml:"at"`
	Type string  `yaml:"type"`
	Pat  bool    `yaml:"pat"`
}

// Resolution records what an expression or pattern resolved to during
// inference.
type Resolution struct {
	At          Locator `yaml:"at"`
	Pat         bool    `yaml:"pat"`
	Type        string  `yaml:"type"`
	Method      string  `yaml:"method"`
	Field       string  `yaml:"field"`
	RecordField string  `yaml:"record_field"`
	Variant     string  `yaml:"variant"`
	Assoc       string  `yaml:"assoc"`
}

type DerefFact struct {
	File   string `yaml:"file"`
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
}

// ImplFact declares an impl that is not written in any indexed file, such
// as a derive or a blanket impl from a dependency. It lives in the root
// module of File.
type ImplFact struct {
	File  string `yaml:"file"`
	Self  string `yaml:"self"`
	Trait string `yaml:"trait"`
}

type ExternCrate struct {
	File   string `yaml:"file"`
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

type PreludeFact struct {
	File   string `yaml:"file"`
	Target string `yaml:"target"`
	Module string `yaml:"module"`
}

// MacroCallFact records a macro call, optionally with its expansion.
type MacroCallFact struct {
	At        Locator        `yaml:"at"`
	Kind      string         `yaml:"kind"`
	Expansion *string        `yaml:"expansion"`
	Tokens    []TokenMapping `yaml:"tokens"`
}

// ExpansionFact sets the expansion of a call, recording the call first when
// needed.
type ExpansionFact struct {
	Call   Locator        `yaml:"call"`
	Text   string         `yaml:"text"`
	Tokens []TokenMapping `yaml:"tokens"`
}

// TokenMapping pairs a token of the call (absolute offsets in the calling
// file) with a token of the expansion (offsets in the expansion text).
type TokenMapping struct {
	Call     []uint32 `yaml:"call"`
	Expanded []uint32 `yaml:"expanded"`
}

// Decode parses a facts document. An empty input is an empty document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return &doc, nil
}

// Load decodes a facts document and writes it in one transaction. Nothing
// is written when any fact fails to apply.
func Load(ctx context.Context, s *store.Store, r io.Reader) error {
	doc, err := Decode(r)
	if err != nil {
		return err
	}
	return Apply(ctx, s, doc)
}

// Apply writes a decoded document in one transaction.
func Apply(ctx context.Context, s *store.Store, doc *Document) error {
	return s.WithFacts(func(ft *store.FactsTx) error {
		l := &loader{ft: ft, files: map[string]*store.File{}}
		steps := []struct {
			name string
			fn   func(*Document) error
		}{
			{"extern_crates", l.externCrates},
			{"preludes", l.preludes},
			{"impls", l.impls},
			{"derefs", l.derefs},
			{"types", l.types},
			{"inference", l.inference},
			{"macro_calls", l.macroCalls},
			{"expansions", l.expansions},
		}
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := step.fn(doc); err != nil {
				return fmt.Errorf("facts: %s%w", step.name, err)
			}
		}
		return nil
	})
}

type loader struct {
	ft    *store.FactsTx
	files map[string]*store.File
}

func (l *loader) file(path string) (*store.File, error) {
	if f, ok := l.files[path]; ok {
		return f, nil
	}
	f, err := l.ft.FileByPath(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file %q is not indexed", path)
	}
	l.files[path] = f
	return f, nil
}

func (l *loader) rootModule(path string) (*store.File, int64, error) {
	f, err := l.file(path)
	if err != nil {
		return nil, 0, err
	}
	root, err := l.ft.RootModule(f.ID)
	if err != nil {
		return nil, 0, err
	}
	if root == nil {
		return nil, 0, fmt.Errorf("file %q has no root module", path)
	}
	return f, root.ID, nil
}

// locate turns a locator into a file and byte range.
func (l *loader) locate(loc Locator) (*store.File, uint32, uint32, error) {
	f, err := l.file(loc.File)
	if err != nil {
		return nil, 0, 0, err
	}
	if loc.Text != "" {
		start, ok := nthIndex(f.Content, []byte(loc.Text), loc.Nth)
		if !ok {
			return nil, 0, 0, fmt.Errorf("%s: text not found", loc)
		}
		return f, uint32(start), uint32(start + len(loc.Text)), nil
	}
	if loc.Start == nil || loc.End == nil {
		return nil, 0, 0, fmt.Errorf("%s: locator needs text or start and end", loc)
	}
	if *loc.End < *loc.Start || int(*loc.End) > len(f.Content) {
		return nil, 0, 0, fmt.Errorf("%s: range outside file", loc)
	}
	return f, *loc.Start, *loc.End, nil
}

func nthIndex(s, sub []byte, n int) (int, bool) {
	if n < 0 {
		return 0, false
	}
	offset := 0
	for i := 0; ; i++ {
		j := bytes.Index(s[offset:], sub)
		if j < 0 {
			return 0, false
		}
		if i == n {
			return offset + j, true
		}
		offset += j + 1
	}
}

// target finds the expression or pattern a fact is about.
func (l *loader) target(loc Locator, pat bool) (owner int64, target string, idx uint32, err error) {
	f, start, end, err := l.locate(loc)
	if err != nil {
		return 0, "", 0, err
	}
	if !pat {
		e, err := l.ft.ExprAt(f.ID, start, end)
		if err != nil {
			return 0, "", 0, err
		}
		if e != nil {
			return e.OwnerID, store.TargetExpr, e.Idx, nil
		}
	}
	p, err := l.ft.PatAt(f.ID, start, end)
	if err != nil {
		return 0, "", 0, err
	}
	if p == nil {
		return 0, "", 0, fmt.Errorf("%s: no expression or pattern", loc)
	}
	return p.OwnerID, store.TargetPat, p.Idx, nil
}

func (l *loader) types(doc *Document) error {
	for i, tf := range doc.Types {
		if strings.TrimSpace(tf.Type) == "" {
			return fmt.Errorf("[%d]: type is required", i)
		}
		owner, target, idx, err := l.target(tf.At, tf.Pat)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if _, err := l.ft.InsertInference(&store.Inference{
			OwnerID: owner, Target: target, Idx: idx, Key: store.KeyType, Value: tf.Type,
		}); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *loader) inference(doc *Document) error {
	for i, res := range doc.Inference {
		owner, target, idx, err := l.target(res.At, res.Pat)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		pairs := []struct{ key, value string }{
			{store.KeyType, res.Type},
			{store.KeyMethod, res.Method},
			{store.KeyField, res.Field},
			{store.KeyRecordField, res.RecordField},
			{store.KeyVariant, res.Variant},
			{store.KeyAssoc, res.Assoc},
		}
		wrote := false
		for _, kv := range pairs {
			if kv.value == "" {
				continue
			}
			if _, err := l.ft.InsertInference(&store.Inference{
				OwnerID: owner, Target: target, Idx: idx, Key: kv.key, Value: kv.value,
			}); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			wrote = true
		}
		if !wrote {
			return fmt.Errorf("[%d]: %s: no resolution given", i, res.At)
		}
	}
	return nil
}

func (l *loader) derefs(doc *Document) error {
	for i, d := range doc.Derefs {
		f, err := l.file(d.File)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if d.Type == "" || d.Target == "" {
			return fmt.Errorf("[%d]: type and target are required", i)
		}
		if _, err := l.ft.InsertDerefRule(&store.DerefRule{FileID: f.ID, TypePath: d.Type, Target: d.Target}); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *loader) impls(doc *Document) error {
	for i, im := range doc.Impls {
		f, root, err := l.rootModule(im.File)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if im.Self == "" {
			return fmt.Errorf("[%d]: self is required", i)
		}
		if _, err := l.ft.InsertImplDef(&store.Def{
			FileID: f.ID, ModuleID: &root, SelfTy: im.Self, Trait: im.Trait,
		}); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *loader) externCrates(doc *Document) error {
	for i, ec := range doc.ExternCrates {
		from, err := l.file(ec.File)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		to, err := l.file(ec.Target)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if ec.Name == "" {
			return fmt.Errorf("[%d]: name is required", i)
		}
		if _, err := l.ft.InsertExternCrate(&store.ExternCrate{FileID: from.ID, Name: ec.Name, TargetFileID: to.ID}); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *loader) preludes(doc *Document) error {
	for i, p := range doc.Preludes {
		from, err := l.file(p.File)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		to, err := l.file(p.Target)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if _, err := l.ft.UpsertPrelude(&store.Prelude{FileID: from.ID, TargetFileID: to.ID, ModulePath: p.Module}); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// call returns the recorded macro call at loc, recording it when missing.
func (l *loader) call(loc Locator, kind string) (*store.MacroCall, error) {
	f, start, end, err := l.locate(loc)
	if err != nil {
		return nil, err
	}
	mc, err := l.ft.MacroCallAt(f.ID, start, end)
	if err != nil {
		return nil, err
	}
	if mc != nil {
		return mc, nil
	}
	if kind == "" {
		kind = "macro_invocation"
	}
	mc = &store.MacroCall{FileID: f.ID, NodeKind: kind, StartByte: start, EndByte: end}
	if _, err := l.ft.InsertMacroCall(mc); err != nil {
		return nil, err
	}
	return mc, nil
}

func (l *loader) setExpansion(mc *store.MacroCall, text string, tokens []TokenMapping) error {
	maps := make([]store.TokenMap, 0, len(tokens))
	for j, tm := range tokens {
		if len(tm.Call) != 2 || len(tm.Expanded) != 2 {
			return fmt.Errorf("token %d: call and expanded must be [start, end]", j)
		}
		if tm.Call[0] < mc.StartByte || tm.Call[1] > mc.EndByte {
			return fmt.Errorf("token %d: call range outside the macro call", j)
		}
		if int(tm.Expanded[1]) > len(text) || tm.Expanded[0] > tm.Expanded[1] {
			return fmt.Errorf("token %d: expanded range outside the expansion", j)
		}
		maps = append(maps, store.TokenMap{
			CallStart: tm.Call[0], CallEnd: tm.Call[1],
			ExpStart: tm.Expanded[0], ExpEnd: tm.Expanded[1],
		})
	}
	return l.ft.SetExpansion(&store.Expansion{CallID: mc.ID, Text: text}, maps)
}

func (l *loader) macroCalls(doc *Document) error {
	for i, m := range doc.MacroCalls {
		mc, err := l.call(m.At, m.Kind)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if m.Expansion == nil {
			if len(m.Tokens) > 0 {
				return fmt.Errorf("[%d]: tokens without expansion", i)
			}
			continue
		}
		if err := l.setExpansion(mc, *m.Expansion, m.Tokens); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *loader) expansions(doc *Document) error {
	for i, e := range doc.Expansions {
		mc, err := l.call(e.Call, "")
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if err := l.setExpansion(mc, e.Text, e.Tokens); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}
