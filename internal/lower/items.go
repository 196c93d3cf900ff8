// Package lower walks a parsed Rust tree and writes what the binder reads
// into a store.DataStore: the item tree with module scopes and generic
// parameters, and for every body its expressions, patterns and expression
// scope tree.
//
// Out-of-line modules (mod foo;), use declarations and items nested inside
// bodies are not lowered.
package lower

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jward/scopebind/internal/store"
	"github.com/jward/scopebind/internal/syntax"
)

// File lowers one authored file. The file's source_file becomes the root
// module of its own crate.
func File(ctx context.Context, ds store.DataStore, tree *syntax.Tree, fileID int64) error {
	l := &lowerer{ctx: ctx, ds: ds, file: fileID}
	root := tree.Root()
	id, err := l.def(&store.Def{Kind: "module"}, root, 0, 0)
	if err != nil {
		return fmt.Errorf("lower %s: %w", tree.File(), err)
	}
	if err := l.module(root, id); err != nil {
		return fmt.Errorf("lower %s: %w", tree.File(), err)
	}
	return nil
}

type lowerer struct {
	ctx  context.Context
	ds   store.DataStore
	file int64
}

func optID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// def inserts a definition taken from node.
func (l *lowerer) def(d *store.Def, node syntax.Node, module, parent int64) (int64, error) {
	r := node.Range()
	d.FileID = l.file
	d.NodeKind = node.Kind()
	d.StartByte, d.EndByte = r.Start, r.End
	d.ModuleID = optID(module)
	d.ParentID = optID(parent)
	return l.ds.InsertDef(d)
}

func (l *lowerer) item(module int64, name string, def int64, namespaces ...string) error {
	if name == "" {
		return nil
	}
	for _, ns := range namespaces {
		if _, err := l.ds.InsertModuleItem(&store.ModuleItem{ModuleID: module, Name: name, Namespace: ns, DefID: def}); err != nil {
			return err
		}
	}
	return nil
}

func fieldText(n syntax.Node, field string) string {
	c, ok := n.ChildByField(field)
	if !ok {
		return ""
	}
	return c.Text()
}

// module lowers the items of a source_file or declaration_list.
func (l *lowerer) module(container syntax.Node, module int64) error {
	for _, c := range container.NamedChildren() {
		if err := l.ctx.Err(); err != nil {
			return err
		}
		if err := l.moduleItem(c, module); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) moduleItem(n syntax.Node, module int64) error {
	name := fieldText(n, "name")
	switch n.Kind() {
	case "mod_item":
		body, ok := n.ChildByField("body")
		if !ok {
			return nil
		}
		id, err := l.def(&store.Def{Kind: "module", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		if err := l.item(module, name, id, store.NamespaceTypes); err != nil {
			return err
		}
		return l.module(body, id)

	case "struct_item":
		id, err := l.def(&store.Def{Kind: "struct", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		body, hasBody := n.ChildByField("body")
		ns := []string{store.NamespaceTypes, store.NamespaceValues}
		if hasBody && body.Kind() == "field_declaration_list" {
			ns = ns[:1]
		}
		if err := l.item(module, name, id, ns...); err != nil {
			return err
		}
		if err := l.generics(n, id); err != nil {
			return err
		}
		if hasBody {
			return l.fields(body, module, id)
		}
		return nil

	case "enum_item":
		id, err := l.def(&store.Def{Kind: "enum", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		if err := l.item(module, name, id, store.NamespaceTypes); err != nil {
			return err
		}
		if err := l.generics(n, id); err != nil {
			return err
		}
		body, ok := n.ChildByField("body")
		if !ok {
			return nil
		}
		for _, v := range body.NamedChildren() {
			if v.Kind() != "enum_variant" {
				continue
			}
			vid, err := l.def(&store.Def{Kind: "variant", Name: fieldText(v, "name")}, v, module, id)
			if err != nil {
				return err
			}
			if fields, ok := v.ChildByField("body"); ok {
				if err := l.fields(fields, module, vid); err != nil {
					return err
				}
			}
		}
		return nil

	case "function_item", "const_item", "static_item":
		id, err := l.bodyOwner(n, module, 0)
		if err != nil {
			return err
		}
		return l.item(module, name, id, store.NamespaceValues)

	case "trait_item":
		id, err := l.def(&store.Def{Kind: "trait", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		if err := l.item(module, name, id, store.NamespaceTypes); err != nil {
			return err
		}
		if err := l.generics(n, id); err != nil {
			return err
		}
		return l.assocItems(n, module, id)

	case "type_item":
		id, err := l.def(&store.Def{Kind: "type_alias", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		if err := l.item(module, name, id, store.NamespaceTypes); err != nil {
			return err
		}
		return l.generics(n, id)

	case "impl_item":
		id, err := l.def(&store.Def{
			Kind:   "impl",
			SelfTy: fieldText(n, "type"),
			Trait:  fieldText(n, "trait"),
		}, n, module, 0)
		if err != nil {
			return err
		}
		if err := l.generics(n, id); err != nil {
			return err
		}
		return l.assocItems(n, module, id)

	case "macro_definition":
		id, err := l.def(&store.Def{Kind: "macro", Name: name}, n, module, 0)
		if err != nil {
			return err
		}
		return l.item(module, name, id, store.NamespaceMacros)
	}
	return nil
}

// assocItems lowers the declaration_list of a trait or impl.
func (l *lowerer) assocItems(n syntax.Node, module, parent int64) error {
	body, ok := n.ChildByField("body")
	if !ok {
		return nil
	}
	for _, c := range body.NamedChildren() {
		var err error
		switch c.Kind() {
		case "function_item", "const_item":
			_, err = l.bodyOwner(c, module, parent)
		case "function_signature_item":
			var id int64
			id, err = l.def(&store.Def{Kind: "function", Name: fieldText(c, "name"), HasSelf: hasSelfParam(c)}, c, module, parent)
			if err == nil {
				err = l.generics(c, id)
			}
		case "type_item", "associated_type":
			_, err = l.def(&store.Def{Kind: "type_alias", Name: fieldText(c, "name")}, c, module, parent)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fields lowers the fields of a struct or variant. Tuple fields are named
// by position.
func (l *lowerer) fields(body syntax.Node, module, parent int64) error {
	switch body.Kind() {
	case "field_declaration_list":
		for _, f := range body.NamedChildren() {
			if f.Kind() != "field_declaration" {
				continue
			}
			if _, err := l.def(&store.Def{Kind: "field", Name: fieldText(f, "name")}, f, module, parent); err != nil {
				return err
			}
		}
	case "ordered_field_declaration_list":
		for i, ty := range body.ChildrenByField("type") {
			if _, err := l.def(&store.Def{Kind: "field", Name: strconv.Itoa(i)}, ty, module, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// generics records the type and const parameters of a generic item.
// Lifetimes are not tracked.
func (l *lowerer) generics(n syntax.Node, def int64) error {
	params, ok := n.ChildByField("type_parameters")
	if !ok {
		return nil
	}
	ordinal := 0
	for _, p := range params.NamedChildren() {
		var name string
		switch p.Kind() {
		case "type_identifier":
			name = p.Text()
		case "constrained_type_parameter":
			name = fieldText(p, "left")
		case "optional_type_parameter", "const_parameter", "type_parameter":
			name = fieldText(p, "name")
		}
		if name == "" {
			continue
		}
		if _, err := l.ds.InsertGenericParam(&store.GenericParam{DefID: def, Ordinal: ordinal, Name: name}); err != nil {
			return err
		}
		ordinal++
	}
	return nil
}

func hasSelfParam(fn syntax.Node) bool {
	params, ok := fn.ChildByField("parameters")
	if !ok {
		return false
	}
	for _, p := range params.NamedChildren() {
		if p.Kind() == "self_parameter" {
			return true
		}
	}
	return false
}

// bodyOwner lowers a function, const or static together with its body.
func (l *lowerer) bodyOwner(n syntax.Node, module, parent int64) (int64, error) {
	d := &store.Def{Name: fieldText(n, "name")}
	switch n.Kind() {
	case "function_item":
		d.Kind = "function"
		d.HasSelf = hasSelfParam(n)
	case "const_item":
		d.Kind = "const"
	case "static_item":
		d.Kind = "static"
	}
	id, err := l.def(d, n, module, parent)
	if err != nil {
		return 0, err
	}
	if err := l.generics(n, id); err != nil {
		return 0, err
	}
	b := newBodyLowerer(l.ds, l.file, id)
	if err := b.lowerOwner(n); err != nil {
		return 0, fmt.Errorf("body of %s: %w", d.Name, err)
	}
	return id, nil
}
