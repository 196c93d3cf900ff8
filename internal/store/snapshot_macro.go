package store

import (
	"context"

	"github.com/jward/scopebind/internal/hir"
	"github.com/jward/scopebind/internal/syntax"
)

// InternMacro returns the id of a macro call. Calls recorded by facts keep
// their persisted (positive) id; other calls get a fresh negative id the
// first time they are seen. Equal locations always yield the same id.
func (snap *Snapshot) InternMacro(loc hir.MacroCallLoc) hir.MacroCallID {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	if id, ok := snap.interned[loc]; ok {
		return id
	}
	var id hir.MacroCallID
	if persisted, ok := snap.callBySrc[loc.AstID]; ok {
		id = hir.MacroCallID(persisted)
	} else {
		id = snap.nextCall
		snap.nextCall--
	}
	snap.interned[loc] = id
	if _, ok := snap.locs[id]; !ok {
		snap.locs[id] = loc
	}
	return id
}

func (snap *Snapshot) MacroCall(id hir.MacroCallID) (hir.MacroCallLoc, bool) {
	snap.mu.Lock()
	defer snap.mu.Unlock()
	loc, ok := snap.locs[id]
	return loc, ok
}

// persistedCall maps a macro call id to the facts row carrying its
// expansion.
func (snap *Snapshot) persistedCall(id hir.MacroCallID) (*MacroCall, bool) {
	if id > 0 {
		mc, ok := snap.calls[int64(id)]
		return mc, ok
	}
	loc, ok := snap.MacroCall(id)
	if !ok {
		return nil, false
	}
	persisted, ok := snap.callBySrc[loc.AstID]
	if !ok {
		return nil, false
	}
	return snap.calls[persisted], true
}

// ParseOrExpand returns the parsed tree of an authored file, or of a macro
// pseudo-file whose expansion text was recorded.
func (snap *Snapshot) ParseOrExpand(file syntax.FileID) (*syntax.Tree, bool) {
	var src []byte
	if file.IsMacro() {
		mc, ok := snap.persistedCall(hir.MacroCallID(file.MacroCall))
		if !ok {
			return nil, false
		}
		text, ok := snap.expansions[mc.ID]
		if !ok {
			return nil, false
		}
		src = []byte(text)
	} else {
		f, ok := snap.files[file.File]
		if !ok || f.Content == nil {
			return nil, false
		}
		src = f.Content
	}
	tree := memoize(&snap.mu, snap.trees, file, func() *syntax.Tree {
		t, err := syntax.Parse(context.Background(), file, src)
		if err != nil {
			return nil
		}
		return t
	})
	return tree, tree != nil
}

// ExpansionInfo relates a macro pseudo-file to its call. Without a recorded
// token map, tokens of the call's argument are paired in order with equal
// tokens of the expansion.
func (snap *Snapshot) ExpansionInfo(file syntax.FileID) (*hir.ExpansionInfo, bool) {
	if !file.IsMacro() {
		return nil, false
	}
	info := memoize(&snap.mu, snap.expInfo, file, func() *hir.ExpansionInfo {
		return snap.buildExpansionInfo(file)
	})
	return info, info != nil
}

func (snap *Snapshot) buildExpansionInfo(file syntax.FileID) *hir.ExpansionInfo {
	mc, ok := snap.persistedCall(hir.MacroCallID(file.MacroCall))
	if !ok {
		return nil
	}
	callTree, ok := snap.ParseOrExpand(syntax.SourceFile(mc.FileID))
	if !ok {
		return nil
	}
	expanded, ok := snap.ParseOrExpand(file)
	if !ok {
		return nil
	}
	call, ok := callTree.Resolve(mc.source().Ptr)
	if !ok {
		return nil
	}
	var arg syntax.Node
	for _, c := range call.NamedChildren() {
		if c.Kind() == "token_tree" {
			arg = c
		}
	}
	if arg.IsNil() {
		return nil
	}

	info := &hir.ExpansionInfo{
		Call:         hir.MacroCallID(file.MacroCall),
		Arg:          arg.Range(),
		Tokens:       snap.tokenMaps[mc.ID],
		CallTree:     callTree,
		ExpandedTree: expanded,
	}
	if len(info.Tokens) == 0 {
		info.Tokens = autoMapTokens(arg, expanded.Root())
	}
	return info
}

// autoMapTokens pairs each leaf of the argument (delimiters excluded) with
// the next leaf of the expansion carrying the same text.
func autoMapTokens(arg, expanded syntax.Node) []hir.TokenMapping {
	var callLeaves []syntax.Node
	for n := range arg.Descendants() {
		if n.IsToken() && !n.Equal(arg) {
			callLeaves = append(callLeaves, n)
		}
	}
	if len(callLeaves) >= 2 {
		callLeaves = callLeaves[1 : len(callLeaves)-1]
	}
	var expLeaves []syntax.Node
	for n := range expanded.Descendants() {
		if n.IsToken() && n.Range().Len() > 0 {
			expLeaves = append(expLeaves, n)
		}
	}

	var out []hir.TokenMapping
	j := 0
	for _, cl := range callLeaves {
		for k := j; k < len(expLeaves); k++ {
			if expLeaves[k].Text() == cl.Text() {
				out = append(out, hir.TokenMapping{Call: cl.Range(), Expanded: expLeaves[k].Range()})
				j = k + 1
				break
			}
		}
	}
	return out
}
