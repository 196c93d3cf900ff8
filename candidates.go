package scopebind

import (
	"iter"

	"github.com/jward/scopebind/internal/hir"
)

// Autoderef returns ty followed by every type reachable from it by
// dereferencing, outermost first.
func (a *SourceAnalyzer) Autoderef(ty hir.Ty) []hir.Ty {
	return a.db.Autoderef(ty)
}

// MethodCandidates yields the methods named name that a call on a receiver
// of type ty could dispatch to, paired with the receiver type at that step
// of the autoderef chain. For each type, inherent methods come before
// methods of traits in scope. An empty name matches every method.
func (a *SourceAnalyzer) MethodCandidates(ty hir.Ty, name string) iter.Seq2[hir.Ty, hir.Def] {
	return a.candidates(ty, name, isMethod)
}

// PathCandidates is like MethodCandidates but yields every associated item
// reachable through a path such as Type::name, with or without self.
func (a *SourceAnalyzer) PathCandidates(ty hir.Ty, name string) iter.Seq2[hir.Ty, hir.Def] {
	return a.candidates(ty, name, isAssocItem)
}

func isMethod(d hir.Def) bool { return d.Kind == hir.DefFunction && d.HasSelf }

func isAssocItem(d hir.Def) bool {
	switch d.Kind {
	case hir.DefFunction, hir.DefConst, hir.DefTypeAlias:
		return true
	}
	return false
}

func (a *SourceAnalyzer) candidates(ty hir.Ty, name string, keep func(hir.Def) bool) iter.Seq2[hir.Ty, hir.Def] {
	return func(yield func(hir.Ty, hir.Def) bool) {
		var traits []hir.DefID
		traitsLoaded := false
		for _, step := range a.db.Autoderef(ty) {
			for _, impl := range a.db.Impls(step) {
				if impl.Trait != 0 {
					continue
				}
				if !a.yieldItems(step, impl.ID, name, keep, yield) {
					return
				}
			}
			if !traitsLoaded {
				traits = a.resolver.TraitsInScope()
				traitsLoaded = true
			}
			for _, trait := range traits {
				if !a.db.ImplementsTrait(step, trait) {
					continue
				}
				if !a.yieldItems(step, trait, name, keep, yield) {
					return
				}
			}
		}
	}
}

func (a *SourceAnalyzer) yieldItems(ty hir.Ty, container hir.DefID, name string, keep func(hir.Def) bool, yield func(hir.Ty, hir.Def) bool) bool {
	for _, item := range a.db.Children(container) {
		if name != "" && item.Name != name {
			continue
		}
		if !keep(item) {
			continue
		}
		if !yield(ty, item) {
			return false
		}
	}
	return true
}
