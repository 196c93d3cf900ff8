package hir

// InferenceResult holds what type inference computed for one body: types of
// expressions and patterns and the definitions calls, field accesses and
// record literals resolved to.
type InferenceResult struct {
	ExprTypes    map[ExprID]Ty
	PatTypes     map[PatID]Ty
	Methods      map[ExprID]DefID
	Fields       map[ExprID]DefID
	RecordFields map[ExprID]DefID
	ExprVariants map[ExprID]DefID
	PatVariants  map[PatID]DefID
	AssocExprs   map[ExprID]DefID
	AssocPats    map[PatID]DefID
}

func NewInferenceResult() *InferenceResult {
	return &InferenceResult{
		ExprTypes:    make(map[ExprID]Ty),
		PatTypes:     make(map[PatID]Ty),
		Methods:      make(map[ExprID]DefID),
		Fields:       make(map[ExprID]DefID),
		RecordFields: make(map[ExprID]DefID),
		ExprVariants: make(map[ExprID]DefID),
		PatVariants:  make(map[PatID]DefID),
		AssocExprs:   make(map[ExprID]DefID),
		AssocPats:    make(map[PatID]DefID),
	}
}

func (r *InferenceResult) TypeOfExpr(id ExprID) (Ty, bool) {
	t, ok := r.ExprTypes[id]
	return t, ok && !t.IsUnknown()
}

func (r *InferenceResult) TypeOfPat(id PatID) (Ty, bool) {
	t, ok := r.PatTypes[id]
	return t, ok && !t.IsUnknown()
}

func lookupDef[K comparable](m map[K]DefID, k K) (DefID, bool) {
	id, ok := m[k]
	return id, ok && id != 0
}

// MethodResolution returns the function a method call expression calls.
func (r *InferenceResult) MethodResolution(call ExprID) (DefID, bool) {
	return lookupDef(r.Methods, call)
}

// FieldResolution returns the field a field expression reads.
func (r *InferenceResult) FieldResolution(expr ExprID) (DefID, bool) {
	return lookupDef(r.Fields, expr)
}

// RecordFieldResolution returns the field a record literal field
// initializer, identified by its value expression, initializes.
func (r *InferenceResult) RecordFieldResolution(value ExprID) (DefID, bool) {
	return lookupDef(r.RecordFields, value)
}

func (r *InferenceResult) VariantResolutionForExpr(expr ExprID) (DefID, bool) {
	return lookupDef(r.ExprVariants, expr)
}

func (r *InferenceResult) VariantResolutionForPat(pat PatID) (DefID, bool) {
	return lookupDef(r.PatVariants, pat)
}

// AssocResolutionForExpr returns the associated item a path expression
// was resolved to using the inferred receiver type.
func (r *InferenceResult) AssocResolutionForExpr(expr ExprID) (DefID, bool) {
	return lookupDef(r.AssocExprs, expr)
}

func (r *InferenceResult) AssocResolutionForPat(pat PatID) (DefID, bool) {
	return lookupDef(r.AssocPats, pat)
}
