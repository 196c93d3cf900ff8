package scopebind

import "github.com/jward/scopebind/internal/store"

// Public aliases for the store types the Engine API hands out. External
// consumers use these names; no conversion is needed.

type Store = store.Store
type Snapshot = store.Snapshot
type File = store.File
