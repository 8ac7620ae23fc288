package agentfs

import "github.com/agentfs/agentfs/internal/storage"

// POSIX mode-type bits, package-local aliases of internal/storage's
// constants used by the Stats and DirEntry kind helpers in types.go.
const (
	modeTypeMask = storage.ModeMask
	modeDir      = storage.ModeDir
	modeFile     = storage.ModeFile
	modeSymlink  = storage.ModeSymlink
)
