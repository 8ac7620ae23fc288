// Copyright 2024 AgentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SchemaVersion identifies the on-disk key layout. Bumping it without a
// migration path is a Corruption error at Open time.
const SchemaVersion = "1"

// ChunkSize is the size in bytes of a FileContent chunk. Writes are split
// on chunk boundaries; a partial trailing chunk is allowed.
const ChunkSize = 16384

// DefaultBusyTimeout is the busy_timeout applied to a freshly opened
// database, in milliseconds.
const DefaultBusyTimeout = 30000

// EnvBusyTimeout overrides DefaultBusyTimeout for any context.
const EnvBusyTimeout = "AGENTFS_BUSY_TIMEOUT"

// DBContext distinguishes callers that may want distinct busy_timeout
// tuning (e.g. a CLI invocation vs. a long-lived embedder process).
type DBContext int

const (
	// DBContextDefault uses the general busy_timeout.
	DBContextDefault DBContext = iota
	// DBContextCLI also honors the SetCLIBusyTimeout override.
	DBContextCLI
)

var configCLIBusyTimeout int

// SetCLIBusyTimeout lets the CLI apply a config-file busy_timeout override.
// A value of 0 is ignored (falls back to env var / default).
func SetCLIBusyTimeout(ms int) {
	configCLIBusyTimeout = ms
}

// GetBusyTimeout returns the busy_timeout, in milliseconds, for ctx.
// Priority: env var > config-file override (CLI only) > default.
func GetBusyTimeout(ctx DBContext) int {
	if val := os.Getenv(EnvBusyTimeout); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			return timeout
		}
	}
	if ctx == DBContextCLI && configCLIBusyTimeout > 0 {
		return configCLIBusyTimeout
	}
	return DefaultBusyTimeout
}

// BuildDSN builds the libsql DSN for path. The driver ignores DSN-encoded
// pragmas (see applyPragmas), but _busy_timeout is read by libsql itself
// before the connection is fully open, so it is still passed here too.
func BuildDSN(path string, ctx DBContext) string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d", path, GetBusyTimeout(ctx))
}

// POSIX mode-type bits, matching the packed inode record in spec.md §6.
const (
	ModeDir     = 0040000
	ModeFile    = 0100000
	ModeSymlink = 0120000
	ModeMask    = 0170000
)

const (
	DefaultDirMode  = ModeDir | 0755
	DefaultFileMode = ModeFile | 0644
)

// RootIno is the reserved constant inode id for the filesystem root,
// always present in the delta layer after first mount.
const RootIno uint64 = 1

// kvSchema creates the single key-value table the rest of the package
// builds the typed AgentFS key layout on top of (spec.md §6).
const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

// execStatements executes a semicolon-separated SQL script one statement at
// a time: the libsql driver does not support multi-statement Exec calls.
func execStatements(db *sql.DB, script string) error {
	for _, stmt := range splitStatements(script) {
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
