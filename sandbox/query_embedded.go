package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/isdmx/coderun/language"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// EmbeddedStoreFile is the database file created in the workspace
const EmbeddedStoreFile = "store.db"

// embeddedMinValueLength is the floor for the per-value length limit. The
// engine shares the service process, so a single string or blob may not grow
// past max(this, output limit).
const embeddedMinValueLength = 1 << 20

// EmbeddedQueryExecutor runs query scripts in-process with the pure Go
// SQLite driver against a database file in the workspace. Output follows the
// sqlite3 shell list mode with headers: columns separated by "|".
type EmbeddedQueryExecutor struct {
	outputLimit int
	timeout     time.Duration
}

// NewEmbeddedQueryExecutor creates the in-process query engine
func NewEmbeddedQueryExecutor(outputLimit int, timeout time.Duration) *EmbeddedQueryExecutor {
	if outputLimit <= 0 {
		outputLimit = DefaultOutputLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &EmbeddedQueryExecutor{outputLimit: outputLimit, timeout: timeout}
}

// Execute implements LanguageExecutor
func (e *EmbeddedQueryExecutor) Execute(ctx context.Context, ws *Workspace, p language.Profile, req ExecuteRequest) (ExecuteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	db, err := sql.Open("sqlite", ws.Path(EmbeddedStoreFile))
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to open query store: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to connect to query store: %w", err)
	}
	defer conn.Close()

	if _, err := sqlite.Limit(conn, sqlite3.SQLITE_LIMIT_LENGTH, max(e.outputLimit, embeddedMinValueLength)); err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to limit query store: %w", err)
	}

	out := &cappedBuffer{limit: e.outputLimit}
	for _, stmt := range SplitStatements(p.WithPreamble(req.Code)) {
		if out.Overflowed() {
			break
		}
		if err := runStatement(ctx, conn, stmt, out); err != nil {
			if ctx.Err() != nil {
				return ExecuteResult{
					Stdout:   out.String(),
					Stderr:   "\n" + TimeoutMarker,
					ExitCode: 1,
					Outcome:  OutcomeTimedOut,
				}, nil
			}
			return ExecuteResult{
				Stdout:   out.String(),
				Stderr:   "Error: " + err.Error() + "\n",
				ExitCode: 1,
				Outcome:  OutcomeRuntimeFailed,
			}, nil
		}
	}

	if out.Overflowed() {
		return ExecuteResult{Stdout: out.String(), ExitCode: 1, Outcome: OutcomeOutputOverflow}, nil
	}
	return ExecuteResult{Stdout: out.String(), Outcome: OutcomeOK}, nil
}

func runStatement(ctx context.Context, conn *sql.Conn, stmt string, out *cappedBuffer) error {
	if !returnsRows(stmt) {
		_, err := conn.ExecContext(ctx, stmt)
		return err
	}

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	headerWritten := false
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if !headerWritten {
			fmt.Fprintln(out, strings.Join(cols, "|"))
			headerWritten = true
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		fmt.Fprintln(out, strings.Join(fields, "|"))
		if out.Overflowed() {
			return nil
		}
	}
	return rows.Err()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.DateTime)
	default:
		return fmt.Sprint(val)
	}
}

// returnsRows reports whether the statement produces a result set
func returnsRows(stmt string) bool {
	head := strings.ToUpper(firstWord(skipComments(stmt)))
	switch head {
	case "SELECT", "WITH", "VALUES", "EXPLAIN":
		return true
	}
	return containsWord(strings.ToUpper(stmt), "RETURNING")
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool { return !isWordRune(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		before := start == 0 || !isWordRune(rune(s[start-1]))
		after := end == len(s) || !isWordRune(rune(s[end]))
		if before && after {
			return true
		}
		i = end
	}
}

func isWordRune(r rune) bool {
	return r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// SplitStatements splits a script on semicolons that are outside string
// literals, quoted identifiers and comments. Comments are kept with the
// statement they precede; empty statements are dropped. Trigger bodies
// containing semicolons are not supported.
func SplitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote byte
	)

	flush := func() {
		if s := strings.TrimSpace(cur.String()); skipComments(s) != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]

		if quote != 0 {
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			cur.WriteByte(c)
		case c == '[':
			quote = ']'
			cur.WriteByte(c)
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}
			cur.WriteString(script[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				cur.WriteString(script[i:])
				i = len(script)
				continue
			}
			cur.WriteString(script[i : i+2+end+2])
			i += 2 + end + 1
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return stmts
}

// skipComments drops leading whitespace and comments
func skipComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return ""
			}
			s = s[end+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}
