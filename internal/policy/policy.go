package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlchat/sqlchat/internal/observability"
)

// DefaultLimit is appended to SELECT statements that carry no LIMIT clause.
const DefaultLimit = 100

var DefaultAllowedTables = []string{"usuarios", "operaciones", "historial_memoria"}

var BlockedKeywords = []string{
	"DROP", "TRUNCATE", "DELETE", "UPDATE", "INSERT", "ALTER",
	"CREATE", "GRANT", "REVOKE", "SHUTDOWN", "EXECUTE",
}

// DuckDBBlockedKeywords cover duckdb statements that touch files, extensions
// or settings. duckdb has no read-only transactions to stop them.
var DuckDBBlockedKeywords = []string{
	"COPY", "ATTACH", "DETACH", "INSTALL", "LOAD", "PRAGMA",
	"EXPORT", "IMPORT", "CALL", "SET", "CHECKPOINT",
}

const (
	identifier = `"?[A-Za-z_][A-Za-z0-9_]*"?`
	tableRef   = identifier + `(?:\s+(?:AS\s+)?` + identifier + `)?`
	// Targets may follow parentheses or a quote with no space between.
	targetOpen = `\b[\s(]*`
	// Between list items: closing parentheses, each optionally aliased, then
	// the comma.
	listSep = `(?:\s*\)+(?:\s*(?:AS\s+)?` + identifier + `)?)*\s*,[\s(]*`
)

var (
	blockedPattern = compileBlocked(BlockedKeywords)
	selectPattern  = regexp.MustCompile(`(?i)\bSELECT\b`)
	limitPattern   = regexp.MustCompile(`(?i)\bLIMIT\b`)
	joinPattern    = regexp.MustCompile(`(?i)\bJOIN` + targetOpen + `(` + identifier + `)`)
	// FROM targets may be a comma list, each with an optional alias.
	fromPattern = regexp.MustCompile(`(?i)\bFROM` + targetOpen + `(` + tableRef + `(?:` + listSep + tableRef + `)*)`)
)

func compileBlocked(keywords []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(keywords, "|") + `)\b`)
}

// Result is the outcome of one validation. RewrittenStatement is set only
// when an accepted SELECT needed a LIMIT appended.
type Result struct {
	Accepted           bool
	Reason             string
	RewrittenStatement string
}

// Statement returns the text that should run for an accepted result.
func (r Result) Statement(original string) string {
	if r.RewrittenStatement != "" {
		return r.RewrittenStatement
	}
	return original
}

// Validator is a syntactic allow/block check over a single statement. It
// does not parse SQL; it may reject valid statements whose identifiers
// collide with a blocked keyword.
type Validator struct {
	tables   []string
	allowed  map[string]struct{}
	keywords []string
	blocked  *regexp.Regexp
}

func NewValidator(allowedTables []string) *Validator {
	v := &Validator{
		allowed:  make(map[string]struct{}, len(allowedTables)),
		keywords: BlockedKeywords,
		blocked:  blockedPattern,
	}
	for _, table := range allowedTables {
		table = strings.ToLower(strings.TrimSpace(table))
		if _, dup := v.allowed[table]; table == "" || dup {
			continue
		}
		v.allowed[table] = struct{}{}
		v.tables = append(v.tables, table)
	}
	return v
}

func DefaultValidator() *Validator {
	return NewValidator(DefaultAllowedTables)
}

// WithBlockedKeywords returns a copy of v that also blocks keywords.
func (v *Validator) WithBlockedKeywords(keywords ...string) *Validator {
	extended := *v
	extended.keywords = append(append([]string(nil), v.keywords...), keywords...)
	extended.blocked = compileBlocked(extended.keywords)
	return &extended
}

// AllowedTables returns the allow-list in declaration order.
func (v *Validator) AllowedTables() []string {
	return append([]string(nil), v.tables...)
}

func (v *Validator) Validate(statement string) Result {
	result := v.validate(statement)
	switch {
	case !result.Accepted:
		observability.ObservePolicyDecision("rejected")
	case result.RewrittenStatement != "":
		observability.ObservePolicyDecision("rewritten")
	default:
		observability.ObservePolicyDecision("accepted")
	}
	return result
}

func (v *Validator) validate(statement string) Result {
	if match := v.blocked.FindStringSubmatch(statement); match != nil {
		return reject("operation not permitted: %s", strings.ToUpper(match[1]))
	}

	for _, table := range referencedTables(statement) {
		if _, ok := v.allowed[table]; !ok {
			return reject("table not permitted: %s", table)
		}
	}

	trimmed := strings.TrimRightFunc(statement, isSpace)
	switch terminators := strings.Count(statement, ";"); {
	case terminators > 1:
		return reject("multiple statements not permitted")
	case terminators == 1 && !strings.HasSuffix(trimmed, ";"):
		return reject("multiple statements not permitted")
	}

	if strings.Contains(statement, "--") || strings.Contains(statement, "/*") {
		return reject("comments not permitted")
	}

	if selectPattern.MatchString(statement) && !limitPattern.MatchString(statement) {
		return Result{Accepted: true, RewrittenStatement: appendLimit(trimmed)}
	}
	return Result{Accepted: true}
}

// referencedTables lists FROM and JOIN targets. A derived table such as
// FROM (SELECT ...) contributes nothing itself; its inner FROM is matched on
// its own.
func referencedTables(statement string) []string {
	var tables []string
	for _, match := range fromPattern.FindAllStringSubmatch(statement, -1) {
		for i, item := range strings.Split(match[1], ",") {
			fields := strings.Fields(strings.TrimLeft(item, " \t\r\n("))
			if len(fields) == 0 {
				continue
			}
			table := tableName(fields[0])
			if table == "select" {
				if i == 0 {
					break
				}
				continue
			}
			tables = append(tables, table)
		}
	}
	for _, match := range joinPattern.FindAllStringSubmatch(statement, -1) {
		if table := tableName(match[1]); table != "select" {
			tables = append(tables, table)
		}
	}
	return tables
}

func tableName(raw string) string {
	return strings.ToLower(strings.Trim(raw, `"()`))
}

func appendLimit(trimmed string) string {
	limit := fmt.Sprintf("LIMIT %d", DefaultLimit)
	if body, ok := strings.CutSuffix(trimmed, ";"); ok {
		return strings.TrimRightFunc(body, isSpace) + " " + limit + ";"
	}
	return trimmed + " " + limit
}

func reject(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
