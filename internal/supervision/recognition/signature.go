package recognition

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/vietddude/overseer/internal/core/domain"
)

// Volatile tokens stripped before hashing so that the same root cause
// hashes to the same signature across occurrences.
var (
	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexPattern  = regexp.MustCompile(`0x[0-9a-fA-F]+|[0-9a-fA-F]{16,}`)
	numPattern  = regexp.MustCompile(`\d+`)
	wsPattern   = regexp.MustCompile(`\s+`)
)

// Normalize strips identifiers, addresses, counters and timestamps from
// an error message, leaving only its shape.
func Normalize(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	s = uuidPattern.ReplaceAllString(s, "#")
	s = hexPattern.ReplaceAllString(s, "#")
	s = numPattern.ReplaceAllString(s, "#")
	s = wsPattern.ReplaceAllString(s, " ")
	return s
}

// Compute derives the stable failure signature for a unit, category and
// message. Equal inputs always produce equal signatures.
func Compute(unitName string, category domain.FailureCategory, message string) string {
	var b strings.Builder
	b.WriteString(unitName)
	b.WriteByte('\n')
	b.WriteString(string(category))
	b.WriteByte('\n')
	b.WriteString(Normalize(message))

	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Categorize extracts the failure category from an error produced by
// the supervisor or orchestrator. Reasons are prefixed with their
// category; anything unprefixed is unknown.
func Categorize(err error) domain.FailureCategory {
	if err == nil {
		return domain.CategoryUnknown
	}
	msg := err.Error()
	for _, c := range []domain.FailureCategory{
		domain.CategoryStartFailure,
		domain.CategoryReadinessTimeout,
		domain.CategoryHeartbeatTimeout,
		domain.CategoryPlaybookStep,
		domain.CategoryResource,
		domain.CategoryConfig,
	} {
		if strings.HasPrefix(msg, string(c)+":") || strings.HasPrefix(msg, string(c)+" ") {
			return c
		}
	}
	return domain.CategoryUnknown
}
