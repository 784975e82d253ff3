package errorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/vietddude/errwatch/internal/core/domain"
)

// Fingerprint derives a stable correlation id for a finding. The message is
// left out so rewording a diagnostic does not break grouping.
func Fingerprint(d domain.DetectedError) string {
	return hashParts(string(d.Kind), d.Category, d.FilePath, strconv.Itoa(d.Line), d.Rule)
}

// CorrelationID derives a stable id for a live failure from its message and
// the reporting agent.
func CorrelationID(message, agentID string) string {
	return hashParts(strings.ToLower(strings.TrimSpace(message)), agentID)
}

func hashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
