package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// NormalizeText folds line endings and trims every line so that the same
// standards text pasted from different editors hashes the same way.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// BuildCollectionID hashes the course, framework and normalized text into a
// deterministic document ID. Re-delivered feed imports map to the same ID.
func BuildCollectionID(courseID, framework, text string) string {
	key := strings.TrimSpace(courseID) + "|" + strings.ToLower(strings.TrimSpace(framework)) + "|" + NormalizeText(text)
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}
