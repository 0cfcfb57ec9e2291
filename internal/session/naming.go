package session

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Artifact naming is a load-bearing contract: de-anonymization locates the
// mapping artifact purely by parsing the anonymized file's name. The scheme
// lives in this one format/parse pair; nothing else string-parses names.

const (
	anonymizedPrefix = "anonymized"
	mappingPrefix    = "sensitive_data"
	restoredPrefix   = "deanonymized"
)

// AnonymizedFileName returns the file name of the anonymized text artifact.
func AnonymizedFileName(baseName, id string) string {
	return fmt.Sprintf("%s_%s_%s.txt", anonymizedPrefix, baseName, id)
}

// MappingFileName returns the file name of the mapping artifact.
func MappingFileName(baseName, id string) string {
	return fmt.Sprintf("%s_%s_%s.csv", mappingPrefix, baseName, id)
}

// RestoredFileName returns the file name of the restored text artifact.
func RestoredFileName(baseName, id string) string {
	return fmt.Sprintf("%s_%s_%s.txt", restoredPrefix, baseName, id)
}

// ParseAnonymizedName extracts the base name and session id from the name
// of an anonymized artifact, reversing AnonymizedFileName.
func ParseAnonymizedName(path string) (baseName, id string, err error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	parts := strings.Split(stem, "_")
	if len(parts) < 3 || parts[0] != anonymizedPrefix {
		return "", "", fmt.Errorf("file name %q does not match the anonymized artifact scheme", filepath.Base(path))
	}

	id = parts[len(parts)-1]
	if len(id) != idLength {
		return "", "", fmt.Errorf("file name %q carries a malformed session id", filepath.Base(path))
	}

	baseName = strings.Join(parts[1:len(parts)-1], "_")
	return baseName, id, nil
}
