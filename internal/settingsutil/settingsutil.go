// Package settingsutil holds small validation helpers shared by the
// Redis and Postgres settings loaders. Not part of resilock's public
// contract.
package settingsutil

import (
	"fmt"
	"regexp"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name matches the conservative grammar
// required of a bare SQL identifier: a letter or underscore followed by
// letters, digits, or underscores. This is deliberately stricter than
// Postgres' own quoting rules, since the table name is interpolated
// directly into SQL text rather than passed as a bind parameter.
func ValidIdentifier(name string) bool {
	return name != "" && identifierRE.MatchString(name)
}

// PresentKeys returns the subset of keys whose lookup function reports a
// non-empty value.
func PresentKeys(lookup func(string) string, keys ...string) []string {
	var present []string
	for _, k := range keys {
		if lookup(k) != "" {
			present = append(present, k)
		}
	}
	return present
}

// RequireExactlyOneGroup checks that env vars form exactly one of two
// mutually exclusive modes: a single "url" key, or a non-empty subset of
// "fields" keys forming a complete set. It returns an error listing every
// offending key when both modes are present (mixed input) or neither is.
func RequireExactlyOneGroup(lookup func(string) string, urlKey string, fieldKeys ...string) (offending []string, err error) {
	urlPresent := lookup(urlKey) != ""
	fieldsPresent := PresentKeys(lookup, fieldKeys...)

	switch {
	case urlPresent && len(fieldsPresent) > 0:
		offending = append([]string{urlKey}, fieldsPresent...)
		return offending, fmt.Errorf("both %s and field-mode variables (%v) were set; use exactly one", urlKey, fieldsPresent)
	case !urlPresent && len(fieldsPresent) == 0:
		return nil, fmt.Errorf("neither %s nor any of %v were set", urlKey, fieldKeys)
	case !urlPresent && len(fieldsPresent) < len(fieldKeys):
		missing := make([]string, 0, len(fieldKeys))
		for _, k := range fieldKeys {
			if lookup(k) == "" {
				missing = append(missing, k)
			}
		}
		return missing, fmt.Errorf("field-mode requires all of %v; missing %v", fieldKeys, missing)
	default:
		return nil, nil
	}
}
