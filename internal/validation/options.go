package validation

import "regexp"

// Shared value patterns adapters use for their option allowlists.
var (
	// PortSpec matches nmap-style port selections: "80", "80,443", "1-1024".
	PortSpec = regexp.MustCompile(`^[0-9]+([,-][0-9]+)*$`)

	// Identifier matches bare flag values: profile names, template tags.
	Identifier = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// IdentifierList matches comma-joined identifiers ("critical,high").
	IdentifierList = regexp.MustCompile(`^[a-zA-Z0-9_.-]+(,[a-zA-Z0-9_.-]+)*$`)

	// Number matches plain non-negative integers (rates, concurrency).
	Number = regexp.MustCompile(`^[0-9]+$`)

	// RelPath matches relative file paths without traversal or metacharacters.
	RelPath = regexp.MustCompile(`^\.?[a-zA-Z0-9_-][a-zA-Z0-9_.-]*(/\.?[a-zA-Z0-9_-][a-zA-Z0-9_.-]*)*/?$`)
)

// CheckOption validates one dynamic option value against its allowlisted
// pattern. Adapters call this for every option they place on a command line.
func CheckOption(key, value string, pattern *regexp.Regexp) error {
	if value == "" {
		return &InvalidInputError{Field: "option " + key, Value: value, Reason: "empty"}
	}
	if shellMetaChars.MatchString(value) {
		return &InvalidInputError{Field: "option " + key, Value: value, Reason: "contains shell metacharacter"}
	}
	if !pattern.MatchString(value) {
		return &InvalidInputError{Field: "option " + key, Value: value, Reason: "does not match allowed pattern"}
	}
	return nil
}
