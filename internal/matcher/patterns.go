package matcher

import "github.com/greysquirr3l/codeguardian-go/internal/finding"

// Pattern categories used by the default set.
const (
	CategorySecret           = "secret"
	CategorySQLInjection     = "sqli"
	CategoryXSS              = "xss"
	CategoryCommandInjection = "command_injection"
)

// DefaultSecurityPatterns returns the built-in literal rule set.
func DefaultSecurityPatterns() []Pattern {
	return []Pattern{
		{"sk-", PatternMetadata{"stripe_secret_key", finding.SeverityHigh, CategorySecret, "Stripe secret API key detected"}},
		{"pk_live_", PatternMetadata{"stripe_public_key", finding.SeverityMedium, CategorySecret, "Stripe public API key detected"}},
		{"AKIA", PatternMetadata{"aws_access_key", finding.SeverityHigh, CategorySecret, "AWS access key detected"}},
		{"ghp_", PatternMetadata{"github_token", finding.SeverityHigh, CategorySecret, "GitHub personal access token detected"}},
		{"AIza", PatternMetadata{"google_api_key", finding.SeverityHigh, CategorySecret, "Google API key detected"}},

		{"SELECT * FROM", PatternMetadata{"sql_select_all", finding.SeverityMedium, CategorySQLInjection, "Potential SQL injection: SELECT * pattern"}},
		{"UNION SELECT", PatternMetadata{"sql_union", finding.SeverityHigh, CategorySQLInjection, "SQL injection: UNION SELECT attack pattern"}},
		{"DROP TABLE", PatternMetadata{"sql_drop_table", finding.SeverityCritical, CategorySQLInjection, "SQL injection: DROP TABLE attack pattern"}},

		{"<script>", PatternMetadata{"xss_script_tag", finding.SeverityHigh, CategoryXSS, "XSS: script tag detected"}},
		{"javascript:", PatternMetadata{"xss_javascript_url", finding.SeverityMedium, CategoryXSS, "XSS: javascript: URL detected"}},

		{"; rm -rf", PatternMetadata{"command_rm_rf", finding.SeverityCritical, CategoryCommandInjection, "Command injection: rm -rf detected"}},
		{"&& rm", PatternMetadata{"command_rm_chain", finding.SeverityHigh, CategoryCommandInjection, "Command injection: chained rm command"}},
	}
}

var suggestions = map[string]string{
	CategorySecret:           "Move the credential to a secret store or environment variable and rotate it",
	CategorySQLInjection:     "Use parameterized queries instead of building SQL from strings",
	CategoryXSS:              "Escape or sanitize untrusted data before writing it to a page",
	CategoryCommandInjection: "Avoid passing untrusted input to a shell",
}

// SuggestionFor returns the remediation hint for a category, if any.
func SuggestionFor(category string) string {
	return suggestions[category]
}
