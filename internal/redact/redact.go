// Package redact masks credentials in command text before it is written to
// the audit log.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every masked value.
const Placeholder = "[REDACTED]"

type pattern struct {
	name string
	re   *regexp.Regexp
	// repl is the replacement template; empty replaces the whole match.
	repl string
}

// patterns run in order after NAME=value assignments are masked.
var patterns = []pattern{
	{name: "mysql-attached-password", re: regexp.MustCompile(`(^|\s)((?:mysql|mysqldump|mysqladmin|mariadb)\b[^|;&]*?\s-p)([^\s'"]+)`), repl: "${1}${2}" + Placeholder},
	{name: "aws-keypair", re: regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`)},
	{name: "aws-access-key", re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{name: "github-named", re: regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`)},
	{name: "github-token", re: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
	{name: "github-fine-grained", re: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{40,}`)},
	{name: "gcp-oauth", re: regexp.MustCompile(`ya29\.[0-9A-Za-z_-]{20,}`)},
	{name: "json-private-key", re: regexp.MustCompile(`"private_key"\s*:\s*"[^"]+"`)},
	{name: "api-key", re: regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`)},
	{name: "pem-header", re: regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`)},
	{name: "bearer", re: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{20,}=*`)},
	{name: "auth-header", re: regexp.MustCompile(`(?i)(authorization|x-api-key|private-token)\s*:\s*[^'"\n]+`)},
	{name: "url-userinfo", re: regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^/\s:@]+:[^@\s]+@`)},
	{name: "slack", re: regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`)},
	{name: "stripe-live", re: regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24,}`)},
	{name: "password-flag", re: regexp.MustCompile(`(?i)--(password|passwd|token|secret)(=|\s+)[^\s'"]+`)},
	{name: "password-assignment", re: regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`)},
}

// sensitiveNames are substrings of variable names whose values are masked
// when assigned on the command line.
var sensitiveNames = []string{
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_PAT",
	"API_KEY", "SECRET", "AUTH_TOKEN", "ACCESS_TOKEN",
	"PASSWORD", "PASSWD", "PGPASSWORD", "MYSQL_PWD",
	"DATABASE_URL", "REDIS_URL", "MONGO_URL",
	"STRIPE_SECRET_KEY", "SLACK_TOKEN", "NPM_TOKEN", "PYPI_TOKEN", "VAULT_TOKEN",
}

var assignment = regexp.MustCompile(`(^|[\s;&|(])([A-Za-z_][A-Za-z0-9_]*)=('[^']*'|"[^"]*"|[^\s;&|)]*)`)

// Redact returns input with every recognized credential replaced by
// Placeholder. Only the audit copy is redacted; decisions are made on the
// original text.
func Redact(input string) string {
	out := assignment.ReplaceAllStringFunc(input, func(m string) string {
		sub := assignment.FindStringSubmatch(m)
		if !sensitiveName(sub[2]) {
			return m
		}
		return sub[1] + sub[2] + "=" + Placeholder
	})
	for _, p := range patterns {
		repl := p.repl
		if repl == "" {
			repl = Placeholder
		}
		out = p.re.ReplaceAllString(out, repl)
	}
	return out
}

func sensitiveName(name string) bool {
	upper := strings.ToUpper(name)
	for _, s := range sensitiveNames {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}
