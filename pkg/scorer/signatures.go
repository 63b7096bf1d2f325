package scorer

import "regexp"

// Signature is a named threat pattern with a severity weight. The set is
// static configuration, immutable once the scorer is built.
type Signature struct {
	Name    string
	Weight  float64
	pattern *regexp.Regexp
}

// Matches reports whether the signature's pattern matches the given input.
// Signatures without a compiled pattern only match by name via the upstream
// pipeline's observed signatures.
func (s Signature) Matches(input string) bool {
	if s.pattern == nil || input == "" {
		return false
	}
	return s.pattern.MatchString(input)
}

// defaultSignatures covers the common injection and probing patterns seen
// on public endpoints. Weights are tuned so that a single high-confidence
// match plus a bad reputation crosses the default block threshold.
func defaultSignatures() []Signature {
	return []Signature{
		{
			Name:   "sql_injection",
			Weight: 6,
			pattern: regexp.MustCompile(`(?i)(` +
				`['"]\s*OR\s*['"]?\d+['"]?\s*=\s*['"]?\d+|` +
				`UNION\s+(?:ALL\s+)?SELECT\s+|` +
				`(?:SLEEP|BENCHMARK|WAITFOR\s+DELAY)\s*\(\s*\d+|` +
				`['";]\s*;\s*(?:INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE)\s+|` +
				`\b(?:DROP|DELETE|TRUNCATE)\s+(?:TABLE|DATABASE|SCHEMA)\s+\w+` +
				`)`),
		},
		{
			Name:   "command_injection",
			Weight: 6,
			pattern: regexp.MustCompile(`(?i)(` +
				`[;&|]\s*(?:ls|dir|cat|type|wget|curl|nc|netcat)\b|` +
				`\b(?:system|exec|shell_exec)\s*\(|` +
				`python\s+-c\s*['"]import|` +
				`echo\s+[A-Za-z0-9+/=]+\s*\|\s*base64\s*-d` +
				`)`),
		},
		{
			Name:   "path_traversal",
			Weight: 5,
			pattern: regexp.MustCompile(`(?i)(` +
				`\.\./|\.\.\\|` +
				`%2e%2e%2f|%2e%2e%5c|` +
				`/etc/(?:passwd|shadow)|` +
				`/(?:proc|sys)/self/` +
				`)`),
		},
		{
			Name:   "xss",
			Weight: 4,
			pattern: regexp.MustCompile(`(?i)(` +
				`<script[^>]*>|` +
				`javascript\s*:|` +
				`on(?:error|load|click|mouseover)\s*=|` +
				`<img[^>]+src\s*=\s*[^>]*onerror` +
				`)`),
		},
		{
			Name:   "template_injection",
			Weight: 4,
			pattern: regexp.MustCompile(`(\{\{.*\}\}|\$\{.*\}|<%.*%>)`),
		},
		{
			Name:   "scanner_probe",
			Weight: 3,
			pattern: regexp.MustCompile(`(?i)(` +
				`/wp-(?:admin|login|content)|` +
				`/\.(?:env|git|aws|ssh)|` +
				`/phpmyadmin|` +
				`/cgi-bin/|` +
				`\.php(?:\?|$)` +
				`)`),
		},
	}
}

// buildSignatures merges the defaults with configured weight overrides and
// extra name-only signatures supplied by the upstream pipeline's ruleset.
func buildSignatures(overrides map[string]float64) []Signature {
	signatures := defaultSignatures()
	known := make(map[string]bool, len(signatures))

	for i := range signatures {
		known[signatures[i].Name] = true
		if weight, ok := overrides[signatures[i].Name]; ok && weight > 0 {
			signatures[i].Weight = weight
		}
	}

	for name, weight := range overrides {
		if known[name] || weight <= 0 {
			continue
		}
		signatures = append(signatures, Signature{Name: name, Weight: weight})
	}

	return signatures
}
