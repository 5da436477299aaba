package signature

// CVE identifiers reported by the classifiers.
const (
	CVELog4Shell          = "CVE-2021-44228"
	CVELog4j2ContextDoS   = "CVE-2021-45046"
	CVELog4j2Recursion    = "CVE-2021-45105"
	CVELog4j2JDBCAppender = "CVE-2021-44832"
	CVELog4j1JMSAppender  = "CVE-2021-4104"
	CVELogbackJNDI        = "CVE-2021-42550"
	CVECommonsText        = "CVE-2022-42889"
)

// Verdict is the outcome of classifying a single version.
type Verdict struct {
	Vulnerable bool
	CVE        string
}

// ClassifyLog4j2 covers log4j-core 2.x. 2.17.1 and later are safe, as are the
// backport lines 2.12.2+ (Java 7) and 2.3.2+ (Java 6).
func ClassifyLog4j2(v Version) Verdict {
	return Verdict{Vulnerable: IsVulnerableLog4j2(v), CVE: Log4j2CVE(v)}
}

// IsVulnerableLog4j2 reports whether a log4j-core version needs patching.
func IsVulnerableLog4j2(v Version) bool {
	if v.Major != 2 {
		return false
	}
	if v.Minor == 12 && v.Patch >= 2 && v.Patch != 3 {
		return false
	}
	if v.Minor == 3 && v.Patch >= 2 {
		return false
	}
	return v.Minor < 17 || (v.Minor == 17 && v.Patch < 1)
}

// Log4j2CVE picks the most severe advisory that still applies to v.
func Log4j2CVE(v Version) string {
	switch {
	case v.Minor == 15:
		return CVELog4j2ContextDoS
	case v.Minor == 16, v.Minor == 12 && v.Patch == 2:
		return CVELog4j2Recursion
	case v.Minor == 17 && v.Patch == 0,
		v.Minor == 12 && v.Patch == 3,
		v.Minor == 3 && v.Patch == 1:
		return CVELog4j2JDBCAppender
	default:
		return CVELog4Shell
	}
}

// ClassifyLogback flags 0.9.x, 1.0.x, 1.1.x and 1.2.0 through 1.2.7.
func ClassifyLogback(v Version) Verdict {
	vulnerable := (v.Major == 1 && v.Minor == 2 && v.Patch <= 7) ||
		(v.Major == 1 && v.Minor <= 1) ||
		(v.Major == 0 && v.Minor >= 9)
	return Verdict{Vulnerable: vulnerable, CVE: CVELogbackJNDI}
}

// ClassifyCommonsText flags 1.5 through 1.9 inclusive.
func ClassifyCommonsText(v Version) Verdict {
	vulnerable := v.Major == 1 && v.Minor >= 5 && v.Minor <= 9
	return Verdict{Vulnerable: vulnerable, CVE: CVECommonsText}
}
