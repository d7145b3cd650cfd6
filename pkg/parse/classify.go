package parse

import "regexp"

// Document type labels stored on parsed documents and reports.
const (
	TypeTechnicalSpec = "technical_spec"
	TypeContract      = "contract"
	TypeInvitation    = "invitation"
	TypeQualification = "qualification"
	TypeEvaluation    = "evaluation"
	TypeAnnex         = "annex"
	TypeOther         = "other"
)

type classificationRule struct {
	pattern *regexp.Regexp
	docType string
}

// Order matters: first match wins.
var classificationRules = []classificationRule{
	{regexp.MustCompile(`(?i)technin|specifikacij`), TypeTechnicalSpec},
	{regexp.MustCompile(`(?i)sutart`), TypeContract},
	{regexp.MustCompile(`(?i)kvietim|skelbim`), TypeInvitation},
	{regexp.MustCompile(`(?i)kvalifikacij`), TypeQualification},
	{regexp.MustCompile(`(?i)vertinim|kriterij`), TypeEvaluation},
	{regexp.MustCompile(`(?i)pried|forma|šablon|sablon`), TypeAnnex},
}

// Classify assigns a document type from Lithuanian keyword heuristics.
// The filename is checked first; the content preview only decides when
// the filename matches nothing.
func Classify(filename, contentPreview string) string {
	for _, rule := range classificationRules {
		if rule.pattern.MatchString(filename) {
			return rule.docType
		}
	}
	for _, rule := range classificationRules {
		if rule.pattern.MatchString(contentPreview) {
			return rule.docType
		}
	}
	return TypeOther
}
