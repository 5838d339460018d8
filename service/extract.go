package service

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Label-anchored, tolerant patterns for parsing plain-text email bodies.
// Each field is terminated by the next known label or end of input.
var bodyPatterns = map[string]*regexp.Regexp{
	"full_name":     regexp.MustCompile(`(?is)(?:vendor\s+)?(?:full\s+)?name[\s:]+([A-Za-z\s.]+?)(?:\n|age|role|gender|mobile|phone|email|$)`),
	"age":           regexp.MustCompile(`(?i)age[\s:]+(\d{1,3})`),
	"designation":   regexp.MustCompile(`(?is)(?:role|designation|type|category|business\s+type)[\s:]+([A-Za-z\s/\-]+?)(?:\n|gender|mobile|phone|email|$)`),
	"gender":        regexp.MustCompile(`(?i)(?:gender|sex)[\s:]+([A-Za-z]+)`),
	"mobile_number": regexp.MustCompile(`(?is)(?:mobile|phone|contact|number|cell)[\s:]+[\[(]?([0-9+\s\-()]+?)[\])]?(?:\n|registered|address|attachments|$)`),
	"email_id":      regexp.MustCompile(`(?i)(?:email|e-mail|mail)[\s:]+([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	"company_name":  regexp.MustCompile(`(?is)(?:company(?:\s+name)?|business(?:\s+name)?|organization|firm|enterprise)[\s:]+([A-Za-z0-9\s.&,-]+?)(?:\n|official|email|mobile|phone|registered|$)`),
	"address":       regexp.MustCompile(`(?is)(?:address|location|office\s+address)[\s:]+(.+?)(?:\n\n|\nname|\nage|\nrole|$)`),
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	nonDigits      = regexp.MustCompile(`[^\d]`)
	subjectAfter   = regexp.MustCompile(`(?i)vendor\s*registration\s*[-:]\s*(.+?)$`)
	subjectBefore  = regexp.MustCompile(`(?i)(.+?)\s*[-:]\s*vendor\s*registration`)
	subjectWords   = regexp.MustCompile(`(?i)(vendor|registration)`)
	separatorRun   = regexp.MustCompile(`[_\-]+`)
	htmlLineBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>|</li>|</h[1-6]>`)
	htmlTags       = regexp.MustCompile(`<[^>]+>`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// ExtractionOutcome is the result of parsing an email body: the filled
// fields plus plausibility flags. Implausible values are reported, not
// blocking.
type ExtractionOutcome struct {
	Info              model.BasicInfo
	NeedsManualReview bool
	Issues            []string
}

// ExtractBasicInfo parses labeled fields out of a plain-text email
// body, cleans the mobile number to digits, and validates plausibility
// (age 18-100, mobile 10-15 digits, email syntax, mandatory name,
// mobile and email present).
func ExtractBasicInfo(body string) *ExtractionOutcome {
	out := &ExtractionOutcome{}

	for field, pattern := range bodyPatterns {
		match := pattern.FindStringSubmatch(body)
		if match == nil {
			continue
		}
		value := strings.TrimSpace(whitespaceRun.ReplaceAllString(match[1], " "))
		if value != "" {
			out.Info.SetField(field, value)
		}
	}

	if out.Info.MobileNumber != "" {
		digits := nonDigits.ReplaceAllString(out.Info.MobileNumber, "")
		if len(digits) < 10 || len(digits) > 15 {
			out.flag("Invalid mobile length: " + strconv.Itoa(len(digits)) + " digits")
		} else {
			out.Info.MobileNumber = digits
		}
	}

	if out.Info.EmailID != "" {
		if err := validate.Var(out.Info.EmailID, "email"); err != nil {
			out.flag("Invalid email format")
		}
	}

	if out.Info.Age != "" {
		age, err := strconv.Atoi(out.Info.Age)
		if err != nil {
			out.flag("Invalid age format")
		} else if age < 18 || age > 100 {
			out.flag("Age out of range: " + out.Info.Age)
		}
	}

	var missing []string
	for _, pair := range [][2]string{
		{"full_name", "name"}, {"mobile_number", "mobile"}, {"email_id", "email"},
	} {
		if out.Info.Field(pair[0]) == "" {
			missing = append(missing, pair[1])
		}
	}
	if len(missing) > 0 {
		out.flag("Missing required fields: " + strings.Join(missing, ", "))
	}

	return out
}

func (o *ExtractionOutcome) flag(issue string) {
	o.NeedsManualReview = true
	o.Issues = append(o.Issues, issue)
}

// ValidateSubject checks that the subject carries both VENDOR and
// REGISTRATION (case-insensitive, any order) and recovers the company
// name from the common subject shapes, defaulting to "Unknown".
func ValidateSubject(subject string) (bool, string) {
	if subject == "" {
		return false, ""
	}

	upper := strings.ToUpper(subject)
	if !strings.Contains(upper, "VENDOR") || !strings.Contains(upper, "REGISTRATION") {
		return false, ""
	}

	company := "Unknown"
	if m := subjectAfter.FindStringSubmatch(subject); m != nil {
		company = strings.TrimSpace(m[1])
	} else if m := subjectBefore.FindStringSubmatch(subject); m != nil {
		company = strings.TrimSpace(m[1])
	} else if strings.ContainsAny(subject, "_-") {
		cleaned := subjectWords.ReplaceAllString(subject, "")
		cleaned = strings.TrimSpace(separatorRun.ReplaceAllString(cleaned, " "))
		if cleaned != "" {
			company = cleaned
		}
	}
	return true, company
}

// HTMLToPlainText strips an HTML email body down to labeled plain
// text the body patterns can run against
func HTMLToPlainText(content string) string {
	if content == "" {
		return ""
	}

	text := html.UnescapeString(content)
	text = htmlLineBreaks.ReplaceAllString(text, "\n")
	text = htmlTags.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var maleVariations = map[string]bool{
	"m": true, "male": true, "man": true, "boy": true,
	"gentleman": true, "he": true, "him": true,
}

var femaleVariations = map[string]bool{
	"f": true, "female": true, "woman": true, "girl": true,
	"lady": true, "she": true, "her": true,
}

// NormalizeGender maps free-form gender input to "Male" or "Female".
// Returns "" for unrecognized input; the caller re-prompts.
func NormalizeGender(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if maleVariations[normalized] {
		return "Male"
	}
	if femaleVariations[normalized] {
		return "Female"
	}
	return ""
}

var designationMap = []struct {
	key   string
	value string
}{
	{"co-founder", "Co-Founder"},
	{"cofounder", "Co-Founder"},
	{"proprietor", "Proprietor"},
	{"executive", "Executive"},
	{"founder", "Founder"},
	{"director", "Director"},
	{"manager", "Manager"},
	{"partner", "Partner"},
	{"owner", "Owner"},
	{"ceo", "CEO"},
}

// NormalizeDesignation maps a designation to its canonical title:
// exact match first, then substring, else a title-cased fallback.
// Longer keys come first so "co-founder" wins over "founder".
func NormalizeDesignation(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))

	for _, entry := range designationMap {
		if normalized == entry.key {
			return entry.value
		}
	}
	for _, entry := range designationMap {
		if strings.Contains(normalized, entry.key) {
			return entry.value
		}
	}
	return titleCase(strings.TrimSpace(raw))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
