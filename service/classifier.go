package service

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ankitkr9911/vendor-processing/model"
)

// Matches both the "aadhar" and "aadhaar" spellings anywhere in a filename
var aadhaarPattern = regexp.MustCompile(`aadh[a]?ar`)

var catalogueKeywords = []string{"catalogue", "catalog", "product"}

// Allowed file extensions per document kind
var allowedExtensions = map[string][]string{
	model.KindAadhaar:   {".pdf", ".jpg", ".jpeg", ".png"},
	model.KindPAN:       {".pdf", ".jpg", ".jpeg", ".png"},
	model.KindGST:       {".pdf", ".jpg", ".jpeg", ".png"},
	model.KindCatalogue: {".csv"},
}

// Kind tag synonyms accepted by the upload endpoint
var kindSynonyms = map[string]string{
	"aadhar":       model.KindAadhaar,
	"aadhaar":      model.KindAadhaar,
	"adhaar":       model.KindAadhaar,
	"adhar":        model.KindAadhaar,
	"pan":          model.KindPAN,
	"gst":          model.KindGST,
	"gstin":        model.KindGST,
	"catalogue":    model.KindCatalogue,
	"catalog":      model.KindCatalogue,
	"product_list": model.KindCatalogue,
	"products":     model.KindCatalogue,
}

// Classify maps a filename to a document kind by case-insensitive
// keyword match anywhere in the name. GST is checked before PAN so
// names like "gst_of_company.pdf" do not trip on the "pan" inside
// "company". A catalogue needs both the .csv extension and a keyword.
// Returns "" when nothing matches.
func Classify(filename string) string {
	lower := strings.ToLower(filename)

	if aadhaarPattern.MatchString(lower) {
		return model.KindAadhaar
	}
	if strings.Contains(lower, "gst") {
		return model.KindGST
	}
	if strings.Contains(lower, "pan") {
		return model.KindPAN
	}
	if strings.HasSuffix(lower, ".csv") {
		for _, kw := range catalogueKeywords {
			if strings.Contains(lower, kw) {
				return model.KindCatalogue
			}
		}
	}
	return ""
}

// NormalizeKindTag resolves an upload kind tag (case-insensitive, with
// common synonyms) to its canonical kind. Returns "" for unknown tags.
func NormalizeKindTag(tag string) string {
	return kindSynonyms[strings.ToLower(strings.TrimSpace(tag))]
}

// AllowedExtension reports whether the filename's extension is valid
// for the given kind
func AllowedExtension(kind, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExtensions[kind] {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ValidateAttachments checks an inbound attachment list against the
// mandatory kinds. Every proof must carry a valid extension, and each
// of aadhar, pan and gst must be satisfied by at least one filename.
// Returns the issue list; an empty list means valid.
func ValidateAttachments(filenames []string) []string {
	var issues []string
	found := make(map[string]bool)

	for _, filename := range filenames {
		lower := strings.ToLower(filename)

		validExt := false
		for _, ext := range allowedExtensions[model.KindAadhaar] {
			if strings.HasSuffix(lower, ext) {
				validExt = true
				break
			}
		}
		if !validExt {
			if strings.HasSuffix(lower, ".csv") {
				// Optional catalogue; content is never parsed here
				continue
			}
			issues = append(issues, "Invalid extension: "+filename+" (must be .pdf, .jpg, .jpeg, or .png)")
			continue
		}

		if aadhaarPattern.MatchString(lower) {
			found[model.KindAadhaar] = true
		}
		if strings.Contains(lower, "gst") {
			found[model.KindGST] = true
		}
		if strings.Contains(lower, "pan") {
			found[model.KindPAN] = true
		}
	}

	var missing []string
	for _, kind := range model.RequiredKinds {
		if !found[kind] {
			missing = append(missing, strings.ToUpper(kind))
		}
	}
	if len(missing) > 0 {
		issues = append(issues, "Missing documents: "+strings.Join(missing, ", "))
	}
	return issues
}
