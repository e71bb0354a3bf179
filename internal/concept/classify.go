package concept

import "strings"

var oncologyKeywords = []string{
	"cancer", "oncology", "tumor", "tumour", "carcinoma", "lymphoma", "leukemia", "leukaemia",
	"melanoma", "sarcoma", "myeloma", "glioma", "glioblastoma", "neoplasm", "metastatic",
	"nsclc", "malignan", "blastoma", "mesothelioma",
}

var highCostKeywords = []string{
	"car-t", "car t", "cell therapy", "gene therapy", "crispr", "aav", "antibody-drug conjugate",
	"bispecific", "radioligand", "mrna", "oncolytic", "tcr-t", "allogeneic", "autologous",
}

// IsOncology reports whether the indication or title names a cancer.
func IsOncology(indication, title string) bool {
	return containsAny(strings.ToLower(indication+" "+title), oncologyKeywords)
}

// IsHighCostTherapy flags modalities whose per-patient cost runs well above
// small-molecule or antibody trials.
func IsHighCostTherapy(drugName, indication, title string) bool {
	return containsAny(strings.ToLower(drugName+" "+indication+" "+title), highCostKeywords)
}

func IsRealWorldEvidence(goals []Goal) bool {
	for _, g := range goals {
		if g == GoalRealWorldEvidence {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
