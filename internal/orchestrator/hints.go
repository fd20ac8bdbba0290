package orchestrator

import "strings"

// Well-known drug and disease names used to guess the query pair before the
// pipeline runs. The guess only steers graph pre-loading and lazy ingestion;
// the extraction stage remains the authority on the pair.
var knownDrugHints = []string{
	"aspirin", "metformin", "ibuprofen", "atorvastatin", "simvastatin",
	"lovastatin", "pravastatin", "rosuvastatin", "lisinopril", "losartan",
	"amlodipine", "metoprolol", "propranolol", "atenolol", "warfarin",
	"heparin", "clopidogrel", "omeprazole", "ranitidine", "prednisone",
	"dexamethasone", "hydrocortisone", "insulin", "glipizide", "sitagliptin",
	"thalidomide", "rapamycin", "sirolimus", "tacrolimus", "cyclosporine",
	"methotrexate", "azathioprine", "rituximab", "infliximab", "adalimumab",
	"imatinib", "gefitinib", "erlotinib", "sorafenib", "sunitinib",
	"doxorubicin", "cisplatin", "paclitaxel", "gemcitabine", "tamoxifen",
	"sildenafil", "minoxidil", "finasteride", "fluoxetine", "sertraline",
	"ketamine", "naltrexone", "memantine", "donepezil", "levodopa",
}

var knownDiseaseHints = []string{
	"alzheimer", "parkinson", "huntington", "dementia", "epilepsy",
	"depression", "schizophrenia", "anxiety", "migraine", "stroke",
	"cancer", "melanoma", "glioblastoma", "leukemia", "lymphoma",
	"diabetes", "obesity", "hypertension", "atherosclerosis", "arrhythmia",
	"asthma", "fibrosis", "emphysema", "pneumonia", "tuberculosis",
	"arthritis", "osteoporosis", "lupus", "psoriasis", "eczema",
	"colitis", "crohn", "hepatitis", "cirrhosis", "pancreatitis",
	"nephropathy", "neuropathy", "retinopathy", "glaucoma", "malaria",
}

// Suffixes that usually mark a drug name in free text.
var drugSuffixHints = []string{
	"mab", "nib", "pril", "sartan", "statin", "olol", "azole", "cillin",
	"cycline", "dipine", "floxacin", "gliptin", "prazole", "vir",
}

// Suffixes that usually mark a disease or condition name.
var diseaseSuffixHints = []string{
	"itis", "osis", "oma", "emia", "pathy", "plegia", "trophy", "algia",
}

// ParsePairHint guesses the drug and disease named in a raw query. Either
// result may be empty.
func ParsePairHint(query string) (drug, disease string) {
	for _, word := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-' || r == '\'')
	}) {
		word = strings.Trim(word, "-'")
		if len(word) < 4 {
			continue
		}
		if drug == "" && looksLikeDrug(word) {
			drug = word
			continue
		}
		if disease == "" && looksLikeDisease(word) {
			disease = word
		}
	}
	return drug, disease
}

func looksLikeDrug(word string) bool {
	for _, known := range knownDrugHints {
		if word == known {
			return true
		}
	}
	for _, suffix := range drugSuffixHints {
		if strings.HasSuffix(word, suffix) {
			return true
		}
	}
	return false
}

func looksLikeDisease(word string) bool {
	for _, known := range knownDiseaseHints {
		if word == known || strings.HasPrefix(word, known) {
			return true
		}
	}
	for _, suffix := range diseaseSuffixHints {
		if strings.HasSuffix(word, suffix) {
			return true
		}
	}
	return false
}
