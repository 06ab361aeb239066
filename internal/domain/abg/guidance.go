package abg

// Guidance is the fixed, non patient-specific text shown with a result.
type Guidance struct {
	Summary  string   `json:"summary"`
	Symptoms []string `json:"symptoms,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

const normalSummary = "All ABG parameters are within expected physiological ranges."

var abnormalSymptoms = []string{
	"Shortness of breath",
	"Dizziness or confusion",
	"Rapid breathing",
	"Fatigue or drowsiness",
	"Cyanosis (bluish lips or fingers)",
}

var abnormalActions = []string{
	"Repeat ABG test for confirmation",
	"Administer oxygen or ventilation support",
	"Consult a respiratory specialist",
	"Monitor patient for deterioration",
	"Consider ICU referral if symptoms worsen",
}

// GuidanceFor returns the guidance for status. The Abnormal text is the same
// whichever readings triggered it.
func GuidanceFor(status Status) Guidance {
	if status == StatusNormal {
		return Guidance{Summary: normalSummary}
	}
	return Guidance{
		Symptoms: append([]string(nil), abnormalSymptoms...),
		Actions:  append([]string(nil), abnormalActions...),
	}
}
