// Package patient manages the patient registry and self-service signup.
package patient

// Patient is one registry record. DOB is a calendar date in YYYY-MM-DD form;
// it never carries a time or zone.
type Patient struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DOB        string `json:"dob"`
	Contact    string `json:"contact"`
	HealthInfo string `json:"healthInfo"`
}
