package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var civilStatuses = map[string]string{
	"single":    "Single",
	"married":   "Married",
	"widowed":   "Widowed",
	"separated": "Separated",
	"divorced":  "Divorced",
}

// FormValue is form text that also accepts a bare JSON number, so clients
// may send "age": 34 or "age": "34".
type FormValue string

func (v *FormValue) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*v = ""
		return nil
	case len(raw) > 0 && raw[0] == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		*v = FormValue(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return fmt.Errorf("form value must be text or a number: %w", err)
	}
	*v = FormValue(number.String())
	return nil
}

// Submission is the form a resident or a desk officer fills in. Age is kept
// as form text so a malformed entry is reported per field rather than
// rejected by the decoder.
type Submission struct {
	RequesterName   string    `json:"requesterName"`
	RequesterEmail  string    `json:"requesterEmail"`
	Age             FormValue `json:"age"`
	CivilStatus     string    `json:"civilStatus"`
	Address         string    `json:"address"`
	Purpose         string    `json:"purpose"`
	CertificateType string    `json:"certificateType"`
	RequestDate     string    `json:"requestDate"`
}

// NewRequest validates a submission and builds a Pending request.
func NewRequest(id, unitID string, source Source, in Submission, now time.Time) (Request, error) {
	fields := map[string]string{}

	name := strings.Join(strings.Fields(in.RequesterName), " ")
	if name == "" {
		fields["requesterName"] = "name is required"
	}

	rawAge := strings.TrimSpace(string(in.Age))
	age, err := strconv.Atoi(rawAge)
	switch {
	case rawAge == "":
		fields["age"] = "age is required"
	case err != nil:
		fields["age"] = "age must be a whole number"
	case age < 1 || age > 150:
		fields["age"] = "age must be between 1 and 150"
	}

	civil, ok := civilStatuses[strings.ToLower(strings.TrimSpace(in.CivilStatus))]
	if strings.TrimSpace(in.CivilStatus) == "" {
		fields["civilStatus"] = "civil status is required"
	} else if !ok {
		fields["civilStatus"] = "civil status must be one of Single, Married, Widowed, Separated, Divorced"
	}

	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		fields["purpose"] = "purpose is required"
	}

	certType, err := ParseCertificateType(in.CertificateType)
	if err != nil {
		fields["certificateType"] = "certificate type must be Barangay Clearance, Certificate of Indigency or Certificate of Residency"
	}

	requestDate := now.UTC()
	if raw := strings.TrimSpace(in.RequestDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fields["requestDate"] = "request date must be YYYY-MM-DD"
		} else {
			requestDate = parsed
		}
	}

	if len(fields) > 0 {
		return Request{}, &ValidationError{Fields: fields}
	}

	return Request{
		ID:              id,
		RequesterName:   name,
		RequesterEmail:  strings.TrimSpace(in.RequesterEmail),
		Age:             age,
		CivilStatus:     civil,
		Address:         strings.TrimSpace(in.Address),
		Purpose:         purpose,
		CertificateType: certType,
		UnitID:          unitID,
		Status:          StatusPending,
		Source:          source,
		Version:         1,
		RequestDate:     requestDate,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}
