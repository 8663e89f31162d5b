package export

import (
	"strconv"
	"time"

	"barangay/api/internal/domain"
)

const dateLayout = "2006-01-02"

func stampCell(s *domain.Stamp) (string, string) {
	if s == nil {
		return "", ""
	}
	return s.By, s.At.Format("2006-01-02 15:04")
}

// RequestTable projects requests onto report columns. History reports show
// the accept stamp and archive reports the decline stamp.
func RequestTable(status domain.Status, requests []domain.Request) ([]string, [][]string) {
	columns := []string{"Request Date", "Name", "Age", "Civil Status", "Purpose", "Certificate"}
	switch status {
	case domain.StatusAccepted:
		columns = append(columns, "Accepted By", "Accepted At")
	case domain.StatusDeclined:
		columns = append(columns, "Declined By", "Declined At")
	default:
		columns = append(columns, "Status")
	}

	rows := make([][]string, 0, len(requests))
	for _, req := range requests {
		row := []string{
			req.RequestDate.Format(dateLayout),
			req.RequesterName,
			strconv.Itoa(req.Age),
			req.CivilStatus,
			req.Purpose,
			string(req.CertificateType),
		}
		switch status {
		case domain.StatusAccepted:
			by, at := stampCell(req.Accepted)
			row = append(row, by, at)
		case domain.StatusDeclined:
			by, at := stampCell(req.Declined)
			row = append(row, by, at)
		default:
			row = append(row, req.Status.Label())
		}
		rows = append(rows, row)
	}
	return columns, rows
}

// OfficialTable projects officials onto report columns, marking whether
// each term is active on asOf.
func OfficialTable(officials []domain.Official, active func(domain.Official) bool) ([]string, [][]string) {
	columns := []string{"Name", "Position", "Contact Number", "Email", "Term Start", "Term End", "Active"}
	rows := make([][]string, 0, len(officials))
	for _, o := range officials {
		state := "No"
		if active(o) {
			state = "Yes"
		}
		rows = append(rows, []string{
			o.Name, o.Position, o.ContactNumber, o.Email,
			o.TermStart.Format(dateLayout), o.TermEnd.Format(dateLayout), state,
		})
	}
	return columns, rows
}

// Report is the print adapter input: a title plus a tabular projection.
type Report struct {
	Title       string
	UnitName    string
	Columns     []string
	Rows        [][]string
	GeneratedAt time.Time
}
