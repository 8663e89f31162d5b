package roster

// canonicalPositions is the printed order of the officials block.
var canonicalPositions = []string{
	"Barangay Captain",
	"Committee on Peace and Order",
	"Committee on Health and Sanitation",
	"Committee on Education",
	"Committee on Agriculture",
	"Committee on Infrastructure",
	"Committee on Appropriation",
	"Committee on Women and Family",
	"SK Chairperson",
	"Barangay Secretary",
	"Barangay Treasurer",
}

// CaptainPosition is the default ceremonial signatory.
const CaptainPosition = "Barangay Captain"

// VacantName is printed for a position nobody currently holds.
const VacantName = "(Vacant)"

// CanonicalPositions returns a copy of the canonical position list.
func CanonicalPositions() []string {
	out := make([]string, len(canonicalPositions))
	copy(out, canonicalPositions)
	return out
}
