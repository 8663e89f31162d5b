// Package certificate composes the printable description of a certificate
// from a request, the resolved roster and the unit profile. It does no I/O.
package certificate

import (
	"strconv"
	"strings"
	"time"

	"barangay/api/internal/domain"
	"barangay/api/internal/roster"
)

const VacantSignatory = "(VACANT)"

type Image struct {
	ObjectKey   string `json:"objectKey"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type Letterhead struct {
	Country      string `json:"country"`
	Province     string `json:"province"`
	Municipality string `json:"municipality"`
	UnitName     string `json:"unitName"`
	AddressLine  string `json:"addressLine"`
	ContactLine  string `json:"contactLine"`
	Logo         *Image `json:"logo,omitempty"`
}

type OfficialLine struct {
	Position string `json:"position"`
	Name     string `json:"name"`
	Vacant   bool   `json:"vacant"`
}

type OfficialsBlock struct {
	Heading string         `json:"heading"`
	Entries []OfficialLine `json:"entries"`
}

type Body struct {
	Title      string    `json:"title"`
	Salutation string    `json:"salutation"`
	Paragraph  Paragraph `json:"paragraph"`
}

type Signature struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Vacant bool   `json:"vacant"`
}

// Draft is the renderer-neutral certificate. It is serializable and never
// persisted by the composer.
type Draft struct {
	RequestID       string                 `json:"requestId"`
	UnitID          string                 `json:"administrativeUnitId"`
	CertificateType domain.CertificateType `json:"certificateType"`
	IssuedAt        time.Time              `json:"issuedAt"`
	Letterhead      Letterhead             `json:"letterhead"`
	Officials       OfficialsBlock         `json:"officials"`
	Body            Body                   `json:"body"`
	Signature       Signature              `json:"signature"`
	Warnings        []string               `json:"warnings,omitempty"`
}

// Input is everything a certificate is composed from. LogoErr records a
// failed logo fetch; the certificate is still composed without it.
type Input struct {
	Request   domain.Request
	Officials []roster.Entry
	Unit      domain.Unit
	Logo      *Image
	LogoErr   error
	IssuedAt  time.Time
}

// Layout is the text geometry of the body, in points.
type Layout struct {
	ContentWidth float64
	FontSize     float64
	Font         Font
}

// DefaultLayout fits an A4 page with one-inch margins at 12pt.
func DefaultLayout() Layout {
	return Layout{ContentWidth: 451, FontSize: 12, Font: Helvetica}
}

type Composer struct {
	layout    Layout
	signatory string
	location  *time.Location
}

type Option func(*Composer)

func WithLayout(layout Layout) Option {
	return func(c *Composer) { c.layout = layout }
}

// WithSignatory sets the position whose holder signs certificates.
func WithSignatory(position string) Option {
	return func(c *Composer) {
		if strings.TrimSpace(position) != "" {
			c.signatory = position
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Composer) {
		if loc != nil {
			c.location = loc
		}
	}
}

// Manila is the zone issuance dates are printed in. The Philippines keeps
// no daylight saving time.
var Manila = time.FixedZone("PHT", 8*60*60)

func NewComposer(opts ...Option) *Composer {
	c := &Composer{
		layout:    DefaultLayout(),
		signatory: roster.CaptainPosition,
		location:  Manila,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.layout.Font == nil {
		c.layout.Font = Helvetica
	}
	return c
}

func (c *Composer) Compose(in Input) Draft {
	issued := in.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	issued = issued.In(c.location)

	draft := Draft{
		RequestID:       in.Request.ID,
		UnitID:          in.Request.UnitID,
		CertificateType: in.Request.CertificateType,
		IssuedAt:        issued,
		Letterhead:      letterhead(in.Unit),
		Officials:       officialsBlock(in.Officials),
		Signature:       c.signature(in.Officials),
	}
	if in.LogoErr != nil {
		err := &domain.CompositionError{Asset: "letterhead logo", Err: in.LogoErr}
		draft.Warnings = append(draft.Warnings, err.Error())
	} else if in.Logo != nil && len(in.Logo.Data) > 0 {
		draft.Letterhead.Logo = in.Logo
	}

	text := Certification(in.Request, in.Unit, issued)
	draft.Body = Body{
		Title:      Title(in.Request.CertificateType),
		Salutation: "TO WHOM IT MAY CONCERN:",
		Paragraph:  Justify(text, c.layout.ContentWidth, c.layout.Font, c.layout.FontSize),
	}
	return draft
}

func letterhead(unit domain.Unit) Letterhead {
	return Letterhead{
		Country:      "Republic of the Philippines",
		Province:     labelled("Province of ", unit.Province),
		Municipality: labelled("Municipality of ", unit.Municipality),
		UnitName:     strings.ToUpper(unitTitle(unit.Name)),
		AddressLine:  strings.TrimSpace(unit.AddressLine),
		ContactLine:  contactLine(unit),
	}
}

func labelled(prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return prefix + value
}

// unitTitle returns "Barangay <name>" whether or not the stored name already
// carries the word.
func unitTitle(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	for _, prefix := range []string{"barangay ", "brgy. ", "brgy "} {
		if strings.HasPrefix(lower, prefix) {
			name = name[len(prefix):]
			break
		}
	}
	return "Barangay " + name
}

func contactLine(unit domain.Unit) string {
	parts := make([]string, 0, 2)
	if v := strings.TrimSpace(unit.ContactNumber); v != "" {
		parts = append(parts, "Tel. No. "+v)
	}
	if v := strings.TrimSpace(unit.Email); v != "" {
		parts = append(parts, "Email: "+v)
	}
	return strings.Join(parts, " | ")
}

func officialsBlock(entries []roster.Entry) OfficialsBlock {
	block := OfficialsBlock{Heading: "BARANGAY OFFICIALS", Entries: make([]OfficialLine, 0, len(entries))}
	for _, e := range entries {
		block.Entries = append(block.Entries, OfficialLine{Position: e.Position, Name: e.Name, Vacant: e.IsPlaceholder})
	}
	return block
}

func (c *Composer) signature(entries []roster.Entry) Signature {
	holder := roster.Holder(entries, c.signatory)
	if holder.IsPlaceholder {
		return Signature{Name: VacantSignatory, Title: c.signatory, Vacant: true}
	}
	return Signature{Name: strings.ToUpper(holder.Name), Title: c.signatory}
}

// Surname is the last token of the full name.
func Surname(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func Title(certType domain.CertificateType) string {
	switch certType {
	case domain.CertificateClearance:
		return "BARANGAY CLEARANCE"
	case domain.CertificateIndigency:
		return "CERTIFICATE OF INDIGENCY"
	case domain.CertificateResidency:
		return "CERTIFICATE OF RESIDENCY"
	default:
		return strings.ToUpper(string(certType))
	}
}

// Certification builds the body text for the request's certificate type.
func Certification(req domain.Request, unit domain.Unit, issued time.Time) string {
	name := strings.Join(strings.Fields(req.RequesterName), " ")
	surname := Surname(name)
	place := residence(req, unit)
	civil := strings.ToLower(strings.TrimSpace(req.CivilStatus))
	age := strconv.Itoa(req.Age)

	var b strings.Builder
	b.WriteString("This is to certify that " + name + ", " + age + " years old, " + civil + ", ")
	switch req.CertificateType {
	case domain.CertificateIndigency:
		b.WriteString("and a bona fide resident of " + place + ", belongs to an indigent family of this barangay. ")
		b.WriteString("The income of the " + surname + " family is not sufficient to meet its basic needs. ")
	case domain.CertificateResidency:
		b.WriteString("is a bona fide resident of " + place + ", where the " + surname + " family presently resides. ")
	default:
		b.WriteString("and a resident of " + place + ", is known to be of good moral character and a law-abiding member of the " + surname + " family, with no derogatory record on file in this office. ")
	}
	b.WriteString("Issued this " + IssuanceDate(issued) + " upon the request of the above-named person for " + strings.TrimSpace(req.Purpose) + " purposes only.")
	return b.String()
}

func residence(req domain.Request, unit domain.Unit) string {
	parts := make([]string, 0, 4)
	if v := strings.TrimSpace(req.Address); v != "" {
		parts = append(parts, v)
	}
	if v := unitTitle(unit.Name); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(unit.Municipality); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(unit.Province); v != "" {
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "this barangay"
	}
	return strings.Join(parts, ", ")
}
