package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"barangay/api/internal/auth"
	"barangay/api/internal/certificate"
	"barangay/api/internal/config"
	"barangay/api/internal/domain"
	"barangay/api/internal/export"
	"barangay/api/internal/live"
	"barangay/api/internal/logging"
	"barangay/api/internal/metrics"
	"barangay/api/internal/register"
	"barangay/api/internal/store"
)

var testSecret = []byte("test-secret")

var (
	admin    = domain.Actor{ID: "usr_admin", Name: "Kap Admin", Role: "admin", UnitID: "u1"}
	staff    = domain.Actor{ID: "usr_staff", Name: "Desk Staff", Role: "staff", UnitID: "u1"}
	resident = domain.Actor{ID: "usr_res", Name: "Maria Santos", Role: "resident", UnitID: "u1"}
	outsider = domain.Actor{ID: "usr_other", Name: "Other Admin", Role: "admin", UnitID: "u2"}
)

var fixedNow = time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC)

type fakeRenderer struct {
	mu      sync.Mutex
	fail    error
	formats []export.Format
}

func (f *fakeRenderer) Certificate(_ context.Context, draft certificate.Draft, format export.Format) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats = append(f.formats, format)
	if f.fail != nil {
		return nil, f.fail
	}
	return &export.Result{Data: []byte(draft.Body.Paragraph.Text()), Filename: export.CertificateFilename(draft) + "." + string(format), MimeType: "application/pdf"}, nil
}

func (f *fakeRenderer) Report(_ context.Context, report export.Report, format export.Format) (*export.Result, error) {
	var b strings.Builder
	b.WriteString(report.Title + "\n")
	for _, row := range report.Rows {
		b.WriteString(strings.Join(row, "|") + "\n")
	}
	return &export.Result{Data: []byte(b.String()), Filename: "report.html", MimeType: "text/html; charset=utf-8"}, nil
}

type fakeAssets struct {
	mu       sync.Mutex
	logoErr  error
	archived []string
}

func (f *fakeAssets) FetchLogo(context.Context, domain.Unit) (*certificate.Image, error) {
	if f.logoErr != nil {
		return nil, f.logoErr
	}
	return &certificate.Image{ObjectKey: "logos/u1.png", ContentType: "image/png", Data: []byte("png")}, nil
}

func (f *fakeAssets) ArchiveCertificate(_ context.Context, draft certificate.Draft, result *export.Result) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "certificates/" + draft.UnitID + "/" + result.Filename
	f.archived = append(f.archived, key)
	return key, nil
}

type fakeRegister struct {
	mu      sync.Mutex
	entries []register.Entry
	fail    error
}

func (f *fakeRegister) Record(entry register.Entry, author string) (register.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return register.CommitInfo{}, f.fail
	}
	f.entries = append(f.entries, entry)
	return register.CommitInfo{Hash: "abc123", Message: entry.Kind, Author: author}, nil
}

func (f *fakeRegister) History(unitID, requestID string, limit int) ([]register.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []register.CommitInfo{}
	for _, entry := range f.entries {
		if entry.UnitID == unitID && entry.RequestID == requestID {
			out = append(out, register.CommitInfo{Hash: "abc123", Message: entry.Kind})
		}
	}
	return out, nil
}

func (f *fakeRegister) Latest(unitID, requestID string) (register.Entry, register.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		entry := f.entries[i]
		if entry.UnitID == unitID && entry.RequestID == requestID {
			return entry, register.CommitInfo{Hash: "abc123", Message: entry.Kind}, nil
		}
	}
	return register.Entry{}, register.CommitInfo{}, register.ErrNoEntry
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []domain.Request
	fail error
}

func (f *fakeMailer) NotifyStatus(req domain.Request, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	f.sent = append(f.sent, req)
	return true, nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type pingStore struct {
	*store.MemoryStore
	pingErr      error
	officialsErr error
}

func (p *pingStore) Ping(context.Context) error { return p.pingErr }

func (p *pingStore) ListOfficials(ctx context.Context, unitID string) ([]domain.Official, error) {
	if p.officialsErr != nil {
		return nil, p.officialsErr
	}
	return p.MemoryStore.ListOfficials(ctx, unitID)
}

type harness struct {
	repo     *pingStore
	svc      *Service
	renderer *fakeRenderer
	assets   *fakeAssets
	register *fakeRegister
	mailer   *fakeMailer
	metrics  *metrics.Metrics
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := &pingStore{MemoryStore: store.NewMemoryStore()}
	ctx := context.Background()
	if err := repo.UpsertUnit(ctx, domain.Unit{ID: "u1", Name: "San Isidro", Municipality: "Malolos", Province: "Bulacan"}); err != nil {
		t.Fatal(err)
	}
	for _, o := range []domain.Official{
		{ID: "off_1", UnitID: "u1", Name: "Jose Rizal", Position: "Punong Barangay", TermStart: day(2023, 11, 30), TermEnd: day(2028, 11, 30)},
		{ID: "off_2", UnitID: "u1", Name: "Gabriela Silang", Position: "Barangay Secretary", TermStart: day(2023, 11, 30), TermEnd: day(2028, 11, 30)},
		{ID: "off_3", UnitID: "u1", Name: "Old Captain", Position: "Barangay Captain", TermStart: day(2018, 6, 30), TermEnd: day(2023, 6, 30)},
	} {
		if err := repo.InsertOfficial(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	logger := logging.Discard()
	h := &harness{
		repo:     repo,
		renderer: &fakeRenderer{},
		assets:   &fakeAssets{},
		register: &fakeRegister{},
		mailer:   &fakeMailer{},
		metrics:  metrics.New(),
	}
	hub := live.NewHub(repo, live.NewLocalNotifier(), logger)
	h.svc = New(config.Config{OverlayTTL: time.Minute}, repo, hub,
		WithRenderer(h.renderer),
		WithAssets(h.assets),
		WithRegister(h.register),
		WithMailer(h.mailer),
		WithMetrics(h.metrics),
		WithLogger(logger),
		WithClock(func() time.Time { return fixedNow }),
	)
	h.handler = NewHTTPServer(h.svc, "*", testSecret).Handler()
	return h
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, auth.Claims{
		Sub:    actor.ID,
		Name:   actor.Name,
		Role:   actor.Role,
		UnitID: actor.UnitID,
		JTI:    "jti-" + actor.ID,
		Exp:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (h *harness) submit(t *testing.T, name string) domain.Request {
	t.Helper()
	req, err := h.svc.Submit(context.Background(), staff, "u1", domain.Submission{
		RequesterName:   name,
		RequesterEmail:  "resident@example.com",
		Age:             "34",
		CivilStatus:     "married",
		Purpose:         "scholarship application",
		CertificateType: "indigency",
		RequestDate:     "2026-10-01",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return req
}

func (h *harness) do(t *testing.T, actor *domain.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *actor))
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

var errBoom = errors.New("boom")
