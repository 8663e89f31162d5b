package app

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barangay/api/internal/domain"
	"barangay/api/internal/register"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, nil, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if decode(t, rr)["ok"] != true {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := newHarness(t)
	if rr := h.do(t, nil, http.MethodGet, "/api/ready", ""); rr.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rr.Code)
	}

	h.repo.pingErr = errBoom
	rr := h.do(t, nil, http.MethodGet, "/api/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready status = %d", rr.Code)
	}
	body := decode(t, rr)
	if body["status"] != "not_ready" {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, nil, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "barangay_request_stream_subscribers") {
		t.Fatalf("metrics status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, nil, http.MethodGet, "/api/units/u1/requests", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/units/u1/requests", nil)
	req.Header.Set("Authorization", "Bearer forged.token")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d", rec.Code)
	}
}

func TestSubmitAndTransitionOverHTTP(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, &staff, http.MethodPost, "/api/units/u1/requests",
		`{"requesterName":"Maria Clara Santos","age":"34","civilStatus":"Married","purpose":"scholarship application","certificateType":"Certificate of Indigency"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body = %s", rr.Code, rr.Body.String())
	}
	id := decode(t, rr)["id"].(string)

	rr = h.do(t, &admin, http.MethodPost, "/api/requests/"+id+"/process", `{"version":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("process status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr = h.do(t, &admin, http.MethodPost, "/api/requests/"+id+"/accept", `{"version":2,"format":"json"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("accept status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	request := body["request"].(map[string]any)
	if request["status"] != "accepted" || request["version"].(float64) != 3 {
		t.Fatalf("request = %v", request)
	}
	cert := body["certificate"].(map[string]any)
	entries := cert["draft"].(map[string]any)["officials"].(map[string]any)["entries"].([]any)
	if len(entries) != 11 {
		t.Fatalf("officials entries = %d", len(entries))
	}
	if key, _ := cert["archiveKey"].(string); key == "" {
		t.Fatal("expected archive key")
	}

	rr = h.do(t, &admin, http.MethodGet, "/api/requests/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	allowed := decode(t, rr)["allowed"].([]any)
	if len(allowed) != 1 || allowed[0] != "reprint" {
		t.Fatalf("allowed = %v", allowed)
	}
	rr = h.do(t, &staff, http.MethodGet, "/api/requests/"+id, "")
	if allowed := decode(t, rr)["allowed"].([]any); len(allowed) != 0 {
		t.Fatalf("staff allowed = %v", allowed)
	}

	rr = h.do(t, &staff, http.MethodGet, "/api/requests/"+id+"/certificate?format=pdf", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("certificate status = %d type = %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}

	rr = h.do(t, &staff, http.MethodGet, "/api/requests/"+id+"/issuances", "")
	if rr.Code != http.StatusOK || len(decode(t, rr)["items"].([]any)) != 1 {
		t.Fatalf("issuances status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = h.do(t, &staff, http.MethodGet, "/api/requests/"+id+"/issuances/latest", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("latest issuance status = %d body = %s", rr.Code, rr.Body.String())
	}
	if entry := decode(t, rr)["entry"].(map[string]any); entry["requestId"] != id || entry["kind"] != "issued" {
		t.Fatalf("latest entry = %v", entry)
	}
}

func TestSubmitAcceptsNumericAge(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, &staff, http.MethodPost, "/api/units/u1/requests",
		`{"requesterName":"Juan Cruz","age":34,"civilStatus":"Single","purpose":"employment","certificateType":"clearance"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if age := decode(t, rr)["age"]; age != float64(34) {
		t.Fatalf("age = %v", age)
	}

	rr = h.do(t, &staff, http.MethodPost, "/api/units/u1/requests",
		`{"requesterName":"Juan Cruz","age":0,"civilStatus":"Single","purpose":"employment","certificateType":"clearance"}`)
	if rr.Code != http.StatusUnprocessableEntity || decode(t, rr)["details"].(map[string]any)["age"] == nil {
		t.Fatalf("zero age status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestIssuancesBeforeFirstCertificate(t *testing.T) {
	h := newHarness(t)
	h.svc.register = register.New(t.TempDir())
	req := h.submit(t, "Josefa Llanes")
	path := "/api/requests/" + req.ID

	rr := h.do(t, &staff, http.MethodGet, path+"/issuances", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("issuances status = %d body = %s", rr.Code, rr.Body.String())
	}
	if items := decode(t, rr)["items"].([]any); len(items) != 0 {
		t.Fatalf("items = %v", items)
	}

	rr = h.do(t, &staff, http.MethodGet, path+"/issuances/latest", "")
	if rr.Code != http.StatusNotFound || decode(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("latest status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestTransitionErrorsOverHTTP(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t, "Andres Bonifacio")
	path := "/api/requests/" + req.ID

	cases := []struct {
		name   string
		actor  domain.Actor
		action string
		body   string
		status int
		code   string
	}{
		{name: "staff forbidden", actor: staff, action: "process", body: `{"version":1}`, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "other unit", actor: outsider, action: "decline", body: `{}`, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "invalid transition", actor: admin, action: "restore", body: `{"version":1}`, status: http.StatusConflict, code: "INVALID_TRANSITION"},
		{name: "stale version", actor: admin, action: "decline", body: `{"version":4}`, status: http.StatusConflict, code: "CONFLICT"},
		{name: "bad format", actor: admin, action: "decline", body: `{"format":"xls"}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "unknown action", actor: admin, action: "approve", body: `{}`, status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := h.do(t, &tc.actor, http.MethodPost, path+"/"+tc.action, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.status, rr.Body.String())
			}
			if got := decode(t, rr)["code"]; got != tc.code {
				t.Fatalf("code = %v, want %s", got, tc.code)
			}
		})
	}

	if rr := h.do(t, &admin, http.MethodGet, "/api/requests/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rr.Code)
	}
}

func TestSubmitValidationDetails(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, &staff, http.MethodPost, "/api/units/u1/requests", `{"requesterName":"","age":"abc","civilStatus":"Single","purpose":"x","certificateType":"clearance"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	details := decode(t, rr)["details"].(map[string]any)
	if details["requesterName"] == nil || details["age"] == nil {
		t.Fatalf("details = %v", details)
	}
}

func TestViewsRosterAndReportsOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "Juan Luna")

	rr := h.do(t, &staff, http.MethodGet, "/api/units/u1/requests?type=indigency", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("views status = %d", rr.Code)
	}
	body := decode(t, rr)
	if len(body["active"].([]any)) != 1 || len(body["history"].([]any)) != 0 {
		t.Fatalf("views = %v", body)
	}
	if rr := h.do(t, &staff, http.MethodGet, "/api/units/u1/requests?type=permit", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad type status = %d", rr.Code)
	}

	rr = h.do(t, &staff, http.MethodGet, "/api/units/u1/roster?asOf=2026-01-01", "")
	if rr.Code != http.StatusOK || len(decode(t, rr)["items"].([]any)) != 11 {
		t.Fatalf("roster status = %d body = %s", rr.Code, rr.Body.String())
	}
	if rr := h.do(t, &staff, http.MethodGet, "/api/units/u1/roster?asOf=soon", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad asOf status = %d", rr.Code)
	}

	rr = h.do(t, &admin, http.MethodPost, "/api/units/u1/officials", `{"name":"Marcelo del Pilar","position":"SK Chairperson","termStart":"2023-11-30","termEnd":"2026-11-30"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create official status = %d body = %s", rr.Code, rr.Body.String())
	}
	rr = h.do(t, &admin, http.MethodPost, "/api/units/u1/officials", `{"name":"X","position":"Y","termStart":"yesterday"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad official status = %d", rr.Code)
	}

	rr = h.do(t, &staff, http.MethodGet, "/api/units/u1/reports/history", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "inline;") {
		t.Fatalf("report status = %d disposition = %q", rr.Code, rr.Header().Get("Content-Disposition"))
	}

	rr = h.do(t, &staff, http.MethodGet, "/api/units/u1/requests/search?q=luna&limit=5", "")
	if rr.Code != http.StatusOK || decode(t, rr)["total"].(float64) != 1 {
		t.Fatalf("search status = %d body = %s", rr.Code, rr.Body.String())
	}
	if rr := h.do(t, &staff, http.MethodGet, "/api/units/u1/requests/search?q=luna&limit=-1", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit status = %d", rr.Code)
	}
}

func TestStreamServesViewsEvents(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/units/u1/requests/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, staff))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("status = %d type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	next := func() map[string]any {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				var views map[string]any
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &views); err != nil {
					t.Fatal(err)
				}
				return views
			}
		}
	}

	if first := next(); len(first["active"].([]any)) != 0 {
		t.Fatalf("first event = %v", first)
	}
	h.submit(t, "Diego Silang")
	if second := next(); len(second["active"].([]any)) != 1 {
		t.Fatalf("second event = %v", second)
	}
}

func TestCloseStreamsEndsOpenStreams(t *testing.T) {
	h := newHarness(t)
	srv := NewHTTPServer(h.svc, "*", testSecret)
	server := httptest.NewServer(srv.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/units/u1/requests/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, staff))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read first event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}

	srv.CloseStreams()
	srv.CloseStreams()
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("stream stayed open until the client gave up")
	}
}
