package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"barangay/api/internal/certificate"
	"barangay/api/internal/config"
	"barangay/api/internal/domain"
	"barangay/api/internal/export"
	"barangay/api/internal/lifecycle"
	"barangay/api/internal/live"
	"barangay/api/internal/metrics"
	"barangay/api/internal/partition"
	"barangay/api/internal/rbac"
	"barangay/api/internal/register"
	"barangay/api/internal/roster"
	"barangay/api/internal/search"
	"barangay/api/internal/store"
	"barangay/api/internal/util"
)

type renderer interface {
	Certificate(ctx context.Context, draft certificate.Draft, format export.Format) (*export.Result, error)
	Report(ctx context.Context, report export.Report, format export.Format) (*export.Result, error)
}

type assetStore interface {
	FetchLogo(ctx context.Context, unit domain.Unit) (*certificate.Image, error)
	ArchiveCertificate(ctx context.Context, draft certificate.Draft, result *export.Result) (string, error)
}

type certificateRegister interface {
	Record(entry register.Entry, author string) (register.CommitInfo, error)
	History(unitID, requestID string, limit int) ([]register.CommitInfo, error)
	Latest(unitID, requestID string) (register.Entry, register.CommitInfo, error)
}

type statusMailer interface {
	NotifyStatus(req domain.Request, unitName string) (bool, error)
}

type Service struct {
	cfg      config.Config
	repo     store.Repository
	hub      *live.Hub
	boards   *partition.Boards
	resolver *roster.Resolver
	composer *certificate.Composer
	exporter renderer
	assets   assetStore
	register certificateRegister
	mailer   statusMailer
	search   *search.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	background sync.WaitGroup
}

type Option func(*Service)

func WithAssets(a assetStore) Option              { return func(s *Service) { s.assets = a } }
func WithRegister(r certificateRegister) Option   { return func(s *Service) { s.register = r } }
func WithMailer(m statusMailer) Option            { return func(s *Service) { s.mailer = m } }
func WithSearch(svc *search.Service) Option       { return func(s *Service) { s.search = svc } }
func WithMetrics(m *metrics.Metrics) Option       { return func(s *Service) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option            { return func(s *Service) { s.logger = l } }
func WithRenderer(r renderer) Option              { return func(s *Service) { s.exporter = r } }
func WithComposer(c *certificate.Composer) Option { return func(s *Service) { s.composer = c } }
func WithClock(now func() time.Time) Option       { return func(s *Service) { s.now = now } }

func New(cfg config.Config, repo store.Repository, hub *live.Hub, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		repo:     repo,
		hub:      hub,
		boards:   partition.NewBoards(cfg.OverlayTTL),
		resolver: roster.NewResolver(repo),
		composer: certificate.NewComposer(),
		exporter: export.NewService(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewScanSearch(repo), s.logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Wait blocks until background side effects have finished.
func (s *Service) Wait() {
	s.background.Wait()
	s.search.Wait()
}

func (s *Service) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// authorize checks the role policy and that the actor belongs to unitID.
func authorize(actor domain.Actor, action rbac.Action, unitID string) error {
	if !rbac.Can(rbac.Normalize(actor.Role), action) || actor.UnitID != unitID {
		return &domain.AuthorizationError{Actor: actor.ID, Action: string(action)}
	}
	return nil
}

func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	var unavailable *domain.StoreUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

// Submit validates and stores a new Pending request. Residents file online
// requests for their own unit; staff and admins record walk-ins.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, unitID string, in domain.Submission) (domain.Request, error) {
	if err := authorize(actor, rbac.ActionSubmit, unitID); err != nil {
		return domain.Request{}, err
	}
	source := domain.SourceWalkIn
	if rbac.Normalize(actor.Role) == rbac.RoleResident {
		source = domain.SourceOnline
	}
	req, err := domain.NewRequest(util.NewID("req"), unitID, source, in, s.now())
	if err != nil {
		return domain.Request{}, err
	}
	if err := s.hub.Create(ctx, req); err != nil {
		return domain.Request{}, err
	}
	s.boards.Optimistic(req)
	s.search.IndexRequest(req)
	s.logger.InfoContext(ctx, "request submitted",
		"request_id", req.ID,
		"unit_id", unitID,
		"certificate_type", req.CertificateType,
		"source", req.Source,
	)
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, actor domain.Actor, id string) (domain.Request, error) {
	req, err := s.hub.Get(ctx, id)
	if err != nil {
		return domain.Request{}, err
	}
	if err := authorize(actor, rbac.ActionRead, req.UnitID); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// Views partitions a fresh snapshot of the unit's requests.
func (s *Service) Views(ctx context.Context, actor domain.Actor, unitID string, certType domain.CertificateType) (partition.Views, error) {
	if err := authorize(actor, rbac.ActionRead, unitID); err != nil {
		return partition.Views{}, err
	}
	snapshot, err := s.hub.Snapshot(ctx, live.Filter{UnitID: unitID, CertificateType: certType})
	if err != nil {
		return partition.Views{}, err
	}
	return partition.Split(snapshot, certType), nil
}

// Stream delivers the unit's views on every change until Close.
type Stream struct {
	C <-chan partition.Views

	sub     *live.Subscription
	release func()
	done    chan struct{}
	once    sync.Once
}

func (st *Stream) Close() {
	st.once.Do(func() {
		st.sub.Close()
		<-st.done
		st.release()
	})
}

func (s *Service) Stream(ctx context.Context, actor domain.Actor, unitID string, certType domain.CertificateType) (*Stream, error) {
	if err := authorize(actor, rbac.ActionRead, unitID); err != nil {
		return nil, err
	}
	sub, err := s.hub.Subscribe(ctx, live.Filter{UnitID: unitID, CertificateType: certType})
	if err != nil {
		return nil, err
	}
	board, releaseBoard := s.boards.Acquire(unitID, certType)
	closed := s.metrics.SubscriberOpened()

	out := make(chan partition.Views, 1)
	st := &Stream{
		C:    out,
		sub:  sub,
		done: make(chan struct{}),
		release: func() {
			releaseBoard()
			closed()
		},
	}
	go func() {
		defer close(st.done)
		defer close(out)
		for snapshot := range sub.C {
			views := board.Apply(snapshot)
			select {
			case <-out:
			default:
			}
			out <- views
		}
	}()
	return st, nil
}

// Issued describes the certificate produced by an accept or re-print.
type Issued struct {
	Draft      certificate.Draft `json:"draft"`
	Filename   string            `json:"filename,omitempty"`
	ArchiveKey string            `json:"archiveKey,omitempty"`
	Commit     string            `json:"registerCommit,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`

	artifact *export.Result
}

func (i *Issued) Artifact() *export.Result {
	if i == nil {
		return nil
	}
	return i.artifact
}

type TransitionResult struct {
	Request     domain.Request `json:"request"`
	Certificate *Issued        `json:"certificate,omitempty"`
}

// Transition runs one lifecycle action. expectedVersion is the version the
// caller last saw; zero means the current stored version.
func (s *Service) Transition(ctx context.Context, actor domain.Actor, requestID string, action rbac.Action, expectedVersion int, format export.Format) (TransitionResult, error) {
	result, err := s.transition(ctx, actor, requestID, action, expectedVersion, format)
	s.metrics.IncrementTransition(string(action), transitionOutcome(err))
	return result, err
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsAuthorization(err):
		return "forbidden"
	case domain.IsInvalidTransition(err):
		return "invalid"
	case domain.IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}

func (s *Service) transition(ctx context.Context, actor domain.Actor, requestID string, action rbac.Action, expectedVersion int, format export.Format) (TransitionResult, error) {
	current, err := s.hub.Get(ctx, requestID)
	if err != nil {
		return TransitionResult{}, err
	}
	if actor.UnitID != current.UnitID {
		return TransitionResult{}, &domain.AuthorizationError{Actor: actor.ID, Action: string(action)}
	}
	if expectedVersion == 0 {
		expectedVersion = current.Version
	}
	if expectedVersion != current.Version {
		return TransitionResult{}, &domain.ConflictError{RequestID: requestID, Expected: expectedVersion, Actual: current.Version}
	}

	at := s.now()
	next, effect, err := lifecycle.Apply(current, lifecycle.Command{Action: action, Actor: actor, At: at})
	if err != nil {
		return TransitionResult{}, err
	}

	// Issuance inputs are read before anything is written, so a store
	// failure leaves the request untouched and the action can be retried.
	var in issuanceInput
	if effect.Compose {
		in, err = s.loadIssuanceInput(ctx, current.UnitID, at)
		if err != nil {
			return TransitionResult{}, err
		}
	}

	stored := current
	if effect.Changed {
		stored, err = s.hub.Update(ctx, next, expectedVersion)
		if err != nil {
			return TransitionResult{}, err
		}
		s.boards.Optimistic(stored)
		s.search.IndexRequest(stored)
	}
	s.logger.InfoContext(ctx, "request transition",
		"request_id", stored.ID,
		"unit_id", stored.UnitID,
		"action", action,
		"status", stored.Status,
		"version", stored.Version,
		"actor", actor.ID,
	)

	result := TransitionResult{Request: stored}
	if effect.Compose {
		kind := register.KindIssued
		if action == rbac.ActionReprint {
			kind = register.KindReprinted
		}
		result.Certificate = s.issue(ctx, stored, in, at, actor, kind, format)
	}
	if effect.Notify && s.mailer != nil {
		s.notify(stored)
	}
	return result, nil
}

type issuanceInput struct {
	entries []roster.Entry
	unit    domain.Unit
	logo    *certificate.Image
	logoErr error
}

// loadIssuanceInput fetches the roster and the unit profile with its logo
// concurrently. A missing unit profile composes with empty fields.
func (s *Service) loadIssuanceInput(ctx context.Context, unitID string, asOf time.Time) (issuanceInput, error) {
	var in issuanceInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.resolver.Resolve(gctx, unitID, asOf)
		if err != nil {
			return storeErr("resolve roster", err)
		}
		in.entries = entries
		return nil
	})
	g.Go(func() error {
		unit, err := s.repo.GetUnit(gctx, unitID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			unit = domain.Unit{ID: unitID}
		case err != nil:
			return storeErr("get unit", err)
		}
		in.unit = unit
		if s.assets != nil {
			in.logo, in.logoErr = s.assets.FetchLogo(gctx, unit)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return issuanceInput{}, err
	}
	return in, nil
}

func (s *Service) compose(req domain.Request, in issuanceInput, issuedAt time.Time) certificate.Draft {
	return s.composer.Compose(certificate.Input{
		Request:   req,
		Officials: in.entries,
		Unit:      in.unit,
		Logo:      in.logo,
		LogoErr:   in.logoErr,
		IssuedAt:  issuedAt,
	})
}

func (s *Service) render(ctx context.Context, draft certificate.Draft, format export.Format) (*export.Result, error) {
	started := time.Now()
	result, err := s.exporter.Certificate(ctx, draft, format)
	s.metrics.ObserveExportLatency(string(format), time.Since(started))
	return result, err
}

// issue composes the certificate from inputs loaded before the transition
// was stored, then renders, archives and records it. Failures after
// composition degrade to warnings.
func (s *Service) issue(ctx context.Context, req domain.Request, in issuanceInput, issuedAt time.Time, actor domain.Actor, kind string, format export.Format) *Issued {
	draft := s.compose(req, in, issuedAt)
	s.metrics.IncrementCertificate(string(req.CertificateType), kind)
	issued := &Issued{Draft: draft, Warnings: append([]string(nil), draft.Warnings...)}

	artifact, err := s.render(ctx, draft, format)
	if err != nil {
		s.logger.WarnContext(ctx, "certificate render failed", "request_id", req.ID, "format", format, "error", err)
		s.metrics.IncrementSideEffectFailure("render")
		issued.Warnings = append(issued.Warnings, fmt.Sprintf("%s rendering unavailable: %v", format, err))
	} else {
		issued.artifact = artifact
		issued.Filename = artifact.Filename
	}

	if s.assets != nil && artifact != nil {
		key, err := s.assets.ArchiveCertificate(ctx, draft, artifact)
		if err != nil {
			s.logger.WarnContext(ctx, "certificate archive failed", "request_id", req.ID, "error", err)
			s.metrics.IncrementSideEffectFailure("archive")
		} else {
			issued.ArchiveKey = key
		}
	}

	if s.register != nil {
		by := actor.Name
		if strings.TrimSpace(by) == "" {
			by = actor.ID
		}
		commit, err := s.register.Record(register.EntryFromDraft(draft, kind, by, issued.ArchiveKey), by)
		if err != nil {
			s.logger.WarnContext(ctx, "register commit failed", "request_id", req.ID, "error", err)
			s.metrics.IncrementSideEffectFailure("register")
		} else {
			issued.Commit = commit.Hash
		}
	}

	s.logger.InfoContext(ctx, "certificate issued",
		"request_id", req.ID,
		"kind", kind,
		"signatory", draft.Signature.Name,
		"warnings", len(issued.Warnings),
	)
	return issued
}

func (s *Service) notify(req domain.Request) {
	s.goBackground(func() {
		ctx := context.Background()
		unitName := ""
		if unit, err := s.repo.GetUnit(ctx, req.UnitID); err == nil {
			unitName = unit.Name
		}
		if _, err := s.mailer.NotifyStatus(req, unitName); err != nil {
			s.logger.Warn("status notice failed", "request_id", req.ID, "error", err)
			s.metrics.IncrementSideEffectFailure("notify")
		}
	})
}

// Certificate renders the certificate of an accepted request without
// recording an issuance.
func (s *Service) Certificate(ctx context.Context, actor domain.Actor, requestID string, format export.Format) (*export.Result, error) {
	req, err := s.GetRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusAccepted {
		return nil, &domain.InvalidTransitionError{From: req.Status, Action: "print"}
	}
	issuedAt := s.now()
	in, err := s.loadIssuanceInput(ctx, req.UnitID, issuedAt)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, s.compose(req, in, issuedAt), format)
}

// Issuances lists the register commits for a request, newest first.
func (s *Service) Issuances(ctx context.Context, actor domain.Actor, requestID string, limit int) ([]register.CommitInfo, error) {
	req, err := s.GetRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if s.register == nil {
		return []register.CommitInfo{}, nil
	}
	history, err := s.register.History(req.UnitID, req.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("register history: %w", err)
	}
	return history, nil
}

// LatestIssuance returns what the register last recorded for a request.
func (s *Service) LatestIssuance(ctx context.Context, actor domain.Actor, requestID string) (register.Entry, register.CommitInfo, error) {
	req, err := s.GetRequest(ctx, actor, requestID)
	if err != nil {
		return register.Entry{}, register.CommitInfo{}, err
	}
	if s.register == nil {
		return register.Entry{}, register.CommitInfo{}, register.ErrNoEntry
	}
	entry, commit, err := s.register.Latest(req.UnitID, req.ID)
	if err != nil {
		return register.Entry{}, register.CommitInfo{}, fmt.Errorf("register latest: %w", err)
	}
	return entry, commit, nil
}

func (s *Service) Roster(ctx context.Context, actor domain.Actor, unitID string, asOf time.Time) ([]roster.Entry, error) {
	if err := authorize(actor, rbac.ActionRead, unitID); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	entries, err := s.resolver.Resolve(ctx, unitID, asOf)
	if err != nil {
		return nil, storeErr("resolve roster", err)
	}
	return entries, nil
}

type OfficialView struct {
	domain.Official
	Active bool `json:"active"`
}

func (s *Service) Officials(ctx context.Context, actor domain.Actor, unitID string) ([]OfficialView, error) {
	if err := authorize(actor, rbac.ActionRead, unitID); err != nil {
		return nil, err
	}
	officials, err := s.repo.ListOfficials(ctx, unitID)
	if err != nil {
		return nil, storeErr("list officials", err)
	}
	now := s.now()
	views := make([]OfficialView, 0, len(officials))
	for _, o := range officials {
		views = append(views, OfficialView{Official: o, Active: roster.IsActive(o, now)})
	}
	return views, nil
}

func (s *Service) CreateOfficial(ctx context.Context, actor domain.Actor, unitID string, official domain.Official) (domain.Official, error) {
	if err := authorize(actor, rbac.ActionManageOfficials, unitID); err != nil {
		return domain.Official{}, err
	}
	official.ID = util.NewID("off")
	official.UnitID = unitID
	official.Name = strings.Join(strings.Fields(official.Name), " ")
	official.Position = strings.Join(strings.Fields(official.Position), " ")
	if err := official.Validate(); err != nil {
		return domain.Official{}, err
	}
	if err := s.repo.InsertOfficial(ctx, official); err != nil {
		return domain.Official{}, storeErr("insert official", err)
	}
	s.logger.InfoContext(ctx, "official created", "official_id", official.ID, "unit_id", unitID, "position", official.Position)
	return official, nil
}

const (
	ReportHistory   = "history"
	ReportArchive   = "archive"
	ReportOfficials = "officials"
)

// Report builds a printable table for the unit.
func (s *Service) Report(ctx context.Context, actor domain.Actor, unitID, kind string, certType domain.CertificateType, format export.Format) (*export.Result, error) {
	if err := authorize(actor, rbac.ActionRead, unitID); err != nil {
		return nil, err
	}
	unitName := unitID
	if unit, err := s.repo.GetUnit(ctx, unitID); err == nil && unit.Name != "" {
		unitName = unit.Name
	}

	report := export.Report{UnitName: unitName, GeneratedAt: s.now()}
	label := "All Certificates"
	if certType != "" {
		label = string(certType)
	}
	switch kind {
	case ReportHistory, ReportArchive:
		status := domain.StatusAccepted
		report.Title = label + " History"
		if kind == ReportArchive {
			status = domain.StatusDeclined
			report.Title = label + " Archive"
		}
		records, err := s.hub.Snapshot(ctx, live.Filter{UnitID: unitID, CertificateType: certType, Statuses: []domain.Status{status}})
		if err != nil {
			return nil, err
		}
		partition.SortNewestFirst(records)
		report.Columns, report.Rows = export.RequestTable(status, records)
	case ReportOfficials:
		officials, err := s.repo.ListOfficials(ctx, unitID)
		if err != nil {
			return nil, storeErr("list officials", err)
		}
		now := s.now()
		report.Title = "Barangay Officials"
		report.Columns, report.Rows = export.OfficialTable(officials, func(o domain.Official) bool { return roster.IsActive(o, now) })
	default:
		return nil, &domain.ValidationError{Fields: map[string]string{"kind": "report must be history, archive or officials"}}
	}

	started := time.Now()
	result, err := s.exporter.Report(ctx, report, format)
	s.metrics.ObserveExportLatency(string(format), time.Since(started))
	return result, err
}

func (s *Service) Search(ctx context.Context, actor domain.Actor, q search.Query) (search.Response, error) {
	if err := authorize(actor, rbac.ActionRead, q.UnitID); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(ctx, q), nil
}
