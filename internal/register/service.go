// Package register keeps an append-only git history of issued
// certificates, one repository per administrative unit.
package register

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"barangay/api/internal/certificate"
)

const (
	KindIssued    = "issued"
	KindReprinted = "reprinted"
)

// ErrNoEntry means nothing has been recorded for the request yet.
var ErrNoEntry = errors.New("no register entry")

// Entry is what the register keeps for each issuance.
type Entry struct {
	RequestID       string                     `json:"requestId"`
	UnitID          string                     `json:"administrativeUnitId"`
	Kind            string                     `json:"kind"`
	CertificateType string                     `json:"certificateType"`
	IssuedAt        time.Time                  `json:"issuedAt"`
	IssuedBy        string                     `json:"issuedBy"`
	Signatory       certificate.Signature      `json:"signatory"`
	Officials       []certificate.OfficialLine `json:"officials"`
	Body            string                     `json:"body"`
	ArchiveKey      string                     `json:"archiveKey,omitempty"`
	Warnings        []string                   `json:"warnings,omitempty"`
}

// EntryFromDraft copies what the register keeps out of a composed draft.
func EntryFromDraft(draft certificate.Draft, kind, issuedBy, archiveKey string) Entry {
	return Entry{
		RequestID:       draft.RequestID,
		UnitID:          draft.UnitID,
		Kind:            kind,
		CertificateType: string(draft.CertificateType),
		IssuedAt:        draft.IssuedAt,
		IssuedBy:        issuedBy,
		Signatory:       draft.Signature,
		Officials:       draft.Officials.Entries,
		Body:            draft.Body.Paragraph.Text(),
		ArchiveKey:      archiveKey,
		Warnings:        draft.Warnings,
	}
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func entryPath(requestID string) string {
	return filepath.ToSlash(filepath.Join("requests", requestID+".json"))
}

// Record writes the entry for its request and commits it.
func (s *Service) Record(entry Entry, author string) (CommitInfo, error) {
	if entry.UnitID == "" || entry.RequestID == "" {
		return CommitInfo{}, errors.New("register entry needs unit and request ids")
	}
	lock := s.unitLock(entry.UnitID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(entry.UnitID, author)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal entry: %w", err)
	}
	rel := entryPath(entry.RequestID)
	full := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create entry dir: %w", err)
	}
	if err := os.WriteFile(full, append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write entry: %w", err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return CommitInfo{}, fmt.Errorf("git add entry: %w", err)
	}

	message := fmt.Sprintf("%s %s %s", entry.Kind, entry.CertificateType, entry.RequestID)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit entry: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// Latest returns the entry recorded for a request at the register head,
// with the commit that last touched it. ErrNoEntry when there is none.
func (s *Service) Latest(unitID, requestID string) (Entry, CommitInfo, error) {
	history, err := s.History(unitID, requestID, 1)
	if err != nil {
		return Entry{}, CommitInfo{}, err
	}
	if len(history) == 0 {
		return Entry{}, CommitInfo{}, ErrNoEntry
	}

	lock := s.unitLock(unitID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(unitID))
	if err != nil {
		return Entry{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return Entry{}, CommitInfo{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Entry{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	entry, err := readEntry(commitObj, entryPath(requestID))
	if err != nil {
		return Entry{}, CommitInfo{}, err
	}
	return entry, history[0], nil
}

// History lists commits newest first. A non-empty requestID limits it to
// that request's entry. A unit that has issued nothing has an empty history.
func (s *Service) History(unitID, requestID string, limit int) ([]CommitInfo, error) {
	lock := s.unitLock(unitID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(unitID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	opts := &git.LogOptions{From: ref.Hash()}
	if requestID != "" {
		path := entryPath(requestID)
		opts.FileName = &path
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(unitID string) string {
	return filepath.Join(s.baseDir, unitID)
}

func (s *Service) unitLock(unitID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[unitID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[unitID] = lock
	return lock
}

// ensureRepo opens the unit's repository, creating it on main with a
// README commit the first time.
func (s *Service) ensureRepo(unitID, author string) (*git.Repository, error) {
	path := s.repoPath(unitID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	readme := fmt.Sprintf("Certificate register for unit %s.\n", unitID)
	if err := os.WriteFile(filepath.Join(path, "README"), []byte(readme), 0o644); err != nil {
		return nil, fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add("README"); err != nil {
		return nil, fmt.Errorf("git add readme: %w", err)
	}
	if _, err := worktree.Commit("Open certificate register", &git.CommitOptions{Author: signature(author)}); err != nil {
		return nil, fmt.Errorf("commit readme: %w", err)
	}
	return repo, nil
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@barangay.local", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func readEntry(commitObj *object.Commit, path string) (Entry, error) {
	file, err := commitObj.File(path)
	if err != nil {
		return Entry{}, fmt.Errorf("load %s from commit: %w", path, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Entry{}, fmt.Errorf("open entry reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Entry{}, fmt.Errorf("read entry bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return entry, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
