package artifactstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryFile struct {
	content []byte
	version string
}

type memoryCommit struct {
	SHA     string
	Path    string
	Message string
	At      time.Time
}

type memoryProject struct {
	project   Project
	files     map[string]memoryFile
	commits   []memoryCommit
	published bool
	// staleReads counts HeadCommit calls that still report the previous tip.
	staleReads int
}

// MemoryStore is an in-process artifact store used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	owner    string
	webBase  string
	pagesURL func(string) string
	projects map[string]*memoryProject
	readLag  int
	seq      int64
}

// NewMemoryStore builds an empty store. pagesURL derives the publication URL
// of a project.
func NewMemoryStore(owner, webBase string, pagesURL func(string) string) *MemoryStore {
	return &MemoryStore{
		owner:    owner,
		webBase:  strings.TrimRight(webBase, "/"),
		pagesURL: pagesURL,
		projects: make(map[string]*memoryProject),
	}
}

// SetReadLag makes HeadCommit report the previous tip for n reads after
// each write, imitating an eventually consistent read path.
func (s *MemoryStore) SetReadLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readLag = n
}

// AddForeignProject registers a project owned by someone else.
func (s *MemoryStore) AddForeignProject(name, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[name] = &memoryProject{
		project: Project{Name: name, Owner: owner, URL: s.webBase + "/" + owner + "/" + name},
		files:   make(map[string]memoryFile),
	}
}

func (s *MemoryStore) CreateProject(ctx context.Context, name string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[name]; ok {
		return Project{}, ErrProjectExists
	}
	p := &memoryProject{
		project: Project{Name: name, Owner: s.owner, URL: s.webBase + "/" + s.owner + "/" + name},
		files:   make(map[string]memoryFile),
	}
	s.projects[name] = p
	return p.project, nil
}

func (s *MemoryStore) GetProject(ctx context.Context, name string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p.project, nil
}

func (s *MemoryStore) FileVersion(ctx context.Context, project, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return "", ErrProjectNotFound
	}
	f, ok := p.files[path]
	if !ok {
		return "", ErrFileNotFound
	}
	return f.version, nil
}

func (s *MemoryStore) PutFile(ctx context.Context, project, path string, content []byte, message, version string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return "", ErrProjectNotFound
	}
	current, exists := p.files[path]
	if exists && current.version != version {
		return "", ErrVersionConflict
	}
	if !exists && version != "" {
		return "", ErrVersionConflict
	}

	blob := BlobVersion(content)
	stored := make([]byte, len(content))
	copy(stored, content)
	p.files[path] = memoryFile{content: stored, version: blob}

	parent := ""
	if n := len(p.commits); n > 0 {
		parent = p.commits[n-1].SHA
	}
	s.seq++
	sha := commitID(parent, path, blob, message, s.seq)
	p.commits = append(p.commits, memoryCommit{SHA: sha, Path: path, Message: message, At: time.Now()})
	p.staleReads = s.readLag
	return sha, nil
}

func (s *MemoryStore) HeadCommit(ctx context.Context, project string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return "", ErrProjectNotFound
	}
	n := len(p.commits)
	if n == 0 {
		return "", ErrEmptyHistory
	}
	if p.staleReads > 0 {
		p.staleReads--
		if n == 1 {
			return "", ErrEmptyHistory
		}
		return p.commits[n-2].SHA, nil
	}
	return p.commits[n-1].SHA, nil
}

func (s *MemoryStore) EnablePublication(ctx context.Context, project string) (Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[project]
	if !ok {
		return Publication{}, ErrProjectNotFound
	}
	if len(p.commits) == 0 {
		return Publication{}, ErrEmptyHistory
	}
	if p.published {
		return Publication{}, ErrPublicationExists
	}
	p.published = true
	return Publication{URL: s.pagesURL(project), Status: "built"}, nil
}

func (s *MemoryStore) Close() {}

// SiteFile returns the content of path when the project is published.
func (s *MemoryStore) SiteFile(ctx context.Context, project, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok || !p.published {
		return nil, ErrFileNotFound
	}
	f, ok := p.files[path]
	if !ok {
		return nil, ErrFileNotFound
	}
	return f.content, nil
}

// File returns the stored content of path.
func (s *MemoryStore) File(project, path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return nil, false
	}
	f, ok := p.files[path]
	if !ok {
		return nil, false
	}
	return f.content, true
}

// Paths lists the files of a project in lexical order.
func (s *MemoryStore) Paths(project string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(p.files))
	for path := range p.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Published reports whether publication was enabled for project.
func (s *MemoryStore) Published(project string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[project]
	return ok && p.published
}

// CommitCount returns the number of commits on the project's history.
func (s *MemoryStore) CommitCount(project string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.projects[project]; ok {
		return len(p.commits)
	}
	return 0
}
