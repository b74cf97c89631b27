package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps projects, files and their commit history in Postgres. It
// serves deployments that publish to a self-hosted static site instead of
// GitHub.
type PGStore struct {
	pool     *pgxpool.Pool
	owner    string
	webBase  string
	pagesURL func(string) string
}

// NewPGStore connects and initializes schema.
func NewPGStore(ctx context.Context, dsn, owner, webBase string, pagesURL func(string) string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{
		pool:     pool,
		owner:    owner,
		webBase:  strings.TrimRight(webBase, "/"),
		pagesURL: pagesURL,
	}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS artifact_projects (
  name TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  published BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS artifact_files (
  project TEXT NOT NULL REFERENCES artifact_projects(name),
  path TEXT NOT NULL,
  content BYTEA NOT NULL,
  version TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (project, path)
);
CREATE TABLE IF NOT EXISTS artifact_commits (
  seq BIGSERIAL PRIMARY KEY,
  project TEXT NOT NULL REFERENCES artifact_projects(name),
  sha TEXT NOT NULL,
  path TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_artifact_commits_project ON artifact_commits(project, seq DESC);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) project(name, owner string) Project {
	return Project{Name: name, Owner: owner, URL: s.webBase + "/" + owner + "/" + name}
}

func (s *PGStore) CreateProject(ctx context.Context, name string) (Project, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO artifact_projects (name, owner) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, s.owner)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrProjectExists
	}
	return s.project(name, s.owner), nil
}

func (s *PGStore) GetProject(ctx context.Context, name string) (Project, error) {
	var owner string
	err := s.pool.QueryRow(ctx, `SELECT owner FROM artifact_projects WHERE name=$1`, name).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("select project: %w", err)
	}
	return s.project(name, owner), nil
}

func (s *PGStore) FileVersion(ctx context.Context, project, path string) (string, error) {
	var version string
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM artifact_files WHERE project=$1 AND path=$2`,
		project, path).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select file version: %w", err)
	}
	return version, nil
}

// PutFile writes path and appends a commit in one transaction. The row lock
// on the file makes the version check exact for this driver.
func (s *PGStore) PutFile(ctx context.Context, project, path string, content []byte, message, version string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM artifact_projects WHERE name=$1 FOR SHARE`, project).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProjectNotFound
		}
		return "", fmt.Errorf("select project: %w", err)
	}

	var current string
	err = tx.QueryRow(ctx,
		`SELECT version FROM artifact_files WHERE project=$1 AND path=$2 FOR UPDATE`,
		project, path).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if version != "" {
			return "", ErrVersionConflict
		}
	case err != nil:
		return "", fmt.Errorf("select file version: %w", err)
	case current != version:
		return "", ErrVersionConflict
	}

	var parent string
	var seq int64
	err = tx.QueryRow(ctx,
		`SELECT sha, seq FROM artifact_commits WHERE project=$1 ORDER BY seq DESC LIMIT 1`,
		project).Scan(&parent, &seq)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("select head: %w", err)
	}

	blob := BlobVersion(content)
	if _, err := tx.Exec(ctx, `
INSERT INTO artifact_files (project, path, content, version, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (project, path) DO UPDATE SET content=EXCLUDED.content, version=EXCLUDED.version, updated_at=now()
`, project, path, content, blob); err != nil {
		return "", fmt.Errorf("upsert file: %w", err)
	}

	sha := commitID(parent, path, blob, message, seq+1)
	if _, err := tx.Exec(ctx,
		`INSERT INTO artifact_commits (project, sha, path, message) VALUES ($1, $2, $3, $4)`,
		project, sha, path, message); err != nil {
		return "", fmt.Errorf("insert commit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return sha, nil
}

func (s *PGStore) HeadCommit(ctx context.Context, project string) (string, error) {
	var sha string
	err := s.pool.QueryRow(ctx,
		`SELECT sha FROM artifact_commits WHERE project=$1 ORDER BY seq DESC LIMIT 1`,
		project).Scan(&sha)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrEmptyHistory
	}
	if err != nil {
		return "", fmt.Errorf("select head: %w", err)
	}
	return sha, nil
}

func (s *PGStore) EnablePublication(ctx context.Context, project string) (Publication, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Publication{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var published bool
	err = tx.QueryRow(ctx, `SELECT published FROM artifact_projects WHERE name=$1 FOR UPDATE`, project).Scan(&published)
	if errors.Is(err, pgx.ErrNoRows) {
		return Publication{}, ErrProjectNotFound
	}
	if err != nil {
		return Publication{}, fmt.Errorf("select project: %w", err)
	}
	if published {
		return Publication{}, ErrPublicationExists
	}

	var commits int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM artifact_commits WHERE project=$1`, project).Scan(&commits); err != nil {
		return Publication{}, fmt.Errorf("count commits: %w", err)
	}
	if commits == 0 {
		return Publication{}, ErrEmptyHistory
	}

	if _, err := tx.Exec(ctx, `UPDATE artifact_projects SET published = true WHERE name=$1`, project); err != nil {
		return Publication{}, fmt.Errorf("enable publication: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Publication{}, fmt.Errorf("commit: %w", err)
	}
	return Publication{URL: s.pagesURL(project), Status: "built"}, nil
}

// SiteFile returns the content of path when the project is published.
func (s *PGStore) SiteFile(ctx context.Context, project, path string) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT f.content FROM artifact_files f JOIN artifact_projects p ON p.name = f.project
WHERE f.project=$1 AND f.path=$2 AND p.published`,
		project, path).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file: %w", err)
	}
	return content, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}
