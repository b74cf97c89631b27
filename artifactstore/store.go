package artifactstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrProjectExists     = Err("project already exists")
	ErrProjectNotFound   = Err("project not found")
	ErrFileNotFound      = Err("file not found")
	ErrVersionConflict   = Err("file version does not match")
	ErrPublicationExists = Err("publication already enabled")
	ErrEmptyHistory      = Err("project has no commits")
)

// Project is a remote unit of content.
type Project struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	URL   string `json:"url"`
}

// Publication is the public serving state of a project.
type Publication struct {
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// Store is the set of primitive remote operations a driver provides.
// FileVersion returns ErrFileNotFound for a missing path; PutFile must
// receive the current version when the path exists and "" when it does not.
type Store interface {
	CreateProject(ctx context.Context, name string) (Project, error)
	GetProject(ctx context.Context, name string) (Project, error)
	FileVersion(ctx context.Context, project, path string) (string, error)
	PutFile(ctx context.Context, project, path string, content []byte, message, version string) (string, error)
	HeadCommit(ctx context.Context, project string) (string, error)
}

// Publisher makes a project's content servable at a public URL.
type Publisher interface {
	EnablePublication(ctx context.Context, project string) (Publication, error)
}

// SiteReader serves the files of published projects. Drivers that host
// content themselves implement it.
type SiteReader interface {
	SiteFile(ctx context.Context, project, path string) ([]byte, error)
}

// Backend is a driver that stores content and can publish it.
type Backend interface {
	Store
	Publisher
	Close()
}

// BlobVersion is the git blob id of content; the memory and postgres
// drivers use it as the per-file version marker.
func BlobVersion(content []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func commitID(parent, path, version, message string, seq int64) string {
	h := sha1.New()
	fmt.Fprintf(h, "parent %s\npath %s\nblob %s\nseq %d\n\n%s", parent, path, version, seq, message)
	return hex.EncodeToString(h.Sum(nil))
}
