package publication

import (
	"context"
	"errors"
	"log"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/artifactstore"
)

// Enabler turns on public serving for a project. Enabling twice is not an
// error.
type Enabler struct {
	publisher artifactstore.Publisher
	pagesURL  func(project string) string
}

// NewEnabler builds an Enabler. pagesURL derives the public URL from the
// naming convention and is used when publication was already enabled.
func NewEnabler(publisher artifactstore.Publisher, pagesURL func(string) string) *Enabler {
	return &Enabler{publisher: publisher, pagesURL: pagesURL}
}

// Enable requests publication of project.
func (e *Enabler) Enable(ctx context.Context, project string) (artifactstore.Publication, error) {
	pub, err := e.publisher.EnablePublication(ctx, project)
	switch {
	case err == nil:
		log.Printf("publication: enabled for %s", project)
		if pub.URL == "" {
			pub.URL = e.pagesURL(project)
		}
		return pub, nil
	case errors.Is(err, artifactstore.ErrPublicationExists):
		log.Printf("publication: already enabled for %s", project)
		return artifactstore.Publication{URL: e.pagesURL(project), Status: "existing"}, nil
	default:
		return artifactstore.Publication{}, apperr.Remote("enable publication", err)
	}
}
