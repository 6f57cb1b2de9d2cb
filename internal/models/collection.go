package models

import (
	"time"

	"github.com/DeafMist/standards-desk/backend/internal/standards"
)

// Source types recorded on an imported collection.
const (
	SourceManual = "manual"
	SourceFeed   = "feed"
)

// Source describes where a collection came from.
type Source struct {
	Type      string    `json:"type"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Collection is the canonical standards document stored in Elasticsearch.
type Collection struct {
	ID            string         `json:"id"`
	CourseID      string         `json:"courseId"`
	Source        Source         `json:"source"`
	State         string         `json:"state"`
	Subject       string         `json:"subject,omitempty"`
	GradeLevel    string         `json:"gradeLevel,omitempty"`
	Framework     string         `json:"framework,omitempty"`
	Domains       standards.Tree `json:"domains"`
	DomainCount   int            `json:"domainCount"`
	StandardCount int            `json:"standardCount"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Touch refreshes the derived counts and the update time.
func (c *Collection) Touch(now time.Time) {
	if c.Domains == nil {
		c.Domains = standards.Tree{}
	}
	c.DomainCount = c.Domains.DomainCount()
	c.StandardCount = c.Domains.StandardCount()
	c.UpdatedAt = now.UTC()
}
