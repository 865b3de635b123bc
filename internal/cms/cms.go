// Package cms implements the publishing workflow for marketing pages.
package cms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/store"
)

// Page statuses.
const (
	StatusDraft     = "draft"
	StatusInReview  = "in_review"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var (
	ErrNotFound  = errors.New("page not found")
	ErrSlugTaken = errors.New("slug already in use")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// transitions lists the statuses reachable from each status. Publishing
// straight from draft, unpublishing and restoring an archived page all go
// through draft.
var transitions = map[string][]string{
	StatusDraft:     {StatusInReview, StatusPublished, StatusArchived},
	StatusInReview:  {StatusPublished, StatusDraft, StatusArchived},
	StatusPublished: {StatusArchived, StatusDraft},
	StatusArchived:  {StatusDraft},
}

// ValidationError reports bad page input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransitionError reports a status change the workflow does not allow.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move page from %s to %s", e.From, e.To)
}

// PageInput is the writable part of a page. Nil fields are left unchanged
// on update.
type PageInput struct {
	Slug    *string `json:"slug"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Service manages CMS pages.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a CMS service.
func NewService(s store.Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new draft page.
func (s *Service) Create(ctx context.Context, in PageInput, authorID string) (*store.CMSPage, error) {
	p := &store.CMSPage{Status: StatusDraft, AuthorID: authorID}
	if in.Slug == nil || in.Title == nil {
		return nil, &ValidationError{Message: "slug and title are required"}
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.store.CreatePage(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("create page: %w", err)
	}
	return p, nil
}

// Get returns a page by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.CMSPage, error) {
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Published returns a published page by slug.
func (s *Service) Published(ctx context.Context, slug string) (*store.CMSPage, error) {
	p, err := s.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	if p == nil || p.Status != StatusPublished {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns pages, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]store.CMSPage, error) {
	if status != "" && !validStatus(status) {
		return nil, &ValidationError{Message: "invalid status: " + status}
	}
	pages, err := s.store.ListPages(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if pages == nil {
		pages = []store.CMSPage{}
	}
	return pages, nil
}

// Update edits a page's slug, title or content.
func (s *Service) Update(ctx context.Context, id string, in PageInput) (*store.CMSPage, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Transition moves a page to status. Publishing stamps published_at;
// returning to draft clears it.
func (s *Service) Transition(ctx context.Context, id, status string) (*store.CMSPage, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, status) {
		return nil, &TransitionError{From: p.Status, To: status}
	}
	p.Status = status
	switch status {
	case StatusPublished:
		t := s.now()
		p.PublishedAt = &t
	case StatusDraft:
		p.PublishedAt = nil
	}
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CanTransition reports whether a page may move from one status to another.
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

func (s *Service) save(ctx context.Context, p *store.CMSPage) error {
	if err := s.store.UpdatePage(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrSlugTaken
		}
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

func apply(p *store.CMSPage, in PageInput) error {
	if in.Slug != nil {
		slug := strings.TrimSpace(*in.Slug)
		if !slugPattern.MatchString(slug) {
			return &ValidationError{Message: "slug must be lowercase letters, digits and hyphens"}
		}
		p.Slug = slug
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return &ValidationError{Message: "title is required"}
		}
		p.Title = title
	}
	if in.Content != nil {
		p.Content = *in.Content
	}
	return nil
}

func validStatus(s string) bool {
	switch s {
	case StatusDraft, StatusInReview, StatusPublished, StatusArchived:
		return true
	}
	return false
}
