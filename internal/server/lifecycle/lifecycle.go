// Package lifecycle holds the post state machine: the fixed set of legal
// status edges, who may take each one, and the rules derived from status
// (editability, deletability, aggregation of target outcomes).
package lifecycle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Actor is the party attempting a transition.
type Actor int

const (
	Author Actor = iota
	Reviewer
	Dispatcher
	Reconciler
)

func (a Actor) String() string {
	switch a {
	case Author:
		return "author"
	case Reviewer:
		return "reviewer"
	case Dispatcher:
		return "dispatcher"
	case Reconciler:
		return "reconciler"
	}
	return fmt.Sprintf("actor(%d)", int(a))
}

type edge struct {
	from, to models.PostStatus
}

var edges = map[edge]Actor{
	{models.StatusDraft, models.StatusPendingReview}:     Author,
	{models.StatusPendingReview, models.StatusScheduled}: Reviewer,
	{models.StatusPendingReview, models.StatusDraft}:     Reviewer,
	{models.StatusScheduled, models.StatusPublishing}:    Dispatcher,
	{models.StatusPublishing, models.StatusPublished}:    Dispatcher,
	{models.StatusPublishing, models.StatusFailed}:       Dispatcher,
	{models.StatusFailed, models.StatusScheduled}:        Author,
	{models.StatusPublishing, models.StatusScheduled}:    Reconciler,
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From  models.PostStatus
	To    models.PostStatus
	Actor Actor
	// Known is true when the edge exists but belongs to another actor.
	Known bool
}

func (e *TransitionError) Error() string {
	if e.Known {
		return fmt.Sprintf("transition %s -> %s is not permitted for %s", e.From, e.To, e.Actor)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return common.ErrInvalidTransition }

// Check reports whether actor may move a post from one status to another.
func Check(from, to models.PostStatus, actor Actor) error {
	owner, ok := edges[edge{from, to}]
	if !ok {
		return &TransitionError{From: from, To: to, Actor: actor}
	}
	if owner != actor {
		return &TransitionError{From: from, To: to, Actor: actor, Known: true}
	}
	return nil
}

// CheckInitial validates the status a post is created with.
func CheckInitial(status models.PostStatus) error {
	switch status {
	case models.StatusDraft, models.StatusScheduled:
		return nil
	}
	return common.Invalid("status", fmt.Sprintf("a post cannot be created as %s", status))
}

// CanEdit reports whether content, targets and schedule may be replaced.
func CanEdit(status models.PostStatus) bool {
	return status == models.StatusDraft || status == models.StatusScheduled
}

// CanDelete reports whether the owner may delete the post.
func CanDelete(status models.PostStatus) bool {
	return status != models.StatusPublishing
}

// ApprovalTarget is where an approved post lands: SCHEDULED when it has a
// time, DRAFT otherwise.
func ApprovalTarget(post *models.Post) models.PostStatus {
	if post.ScheduledAt != nil {
		return models.StatusScheduled
	}
	return models.StatusDraft
}

// Outcome is the aggregate result of one publish run.
type Outcome struct {
	Status models.PostStatus
	Failed int
	Total  int
}

// Summary is the post-level error message, empty on success.
func (o Outcome) Summary() string {
	if o.Status == models.StatusPublished {
		return ""
	}
	if o.Total == 0 {
		return "no targets to publish"
	}
	return fmt.Sprintf("%d of %d targets failed", o.Failed, o.Total)
}

// Aggregate folds target statuses into the post status: PUBLISHED only if
// every target is PUBLISHED, FAILED otherwise.
func Aggregate(statuses []models.PostStatus) Outcome {
	o := Outcome{Status: models.StatusPublished, Total: len(statuses)}
	for _, s := range statuses {
		if s != models.StatusPublished {
			o.Failed++
		}
	}
	if o.Failed > 0 || o.Total == 0 {
		o.Status = models.StatusFailed
	}
	return o
}

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s]+`)

// DeriveKind classifies content: video wins over image, image over a link
// in the body, and plain text is the fallback.
func DeriveKind(content string, imageURL, videoURL *string) models.ContentKind {
	switch {
	case present(videoURL):
		return models.KindVideo
	case present(imageURL):
		return models.KindImage
	case linkPattern.MatchString(content):
		return models.KindLink
	default:
		return models.KindText
	}
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
