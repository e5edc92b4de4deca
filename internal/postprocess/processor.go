// Package postprocess runs home provisioning and event publishing after a
// user-manager request has changed an authorizable.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/event"
	"nakamura/internal/personal"
	"nakamura/internal/session"
)

// Request describes the user-manager request being post-processed.
type Request struct {
	// ResourcePath is the user-manager path the request addressed.
	ResourcePath string
	// ActingUser is the identity that issued the request.
	ActingUser string
}

// Processor reacts to user-manager requests.
type Processor struct {
	provisioner *personal.Provisioner
	translator  *event.Translator
	logger      *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(provisioner *personal.Provisioner, translator *event.Translator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		provisioner: provisioner,
		translator:  translator,
		logger:      logger,
	}
}

// Process provisions the home of a and publishes the request's changes.
// A nil a means the request deleted authorizables: every Delete entry in
// changes is resolved and the matching home is removed.
func (p *Processor) Process(ctx context.Context, sess *session.Session, req Request, a *authorizable.Authorizable, changes *change.Log) error {
	if a == nil {
		return p.processDeletes(ctx, sess, req, changes)
	}

	isGroup, ok := branchFor(req.ResourcePath)
	if !ok {
		return nil
	}

	if _, err := p.provisioner.EnsureHome(ctx, sess, a, isGroup, changes); err != nil {
		return fmt.Errorf("failed to provision home for %s: %w", a.ID, err)
	}
	p.translator.Publish(ctx, changes, req.ActingUser, a.ID)
	return nil
}

// branchFor decides which kind of home a request path provisions.
// Exact paths are checked before prefixes.
func branchFor(resourcePath string) (isGroup bool, ok bool) {
	switch {
	case resourcePath == authorizable.UserPath:
		return false, true
	case resourcePath == authorizable.GroupPath:
		return true, true
	case strings.HasPrefix(resourcePath, authorizable.UserPrefix):
		return false, true
	case strings.HasPrefix(resourcePath, authorizable.GroupPrefix):
		return true, true
	}
	return false, false
}

func (p *Processor) processDeletes(ctx context.Context, sess *session.Session, req Request, changes *change.Log) error {
	for _, m := range changes.OfKind(change.Delete) {
		a, err := authorizable.Resolve(ctx, sess.Users, m.Path())
		if err != nil {
			if errors.Is(err, authorizable.ErrNotFound) {
				p.logger.Warn("failed to find authorizable to delete", "path", m.Path())
				continue
			}
			return err
		}

		p.translator.Publish(ctx, change.NewLog(m), req.ActingUser, a.ID)

		home, removed, err := p.provisioner.DeleteHome(ctx, sess, a)
		if err != nil {
			return fmt.Errorf("failed to delete home for %s: %w", a.ID, err)
		}
		if removed {
			changes.Append(change.OnDeleted(home))
		}
	}
	return nil
}
