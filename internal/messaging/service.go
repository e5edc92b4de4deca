package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"nakamura/internal/authorizable"
	"nakamura/internal/content"
	"nakamura/internal/personal"
	"nakamura/internal/session"
)

// Service sends and lists messages.
type Service struct {
	sessions session.Factory
	logger   *slog.Logger
}

// NewService creates a messaging service.
func NewService(sessions session.Factory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{sessions: sessions, logger: logger}
}

// Send delivers msg. The message is staged in the sender's outbox, copied
// into each recipient's store labelled inbox and into the sender's store
// labelled sent, and then removed from the outbox. Delivery completes
// before Send returns.
func (s *Service) Send(ctx context.Context, msg Message) (*Message, error) {
	msg.To = uniqueRecipients(msg.To)
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()
	msg.Labels = nil

	sess, err := s.sessions.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		_ = sess.Rollback()
	}()

	if err := s.checkUser(ctx, sess, msg.From, ErrUnknownSender); err != nil {
		return nil, err
	}
	for _, to := range msg.To {
		if err := s.checkUser(ctx, sess, to, ErrUnknownRecipient); err != nil {
			return nil, err
		}
	}

	outbox := content.Join(personal.OutboxPath(msg.From), msg.ID.String())
	if err := writeMessage(ctx, sess.Content, outbox, msg, LabelOutbox); err != nil {
		return nil, err
	}

	for _, to := range msg.To {
		path := content.Join(personal.MessageStorePath(to), msg.ID.String())
		if err := writeMessage(ctx, sess.Content, path, msg, LabelInbox); err != nil {
			return nil, err
		}
	}

	sent := content.Join(personal.MessageStorePath(msg.From), msg.ID.String())
	if err := writeMessage(ctx, sess.Content, sent, msg, LabelSent); err != nil {
		return nil, err
	}

	if err := sess.Content.RemoveNode(ctx, outbox); err != nil {
		return nil, fmt.Errorf("failed to clear outbox entry %s: %w", outbox, err)
	}

	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.logger.Info("message delivered", "id", msg.ID, "from", msg.From, "recipients", len(msg.To))
	return &msg, nil
}

// List returns the messages of owner carrying label, oldest first.
func (s *Service) List(ctx context.Context, owner, label string) ([]Message, error) {
	if !ValidLabel(label) {
		return nil, ErrInvalidLabel
	}

	sess, err := s.sessions.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		_ = sess.Rollback()
	}()

	root := personal.MessageStorePath(owner)
	if label == LabelOutbox {
		root = personal.OutboxPath(owner)
	}

	paths, err := sess.Content.FindByProperty(ctx, root, propLabels, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", root, err)
	}

	messages := make([]Message, 0, len(paths))
	for _, path := range paths {
		node, err := sess.Content.GetNode(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load message %s: %w", path, err)
		}
		m, err := decodeMessage(node)
		if err != nil {
			s.logger.Warn("skipping unreadable message", "path", path, "error", err)
			continue
		}
		messages = append(messages, *m)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	return messages, nil
}

func (s *Service) checkUser(ctx context.Context, sess *session.Session, id string, notFound error) error {
	a, err := sess.Users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, authorizable.ErrNotFound) {
			return fmt.Errorf("%w: %s", notFound, id)
		}
		return fmt.Errorf("failed to load %s: %w", id, err)
	}
	if a.IsGroup {
		return fmt.Errorf("%w: %s is a group", notFound, id)
	}
	return nil
}

// uniqueRecipients drops blank and repeated recipients, keeping first occurrences in order.
func uniqueRecipients(to []string) []string {
	seen := make(map[string]struct{}, len(to))
	out := make([]string, 0, len(to))
	for _, id := range to {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// writeMessage stores a copy of msg at path. A copy already at path, which
// happens when users message themselves, gains the label instead.
func writeMessage(ctx context.Context, store content.Store, path string, msg Message, label string) error {
	existing, err := store.GetNode(ctx, path)
	if err == nil {
		labels := []string{label}
		if p, ok := existing.Property(propLabels); ok {
			labels = append(append([]string{}, p.Values...), label)
		}
		if _, err := store.SetProperty(ctx, path, propLabels, content.Multi(labels...)); err != nil {
			return fmt.Errorf("failed to label message %s: %w", path, err)
		}
		return nil
	}
	if !errors.Is(err, content.ErrNotFound) {
		return fmt.Errorf("failed to check message %s: %w", path, err)
	}

	if _, err := store.CreateNode(ctx, path); err != nil {
		return fmt.Errorf("failed to create message %s: %w", path, err)
	}

	props := []struct {
		name  string
		value content.Value
	}{
		{propFrom, content.Single(msg.From)},
		{propTo, content.Multi(msg.To...)},
		{propSubject, content.Single(msg.Subject)},
		{propBody, content.Single(msg.Body)},
		{propLabels, content.Multi(label)},
		{propCreated, content.Single(msg.CreatedAt.Format(time.RFC3339Nano))},
	}
	for _, p := range props {
		if _, err := store.SetProperty(ctx, path, p.name, p.value); err != nil {
			return fmt.Errorf("failed to write %s on %s: %w", p.name, path, err)
		}
	}
	return nil
}

func decodeMessage(node *content.Node) (*Message, error) {
	id, err := uuid.Parse(content.LastElement(node.Path))
	if err != nil {
		return nil, fmt.Errorf("invalid message id: %w", err)
	}

	m := &Message{ID: id}
	if p, ok := node.Property(propFrom); ok {
		m.From = p.String()
	}
	if p, ok := node.Property(propTo); ok {
		m.To = append([]string{}, p.Values...)
	}
	if p, ok := node.Property(propSubject); ok {
		m.Subject = p.String()
	}
	if p, ok := node.Property(propBody); ok {
		m.Body = p.String()
	}
	if p, ok := node.Property(propLabels); ok {
		m.Labels = append([]string{}, p.Values...)
	}
	if p, ok := node.Property(propCreated); ok {
		created, err := time.Parse(time.RFC3339Nano, p.String())
		if err != nil {
			return nil, fmt.Errorf("invalid created time: %w", err)
		}
		m.CreatedAt = created
	}
	return m, nil
}
