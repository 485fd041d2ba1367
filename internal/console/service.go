// Package console implements the admin console's read views and mutations over
// the shared document.
package console

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

// ValidationError is the store's invariant error; console input errors use the same type.
type ValidationError = store.ValidationError

// ErrBackupUnavailable is returned by Backup when no object storage is configured.
var ErrBackupUnavailable = errors.New("console: snapshot backup is not configured")

// Documents is the guarded access the console needs.
type Documents interface {
	Snapshot() (*store.Document, error)
	WithDocument(ctx context.Context, fn guard.Mutator) error
}

// Sender delivers an outbound chat message.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Uploader stores a document snapshot and returns the object key.
type Uploader interface {
	Upload(ctx context.Context, doc *store.Document) (string, error)
}

// Summary holds the console landing counts.
type Summary struct {
	Users    int `json:"users"`
	Devices  int `json:"devices"`
	Messages int `json:"messages"`
}

// SendMessageRequest is the console's outbound message form.
type SendMessageRequest struct {
	ChatID store.ChatID `json:"chat_id" validate:"required,max=64"`
	Text   string       `json:"text" validate:"required,max=4096"`
}

// Service serves console reads from snapshots and funnels mutations through the guard.
type Service struct {
	docs     Documents
	sender   Sender
	uploader Uploader
	validate *validator.Validate
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

// WithSender dispatches SendMessage through s within the recording cycle.
func WithSender(s Sender) Option { return func(svc *Service) { svc.sender = s } }

// WithUploader enables Backup.
func WithUploader(u Uploader) Option { return func(svc *Service) { svc.uploader = u } }

func NewService(docs Documents, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Service{docs: docs, validate: v, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BackupEnabled reports whether an Uploader is configured.
func (s *Service) BackupEnabled() bool { return s.uploader != nil }

func (s *Service) Summary() (*Summary, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Summary{Users: len(doc.Users()), Devices: len(doc.Devices()), Messages: len(doc.Messages())}, nil
}

// ListUsers returns all users ordered by user id.
func (s *Service) ListUsers() ([]*store.User, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*store.User, 0, len(doc.Users()))
	for _, u := range doc.Users() {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ListDevices returns all devices ordered by device id.
func (s *Service) ListDevices() ([]*store.Device, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*store.Device, 0, len(doc.Devices()))
	for _, d := range doc.Devices() {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// ListMessages returns the message log in insertion order.
func (s *Service) ListMessages() ([]*store.Message, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return nil, err
	}
	return doc.Messages(), nil
}

// MessagesPage returns one page of PerPage messages.
func (s *Service) MessagesPage(page int) (store.Page, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return store.Page{}, err
	}
	return store.Paginate(doc.Messages(), page, store.PerPage), nil
}

func (s *Service) Settings() (map[string]string, error) {
	doc, err := s.docs.Snapshot()
	if err != nil {
		return nil, err
	}
	return doc.Settings(), nil
}

// UpdateSettings replaces the settings object.
func (s *Service) UpdateSettings(ctx context.Context, id auth.Identity, settings map[string]string) error {
	if err := auth.Require(id); err != nil {
		return err
	}
	if settings == nil {
		return &ValidationError{Field: "settings", Message: "must be an object"}
	}
	for k := range settings {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Field: "settings", Message: "keys must be non-empty"}
		}
	}
	err := s.docs.WithDocument(ctx, func(doc *store.Document) error {
		doc.ReplaceSettings(settings)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Infof("settings replaced by %s (%d keys)", id, len(settings))
	return nil
}

// SendMessage validates req and, in one guarded cycle, appends an outbound
// record attributed to id and dispatches it when a Sender is configured.
func (s *Service) SendMessage(ctx context.Context, id auth.Identity, req SendMessageRequest) (*store.Message, error) {
	if err := auth.Require(id); err != nil {
		return nil, err
	}
	req.ChatID = store.ChatID(strings.TrimSpace(string(req.ChatID)))
	req.Text = strings.TrimSpace(req.Text)
	if err := s.check(req); err != nil {
		return nil, err
	}
	var rec *store.Message
	// delivery happens inside the cycle: no lock means no send, and a failed
	// send aborts the cycle before anything is saved
	err := s.docs.WithDocument(ctx, func(doc *store.Document) error {
		m, err := doc.AppendMessage(store.Message{
			ChatID:    req.ChatID,
			Text:      req.Text,
			Timestamp: store.FormatTimestamp(s.now()),
			Direction: store.DirectionOutbound,
			Sender:    string(id),
		})
		if err != nil {
			return err
		}
		if s.sender != nil {
			if err := s.sender.SendMessage(ctx, string(req.ChatID), req.Text); err != nil {
				return fmt.Errorf("dispatch message to %s: %w", req.ChatID, err)
			}
		}
		rec = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("message to %s sent by %s", req.ChatID, id)
	return rec, nil
}

// Backup uploads the current snapshot and returns the object key.
func (s *Service) Backup(ctx context.Context, id auth.Identity) (string, error) {
	if err := auth.Require(id); err != nil {
		return "", err
	}
	if s.uploader == nil {
		return "", ErrBackupUnavailable
	}
	doc, err := s.docs.Snapshot()
	if err != nil {
		return "", err
	}
	key, err := s.uploader.Upload(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	logger.Infof("snapshot %s uploaded by %s", key, id)
	return key, nil
}

func (s *Service) check(req SendMessageRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Message: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Message: "must be at most " + fe.Param() + " characters"}
	}
	return &ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"}
}
