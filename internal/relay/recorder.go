// Package relay is the bot-facing side of the store: it records bot traffic
// and answers the few commands every bot understands.
package relay

import (
	"context"
	"time"

	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/store"
)

// Mutations is the guarded write access a bot needs.
type Mutations interface {
	WithDocument(ctx context.Context, fn guard.Mutator) error
}

// Recorder runs each bot write as one guarded mutation cycle.
type Recorder struct {
	docs    Mutations
	botType BotType
	now     func() time.Time
}

func NewRecorder(docs Mutations, botType BotType) *Recorder {
	return &Recorder{docs: docs, botType: botType, now: time.Now}
}

// RecordUser creates or refreshes a user. created reports a first sighting.
func (r *Recorder) RecordUser(ctx context.Context, u store.User) (user store.User, created bool, err error) {
	if u.BotType == "" {
		u.BotType = string(r.botType)
	}
	err = r.docs.WithDocument(ctx, func(doc *store.Document) error {
		got, isNew, err := doc.UpsertUser(u)
		if err != nil {
			return err
		}
		user, created = *got, isNew
		return nil
	})
	return user, created, err
}

// RegisterDevice registers deviceID for ownerID, stamped now.
func (r *Recorder) RegisterDevice(ctx context.Context, deviceID, ownerID string) (dev store.Device, created bool, err error) {
	at := store.FormatTimestamp(r.now())
	err = r.docs.WithDocument(ctx, func(doc *store.Document) error {
		got, isNew, err := doc.RegisterDevice(deviceID, ownerID, at)
		if err != nil {
			return err
		}
		dev, created = *got, isNew
		return nil
	})
	return dev, created, err
}

// RecordUpload marks an upload from deviceID now.
func (r *Recorder) RecordUpload(ctx context.Context, deviceID string) (dev store.Device, err error) {
	at := store.FormatTimestamp(r.now())
	err = r.docs.WithDocument(ctx, func(doc *store.Document) error {
		got, err := doc.RecordUpload(deviceID, at)
		if err != nil {
			return err
		}
		dev = *got
		return nil
	})
	return dev, err
}

// AppendMessage logs m, filling timestamp and bot type when empty.
func (r *Recorder) AppendMessage(ctx context.Context, m store.Message) (msg store.Message, err error) {
	r.fill(&m)
	err = r.docs.WithDocument(ctx, func(doc *store.Document) error {
		got, err := doc.AppendMessage(m)
		if err != nil {
			return err
		}
		msg = *got
		return nil
	})
	return msg, err
}

// RecordInbound upserts the sender and appends their message in one cycle.
func (r *Recorder) RecordInbound(ctx context.Context, u store.User, m store.Message) error {
	if u.BotType == "" {
		u.BotType = string(r.botType)
	}
	m.Direction = store.DirectionInbound
	r.fill(&m)
	return r.docs.WithDocument(ctx, func(doc *store.Document) error {
		if _, _, err := doc.UpsertUser(u); err != nil {
			return err
		}
		_, err := doc.AppendMessage(m)
		return err
	})
}

func (r *Recorder) fill(m *store.Message) {
	if m.Timestamp == "" {
		m.Timestamp = store.FormatTimestamp(r.now())
	}
	if m.BotType == "" {
		m.BotType = string(r.botType)
	}
}
