package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// User is a bot user keyed by UserID.
type User struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	BotType   string `json:"bot_type,omitempty"`
	JoinedAt  string `json:"joined_at,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
	kinds idKinds
}

// Device is a reporting device keyed by DeviceID. LastUpload is nil until the
// first upload and persists as null.
type Device struct {
	DeviceID     string  `json:"device_id"`
	OwnerID      string  `json:"owner_id,omitempty"`
	RegisteredAt string  `json:"registered_at,omitempty"`
	LastUpload   *string `json:"last_upload"`

	Extra map[string]json.RawMessage `json:"-"`
	kinds idKinds
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is one entry of the append-only message log.
type Message struct {
	ChatID    ChatID `json:"chat_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	Direction string `json:"direction,omitempty"`
	BotType   string `json:"bot_type,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Sender    string `json:"sender,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
	kinds idKinds
}

var (
	userFields     = jsonFields(User{})
	deviceFields   = jsonFields(Device{})
	messageFields  = jsonFields(Message{})
	documentFields = jsonFields(documentJSON{})
)

func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return marshalEntity(plain(u), u.Extra, u.kinds)
}

func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	norm, kinds, err := normalizeIDs(b, "user_id")
	if err != nil {
		return err
	}
	var p plain
	if err := json.Unmarshal(norm, &p); err != nil {
		return err
	}
	extra, err := extraFields(b, userFields)
	if err != nil {
		return err
	}
	*u = User(p)
	u.Extra = extra
	u.kinds = kinds
	return nil
}

func (d Device) MarshalJSON() ([]byte, error) {
	type plain Device
	return marshalEntity(plain(d), d.Extra, d.kinds)
}

func (d *Device) UnmarshalJSON(b []byte) error {
	type plain Device
	norm, kinds, err := normalizeIDs(b, "device_id", "owner_id")
	if err != nil {
		return err
	}
	var p plain
	if err := json.Unmarshal(norm, &p); err != nil {
		return err
	}
	extra, err := extraFields(b, deviceFields)
	if err != nil {
		return err
	}
	*d = Device(p)
	d.Extra = extra
	d.kinds = kinds
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return marshalEntity(plain(m), m.Extra, m.kinds)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	type plain Message
	norm, kinds, err := normalizeIDs(b, "chat_id", "user_id")
	if err != nil {
		return err
	}
	var p plain
	if err := json.Unmarshal(norm, &p); err != nil {
		return err
	}
	extra, err := extraFields(b, messageFields)
	if err != nil {
		return err
	}
	*m = Message(p)
	m.Extra = extra
	m.kinds = kinds
	return nil
}

// Document is the in-memory form of the whole backing file. A Document is owned
// by a single mutation cycle or snapshot reader and is not safe for concurrent use.
type Document struct {
	users    map[string]*User
	devices  map[string]*Device
	messages []*Message
	settings map[string]string
	extra    map[string]json.RawMessage
}

type documentJSON struct {
	Users    map[string]*User   `json:"users"`
	Devices  map[string]*Device `json:"devices"`
	Messages []*Message         `json:"messages"`
	Settings map[string]string  `json:"settings"`
}

// NewDocument returns a document with the four empty collections.
func NewDocument() *Document {
	d := &Document{}
	d.normalize()
	return d
}

func (d *Document) normalize() {
	if d.users == nil {
		d.users = map[string]*User{}
	}
	if d.devices == nil {
		d.devices = map[string]*Device{}
	}
	if d.messages == nil {
		d.messages = []*Message{}
	}
	if d.settings == nil {
		d.settings = map[string]string{}
	}
	for id, u := range d.users {
		if u == nil {
			u = &User{}
			d.users[id] = u
		}
		if u.UserID == "" {
			u.UserID = id
		}
	}
	for id, dev := range d.devices {
		if dev == nil {
			dev = &Device{}
			d.devices[id] = dev
		}
		if dev.DeviceID == "" {
			dev.DeviceID = id
		}
	}
	kept := d.messages[:0]
	for _, m := range d.messages {
		if m != nil {
			kept = append(kept, m)
		}
	}
	d.messages = kept
}

func (d *Document) MarshalJSON() ([]byte, error) {
	d.normalize()
	return marshalWithExtra(documentJSON{
		Users:    d.users,
		Devices:  d.devices,
		Messages: d.messages,
		Settings: d.settings,
	}, d.extra)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); len(t) == 0 || t[0] != '{' {
		return errors.New("document root must be a JSON object")
	}
	var w documentJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	extra, err := extraFields(b, documentFields)
	if err != nil {
		return err
	}
	*d = Document{users: w.Users, devices: w.Devices, messages: w.Messages, settings: w.Settings, extra: extra}
	d.normalize()
	return nil
}

// Users returns the live users collection keyed by user id.
func (d *Document) Users() map[string]*User { return d.users }

// Devices returns the live devices collection keyed by device id.
func (d *Document) Devices() map[string]*Device { return d.devices }

// Messages returns the message log in insertion order.
func (d *Document) Messages() []*Message { return d.messages }

// Settings returns the live settings object.
func (d *Document) Settings() map[string]string { return d.settings }

// UpsertUser creates the user or refreshes its profile fields. UserID and an
// existing JoinedAt are never changed. A new user without JoinedAt is stamped now.
func (d *Document) UpsertUser(in User) (*User, bool, error) {
	if in.UserID == "" {
		return nil, false, invalid("user_id", "is required")
	}
	if in.JoinedAt != "" && !ValidTimestamp(in.JoinedAt) {
		return nil, false, invalid("joined_at", "%q is not an ISO-8601 timestamp", in.JoinedAt)
	}
	u, ok := d.users[in.UserID]
	if !ok {
		u = &User{UserID: in.UserID, JoinedAt: in.JoinedAt}
		if u.JoinedAt == "" {
			u.JoinedAt = FormatTimestamp(time.Now())
		}
		d.users[in.UserID] = u
	}
	if in.Username != "" {
		u.Username = in.Username
	}
	if in.FirstName != "" {
		u.FirstName = in.FirstName
	}
	if in.LastName != "" {
		u.LastName = in.LastName
	}
	if in.BotType != "" {
		u.BotType = in.BotType
	}
	if u.JoinedAt == "" && in.JoinedAt != "" {
		u.JoinedAt = in.JoinedAt
	}
	return u, !ok, nil
}

// RegisterDevice creates the device stamped with registeredAt. Re-registering an
// existing device only updates its owner; RegisteredAt is immutable.
func (d *Document) RegisterDevice(deviceID, ownerID, registeredAt string) (*Device, bool, error) {
	if deviceID == "" {
		return nil, false, invalid("device_id", "is required")
	}
	if dev, ok := d.devices[deviceID]; ok {
		if ownerID != "" {
			dev.OwnerID = ownerID
		}
		return dev, false, nil
	}
	if !ValidTimestamp(registeredAt) {
		return nil, false, invalid("registered_at", "%q is not an ISO-8601 timestamp", registeredAt)
	}
	dev := &Device{DeviceID: deviceID, OwnerID: ownerID, RegisteredAt: registeredAt}
	d.devices[deviceID] = dev
	return dev, true, nil
}

// RecordUpload moves the device's LastUpload to at. It rejects unknown devices
// and any timestamp earlier than the current LastUpload.
func (d *Document) RecordUpload(deviceID, at string) (*Device, error) {
	dev, ok := d.devices[deviceID]
	if !ok {
		return nil, invalid("device_id", "device %q is not registered", deviceID)
	}
	next, err := ParseTimestamp(at)
	if err != nil {
		return nil, invalid("last_upload", "%v", err)
	}
	if dev.LastUpload != nil {
		if prev, err := ParseTimestamp(*dev.LastUpload); err == nil && next.Before(prev) {
			return nil, invalid("last_upload", "%s is earlier than current %s", at, *dev.LastUpload)
		}
	}
	dev.LastUpload = &at
	return dev, nil
}

// AppendMessage adds m at the end of the log.
func (d *Document) AppendMessage(m Message) (*Message, error) {
	if m.ChatID == "" {
		return nil, invalid("chat_id", "is required")
	}
	if m.Timestamp != "" && !ValidTimestamp(m.Timestamp) {
		return nil, invalid("timestamp", "%q is not an ISO-8601 timestamp", m.Timestamp)
	}
	msg := &m
	d.messages = append(d.messages, msg)
	return msg, nil
}

// ReplaceSettings swaps the whole settings object; keys absent from s are dropped.
func (d *Document) ReplaceSettings(s map[string]string) {
	next := make(map[string]string, len(s))
	for k, v := range s {
		next[k] = v
	}
	d.settings = next
}
