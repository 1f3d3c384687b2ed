// Package model defines the canonical, loader-agnostic chat history entities:
// Dataset, User, Chat, Message, Content and RichText. Values here are
// produced by a Loader and absorbed wholesale by the Store; after that they
// are immutable except through the Store's explicit mutating operations.
package model

import (
	"github.com/google/uuid"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Dataset is the root of ownership: every other entity belongs to exactly
// one dataset, identified by a 128-bit UUID, with a human alias and a
// filesystem root under which all referenced media lives.
type Dataset struct {
	UUID  uuid.UUID
	Alias string
	// Root is the filesystem directory under which this dataset's media
	// files live; all stored media paths are relative to it. Not persisted
	// in the database itself (it is derived from the store's layout) but
	// carried on the in-memory value so loaders and the executor can
	// resolve relative paths without a second lookup.
	Root string
}

func (d Dataset) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Alias, validation.Required),
	)
}

// SourceType enumerates the platform a chat originated from.
type SourceType string

const (
	SourceTelegram      SourceType = "telegram"
	SourceWhatsAppDB    SourceType = "whatsapp-db"
	SourceWhatsAppText  SourceType = "whatsapp-text"
	SourceTinder        SourceType = "tinder"
	SourceBadoo         SourceType = "badoo"
	SourceMailRuLegacy  SourceType = "mailru-legacy"
	SourceMailRu        SourceType = "mailru"
	SourceTextImport    SourceType = "text-import"
)

// ChatType distinguishes a one-on-one conversation from a group.
type ChatType string

const (
	ChatPersonal     ChatType = "personal"
	ChatPrivateGroup ChatType = "private-group"
)

// User is keyed by (DatasetUUID, ID) within a dataset. Exactly one user per
// dataset must have IsMyself set; that user must sort first whenever users
// are listed.
type User struct {
	DatasetUUID uuid.UUID
	ID          int64
	FirstName   string
	LastName    string
	Username    string
	// PhoneNumbers is an ordered list; order is significant for display but
	// carries no semantic meaning beyond "as exported".
	PhoneNumbers []string
	IsMyself     bool
}

// PrettyName renders the best available display name, falling back to the
// username, then to a placeholder built from the ID.
func (u User) PrettyName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	case u.Username != "":
		return u.Username
	default:
		return "User " + int64ToString(u.ID)
	}
}

// Chat is keyed by (DatasetUUID, ID). MainChatID, when set, groups several
// same-party chats into one "combined chat" for display purposes.
type Chat struct {
	DatasetUUID uuid.UUID
	ID          int64
	Name        string
	SourceType  SourceType
	Type        ChatType
	MsgCount    int64
	ImgPath     string // relative to dataset root, empty if none
	MainChatID  *int64
	// MemberIDs lists chat_member user ids in explicit display order;
	// "myself" is not guaranteed to be first here (unlike User listings).
	MemberIDs []int64
}

// ChatWithDetails bundles a Chat with its resolved member Users and its last
// Message, as returned by the Store's chats() read operation.
type ChatWithDetails struct {
	Chat        Chat
	Members     []User
	LastMessage *Message
}

// MessageBodyKind discriminates a Message's body variant.
type MessageBodyKind string

const (
	BodyRegular MessageBodyKind = "regular"
	BodyService MessageBodyKind = "service"
)

// ServiceSubtype enumerates the Service body's tagged variants.
type ServiceSubtype string

const (
	ServicePhoneCall           ServiceSubtype = "phone-call"
	ServicePin                 ServiceSubtype = "pin"
	ServiceClearHistory        ServiceSubtype = "clear-history"
	ServiceGroupCreate         ServiceSubtype = "group-create"
	ServiceGroupEditTitle      ServiceSubtype = "group-edit-title"
	ServiceGroupEditPhoto      ServiceSubtype = "group-edit-photo"
	ServiceGroupDeletePhoto    ServiceSubtype = "group-delete-photo"
	ServiceGroupInviteMembers  ServiceSubtype = "group-invite-members"
	ServiceGroupRemoveMembers  ServiceSubtype = "group-remove-members"
	ServiceGroupMigrateFrom    ServiceSubtype = "group-migrate-from"
	ServiceGroupMigrateTo      ServiceSubtype = "group-migrate-to"
	ServiceGroupCall           ServiceSubtype = "group-call"
	ServiceSuggestProfilePhoto ServiceSubtype = "suggest-profile-photo"
	ServiceBlockUser           ServiceSubtype = "block-user"
)

// ServiceBody carries the payload for the Service body variants that need
// one: a list of member names for create/invite/remove/call, an image path
// for edit-photo/suggest-profile-photo, or nothing at all for the rest.
type ServiceBody struct {
	Subtype ServiceSubtype
	// MemberNames holds display-name strings for group-create,
	// group-invite-members, group-remove-members and group-call. These are
	// names, not user ids: the Merge Executor rewrites them on merge (see
	// internal/executor), preserving any name without a resolution verbatim.
	MemberNames []string
	// ImagePath is used by group-edit-photo and suggest-profile-photo; it
	// follows the same tri-state absent/present/not-found contract as
	// Content media paths.
	ImagePath MediaPath
}

// Message is globally identified within a store by an auto-assigned,
// store-local InternalID (monotonic per store, opaque across stores — see
// spec §9 "Opaque per-store ids"). SourceID, when set, is the identifier
// used by the originating platform and is unique within (DatasetUUID,
// ChatID, SourceID) among non-null values.
type Message struct {
	InternalID int64
	DatasetUUID uuid.UUID
	ChatID      int64
	SourceID    *int64

	FromUserID int64
	// Timestamp is epoch seconds, UTC unless otherwise documented by the
	// originating loader (see Mail.Ru legacy's fixed-offset caveat).
	Timestamp      int64
	EditTimestamp  *int64
	IsDeleted      bool
	ForwardFromName string
	ReplyToSourceID *int64 // soft reference, never enforced

	BodyKind MessageBodyKind

	// Regular-body fields, valid when BodyKind == BodyRegular.
	RichText RichText
	Content  *Content

	// Service-body field, valid when BodyKind == BodyService.
	Service *ServiceBody
}

// SearchableString returns the message's canonical plain-text projection,
// used both for display and as the Merger's ordering tiebreak.
func (m Message) SearchableString() string {
	return m.RichText.PlainText()
}

func (m Message) Validate() error {
	if m.BodyKind != BodyRegular && m.BodyKind != BodyService {
		return validation.NewInternalError(nil)
	}
	return nil
}

func int64ToString(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
