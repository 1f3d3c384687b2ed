// Package whatsappdb loads chat history from a decrypted WhatsApp Android
// msgstore.db (the jid/chat/message/message_media schema WhatsApp itself
// uses), grounded on the teacher's own WhatsApp importer: same table shapes,
// same phone normalization and content-addressed media resolution approach,
// rebuilt to produce a loader.Dataset instead of upserting directly into a
// bespoke email-archive schema.
package whatsappdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/loader"
	"github.com/frozenspider/chat-history-manager-go/internal/loader/textenc"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

const FormatName = "whatsapp-db"

func init() {
	loader.Register(FormatName, func() loader.Loader { return New(nil) })
}

// myselfUserID is reserved for the device owner, who WhatsApp's schema never
// names directly (message.from_me is a boolean flag, not a jid reference).
// Every real jid._id is a SQLite AUTOINCREMENT primary key starting at 1, so
// 0 is never used by an actual contact.
const myselfUserID int64 = 0

const batchSize = 1000

// Loader parses a single decrypted WhatsApp msgstore.db.
type Loader struct {
	log *slog.Logger
}

// New returns a Loader. A nil logger defaults to slog.Default().
func New(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{log: log}
}

func (l *Loader) Name() string { return FormatName }

// Load implements loader.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*loader.Dataset, []loader.Warning, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperror.NotFound("loader-source", path)
		}
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	dsn := (&url.URL{
		Scheme:   "file",
		OmitHost: true,
		Path:     path,
		RawQuery: "mode=ro&_journal_mode=WAL&_busy_timeout=5000",
	}).String()
	waDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open whatsapp db: %w", err)
	}
	defer waDB.Close()

	if err := verifyWhatsAppDB(waDB); err != nil {
		return nil, nil, apperror.Format(path, -1, err.Error())
	}

	sourceRoot := filepath.Dir(path)
	ds := model.Dataset{UUID: uuid.New(), Alias: "WhatsApp", Root: sourceRoot}

	users := map[int64]model.User{
		myselfUserID: {DatasetUUID: ds.UUID, ID: myselfUserID, FirstName: "Me", IsMyself: true},
	}
	ensureUser := func(jidRowID int64, user, server string) int64 {
		if _, ok := users[jidRowID]; ok {
			return jidRowID
		}
		phone := normalizePhone(user, server)
		u := model.User{DatasetUUID: ds.UUID, ID: jidRowID}
		if phone != "" {
			u.PhoneNumbers = []string{phone}
			u.FirstName = phone
		} else {
			u.FirstName = "Contact " + strconv.FormatInt(jidRowID, 10)
		}
		users[jidRowID] = u
		return jidRowID
	}

	waChats, err := fetchChats(waDB)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch chats: %w", err)
	}

	var chats []loader.ChatMessages
	var warnings []loader.Warning

	for _, wc := range waChats {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		chat := model.Chat{
			DatasetUUID: ds.UUID,
			ID:          wc.RowID,
			SourceType:  model.SourceWhatsAppDB,
		}

		var memberIDs []int64
		if wc.GroupType > 0 {
			chat.Type = model.ChatPrivateGroup
			if wc.Subject.Valid {
				chat.Name = wc.Subject.String
			}
			memberIDs = append(memberIDs, myselfUserID)
			members, err := fetchGroupParticipants(waDB, wc.RawString)
			if err != nil {
				warnings = append(warnings, loader.Warning{RecordID: wc.RawString, Reason: err.Error()})
			}
			for _, m := range members {
				memberIDs = append(memberIDs, ensureUser(m.MemberJIDRowID, m.MemberUser, m.MemberServer))
			}
		} else {
			chat.Type = model.ChatPersonal
			otherID := ensureUser(wc.JIDRowID, wc.User, wc.Server)
			memberIDs = []int64{myselfUserID, otherID}
			chat.Name = users[otherID].FirstName
		}
		chat.MemberIDs = memberIDs

		msgs, chatWarnings, err := l.loadChatMessages(ctx, waDB, ds.UUID, wc, ensureUser)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, chatWarnings...)
		chat.MsgCount = int64(len(msgs))

		chats = append(chats, loader.ChatMessages{Chat: chat, Messages: msgs})
	}

	userList := make([]model.User, 0, len(users))
	for _, u := range users {
		userList = append(userList, u)
	}

	return &loader.Dataset{
		Dataset:    ds,
		Users:      userList,
		Chats:      chats,
		SourceRoot: sourceRoot,
	}, warnings, nil
}

func (l *Loader) loadChatMessages(
	ctx context.Context, waDB *sql.DB, dsUUID uuid.UUID, wc waChat, ensureUser func(int64, string, string) int64,
) ([]model.Message, []loader.Warning, error) {
	var messages []model.Message
	var warnings []loader.Warning
	keyIDToSourceID := make(map[string]int64)

	afterID := int64(0)
	for {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		batch, err := fetchMessages(waDB, wc.RowID, afterID, batchSize)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch messages for chat %d: %w", wc.RowID, err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].RowID

		rowIDs := make([]int64, len(batch))
		for i, m := range batch {
			rowIDs[i] = m.RowID
		}
		mediaMap, err := fetchMedia(waDB, rowIDs)
		if err != nil {
			warnings = append(warnings, loader.Warning{RecordID: strconv.FormatInt(wc.RowID, 10), Reason: err.Error()})
			mediaMap = map[int64]waMedia{}
		}
		quotedMap, err := fetchQuoted(waDB, rowIDs)
		if err != nil {
			warnings = append(warnings, loader.Warning{RecordID: strconv.FormatInt(wc.RowID, 10), Reason: err.Error()})
			quotedMap = map[int64]waQuoted{}
		}

		for _, wm := range batch {
			if isSkippedType(wm.MessageType) {
				warnings = append(warnings, loader.Warning{
					RecordID: strconv.FormatInt(wm.RowID, 10),
					Reason:   fmt.Sprintf("message type %d not supported", wm.MessageType),
				})
				continue
			}

			msg := model.Message{
				DatasetUUID: dsUUID,
				ChatID:      wc.RowID,
				SourceID:    ptrInt64(wm.RowID),
				Timestamp:   wm.Timestamp / 1000,
				BodyKind:    model.BodyRegular,
			}
			if wm.FromMe == 1 {
				msg.FromUserID = myselfUserID
			} else if wm.SenderJID.Valid {
				msg.FromUserID = ensureUser(wm.SenderJID.Int64, wm.SenderUser.String, wm.SenderServer.String)
			} else if wc.GroupType == 0 {
				msg.FromUserID = ensureUser(wc.JIDRowID, wc.User, wc.Server)
			}

			text := ""
			if wm.TextData.Valid {
				text = textenc.Normalize(wm.TextData.String)
			}
			media, hasMedia := mediaMap[wm.RowID]
			if hasMedia && media.MediaCaption.Valid && media.MediaCaption.String != "" {
				caption := textenc.Normalize(media.MediaCaption.String)
				if text != "" {
					text += "\n\n" + caption
				} else {
					text = caption
				}
			}
			msg.RichText = model.RichText{Elements: []model.RichTextElement{{Kind: model.RTPlain, Text: text}}}

			if hasMedia {
				msg.Content = convertContent(wm.MessageType, media)
			}

			if q, ok := quotedMap[wm.RowID]; ok {
				if sourceID, ok := keyIDToSourceID[q.QuotedKeyID]; ok {
					msg.ReplyToSourceID = ptrInt64(sourceID)
				}
			}
			if wm.KeyID != "" {
				keyIDToSourceID[wm.KeyID] = wm.RowID
			}

			messages = append(messages, msg)
		}

		if len(batch) < batchSize {
			break
		}
	}

	return messages, warnings, nil
}

// convertContent maps a media-bearing WhatsApp message to its Content
// variant. Only the message types this retrieval pack's schema slice
// actually covers (message_media rows) are handled; types without a grounded
// schema (location, shared-contact, polls) are left to isSkippedType.
func convertContent(waMessageType int, media waMedia) *model.Content {
	c := &model.Content{Kind: contentKindOf(waMessageType)}
	if media.FilePath.Valid && media.FilePath.String != "" {
		c.Path = model.MediaPath{Set: true, Path: filepath.ToSlash(media.FilePath.String)}
	}
	if media.MimeType.Valid {
		c.MimeType = media.MimeType.String
	}
	if media.Width.Valid {
		c.Width = int(media.Width.Int64)
	}
	if media.Height.Valid {
		c.Height = int(media.Height.Int64)
	}
	if media.DurationSec.Valid {
		c.DurationSec = int(media.DurationSec.Int64)
	}
	if media.FileSize.Valid {
		c.FileSizeBytes = media.FileSize.Int64
	}
	if media.FilePath.Valid {
		c.FileName = filepath.Base(media.FilePath.String)
	}
	return c
}

func contentKindOf(waMessageType int) model.ContentKind {
	switch waMessageType {
	case 1:
		return model.ContentPhoto
	case 2:
		return model.ContentVideo
	case 3:
		return model.ContentAudio
	case 4:
		return model.ContentAnimation
	case 5:
		return model.ContentVoiceMessage
	case 90:
		return model.ContentSticker
	default:
		return model.ContentFile
	}
}

// isSkippedType reports WhatsApp message types this loader does not carry
// over: system events, calls, locations, contact cards and polls, none of
// which this retrieval pack's schema slice covers beyond their type code.
func isSkippedType(waMessageType int) bool {
	switch waMessageType {
	case 7, 9, 10, 11, 15, 64, 66, 99:
		return true
	default:
		return false
	}
}

// normalizePhone normalizes a WhatsApp JID user+server to an E.164 phone
// number, returning "" for non-phone JIDs (lid:..., status@broadcast, ...).
func normalizePhone(user, server string) string {
	if user == "" {
		return ""
	}
	user = strings.TrimSuffix(user, "@"+server)
	if strings.HasPrefix(user, "+") {
		return user
	}
	for _, c := range user {
		if c < '0' || c > '9' {
			return ""
		}
	}
	if len(user) < 4 || len(user) > 15 {
		return ""
	}
	return "+" + user
}

func ptrInt64(v int64) *int64 { return &v }
