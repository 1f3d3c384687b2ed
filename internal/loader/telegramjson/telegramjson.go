// Package telegramjson loads chat history from a Telegram Desktop JSON
// export (the single result.json produced by Settings → Advanced → Export
// chat history). It is a reference Loader implementation grounded on the
// export format's actual shape (type/date_unixtime/from_id/text-as-array
// fields) rather than on any single teacher file, since the teacher repo
// carries no Telegram support; the flat "text can be a string or an array of
// entities" parsing is grounded on the retrieval pack's
// import_telegram_export.go reference.
package telegramjson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/loader"
	"github.com/frozenspider/chat-history-manager-go/internal/loader/textenc"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

const FormatName = "telegram-json"

func init() {
	loader.Register(FormatName, func() loader.Loader { return New(nil) })
}

// Loader parses a single Telegram Desktop result.json export.
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

// export mirrors the subset of Telegram Desktop's result.json this loader
// understands.
type export struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Messages []exportMessage   `json:"messages"`
}

type exportMessage struct {
	ID              int64           `json:"id"`
	Type            string          `json:"type"` // "message" or "service"
	Action          string          `json:"action,omitempty"`
	DateUnixtime    string          `json:"date_unixtime"`
	EditedUnixtime  string          `json:"edited_unixtime,omitempty"`
	From            string          `json:"from,omitempty"`
	FromID          string          `json:"from_id,omitempty"`
	Actor           string          `json:"actor,omitempty"`
	ActorID         string          `json:"actor_id,omitempty"`
	ForwardedFrom   string          `json:"forwarded_from,omitempty"`
	ReplyToMessageID int64          `json:"reply_to_message_id,omitempty"`
	Text            json.RawMessage `json:"text"`
	Photo           string          `json:"photo,omitempty"`
	File            string          `json:"file,omitempty"`
	MediaType       string          `json:"media_type,omitempty"`
	Width           int             `json:"width,omitempty"`
	Height          int             `json:"height,omitempty"`
	DurationSeconds int             `json:"duration_seconds,omitempty"`
	Members         []string        `json:"members,omitempty"`
}

type textEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// Load implements loader.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*loader.Dataset, []loader.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperror.NotFound("loader-source", path)
		}
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var exp export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, nil, apperror.Format(path, -1, err.Error())
	}

	sourceRoot := sourceRootOf(path)
	ds := model.Dataset{UUID: uuid.New(), Alias: exp.Name, Root: sourceRoot}

	users := map[int64]model.User{}
	ensureUser := func(name string, rawID string) int64 {
		id := parseUserID(rawID)
		if _, ok := users[id]; !ok {
			first, last := splitName(name)
			users[id] = model.User{DatasetUUID: ds.UUID, ID: id, FirstName: first, LastName: last}
		}
		return id
	}
	myselfID := ensureUser("Me", "user0")
	myself := users[myselfID]
	myself.IsMyself = true
	users[myselfID] = myself

	chat := model.Chat{
		DatasetUUID: ds.UUID,
		ID:          exp.ID,
		Name:        exp.Name,
		SourceType:  model.SourceTelegram,
		Type:        telegramChatType(exp.Type),
	}

	var messages []model.Message
	var warnings []loader.Warning

	for _, m := range exp.Messages {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		msg, warn, err := l.convertMessage(ds.UUID, chat.ID, m, ensureUser)
		if err != nil {
			warnings = append(warnings, loader.Warning{RecordID: strconv.FormatInt(m.ID, 10), Reason: err.Error()})
			continue
		}
		if warn != "" {
			warnings = append(warnings, loader.Warning{RecordID: strconv.FormatInt(m.ID, 10), Reason: warn})
		}
		messages = append(messages, msg)
	}
	messages = dedupeConsecutiveRepeats(messages)

	memberSet := map[int64]bool{}
	for _, msg := range messages {
		memberSet[msg.FromUserID] = true
	}
	for id := range memberSet {
		chat.MemberIDs = append(chat.MemberIDs, id)
	}
	chat.MsgCount = int64(len(messages))

	userList := make([]model.User, 0, len(users))
	for _, u := range users {
		userList = append(userList, u)
	}

	return &loader.Dataset{
		Dataset:    ds,
		Users:      userList,
		Chats:      []loader.ChatMessages{{Chat: chat, Messages: messages}},
		SourceRoot: sourceRoot,
	}, warnings, nil
}

func (l *Loader) convertMessage(
	dsUUID uuid.UUID, chatID int64, m exportMessage, ensureUser func(name, rawID string) int64,
) (model.Message, string, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(m.DateUnixtime), 10, 64)
	if err != nil {
		return model.Message{}, "", fmt.Errorf("parse date_unixtime %q: %w", m.DateUnixtime, err)
	}
	sourceID := m.ID

	out := model.Message{
		DatasetUUID: dsUUID,
		ChatID:      chatID,
		SourceID:    &sourceID,
		Timestamp:   ts,
	}
	if m.EditedUnixtime != "" {
		if edited, err := strconv.ParseInt(m.EditedUnixtime, 10, 64); err == nil {
			out.EditTimestamp = &edited
		}
	}
	if m.ReplyToMessageID != 0 {
		rid := m.ReplyToMessageID
		out.ReplyToSourceID = &rid
	}
	out.ForwardFromName = m.ForwardedFrom

	if m.Type == "service" {
		out.BodyKind = model.BodyService
		out.FromUserID = ensureUser(m.Actor, m.ActorID)
		out.Service = &model.ServiceBody{Subtype: serviceSubtype(m.Action)}
		if len(m.Members) > 0 {
			names := make([]string, len(m.Members))
			copy(names, m.Members)
			out.Service.MemberNames = names
		}
		if m.Photo != "" {
			out.Service.ImagePath = model.MediaPath{Set: true, Path: m.Photo, Found: true}
		}
		return out, "", nil
	}

	out.BodyKind = model.BodyRegular
	out.FromUserID = ensureUser(m.From, m.FromID)
	rt, warn := parseRichText(m.Text)
	out.RichText = rt

	if m.MediaType != "" || m.File != "" || m.Photo != "" {
		out.Content = &model.Content{Kind: model.ContentFile}
		path := m.File
		if path == "" {
			path = m.Photo
		}
		if path != "" {
			out.Content.Path = model.MediaPath{Set: true, Path: path, Found: true}
		}
		if m.MediaType == "photo" || m.Photo != "" {
			out.Content.Kind = model.ContentPhoto
		}
		out.Content.Width = m.Width
		out.Content.Height = m.Height
		out.Content.DurationSec = m.DurationSeconds
	}

	return out, warn, nil
}

// parseRichText decodes Telegram's text field, which is either a plain
// string or an array mixing plain strings with {type,text,href} entity
// objects, normalizing every run of text through textenc.
func parseRichText(raw json.RawMessage) (model.RichText, string) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return model.RichText{Elements: []model.RichTextElement{
			{Kind: model.RTPlain, Text: textenc.Normalize(asString)},
		}}, ""
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return model.RichText{}, "unrecognized text field shape"
	}
	var elements []model.RichTextElement
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			elements = append(elements, model.RichTextElement{Kind: model.RTPlain, Text: textenc.Normalize(s)})
			continue
		}
		var ent textEntity
		if err := json.Unmarshal(part, &ent); err != nil {
			continue
		}
		elements = append(elements, model.RichTextElement{
			Kind: richTextKindOf(ent.Type),
			Text: textenc.Normalize(ent.Text),
			Href: ent.Href,
		})
	}
	return model.RichText{Elements: elements}, ""
}

func richTextKindOf(entityType string) model.RichTextElementKind {
	switch entityType {
	case "bold":
		return model.RTBold
	case "italic":
		return model.RTItalic
	case "underline":
		return model.RTUnderline
	case "strikethrough":
		return model.RTStrikethrough
	case "code", "pre":
		return model.RTCode
	case "text_link", "link", "mention", "email":
		return model.RTLink
	default:
		return model.RTPlain
	}
}

func serviceSubtype(action string) model.ServiceSubtype {
	switch action {
	case "create_group", "create_channel":
		return model.ServiceGroupCreate
	case "invite_members", "join_group_by_link":
		return model.ServiceGroupInviteMembers
	case "remove_members", "kick_member":
		return model.ServiceGroupRemoveMembers
	case "edit_chat_title":
		return model.ServiceGroupEditTitle
	case "edit_chat_photo":
		return model.ServiceGroupEditPhoto
	case "delete_chat_photo":
		return model.ServiceGroupDeletePhoto
	case "pin_message":
		return model.ServicePin
	case "migrate_from_group", "migrate_to_supergroup":
		return model.ServiceGroupMigrateFrom
	case "phone_call":
		return model.ServicePhoneCall
	case "suggest_profile_photo":
		return model.ServiceSuggestProfilePhoto
	default:
		return model.ServiceGroupEditTitle
	}
}

func telegramChatType(expType string) model.ChatType {
	switch expType {
	case "personal_chat", "saved_messages", "bot_chat":
		return model.ChatPersonal
	default:
		return model.ChatGroup
	}
}

func parseUserID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "user")
	raw = strings.TrimPrefix(raw, "channel")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func sourceRootOf(jsonPath string) string {
	dir := jsonPath
	if idx := strings.LastIndexByte(jsonPath, '/'); idx >= 0 {
		dir = jsonPath[:idx]
	}
	return dir
}

// dedupeConsecutiveRepeats drops messages that exactly repeat the
// immediately preceding one in (from, timestamp, text) — a pattern seen in
// some mobile export bugs that double-write a message on retry. This is
// heuristic and documented as potentially dropping a legitimate quick-repeat
// message, per spec.md §9.
func dedupeConsecutiveRepeats(msgs []model.Message) []model.Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]model.Message, 0, len(msgs))
	out = append(out, msgs[0])
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		if prev.FromUserID == cur.FromUserID && prev.Timestamp == cur.Timestamp &&
			prev.BodyKind == cur.BodyKind && prev.RichText.PlainText() == cur.RichText.PlainText() {
			continue
		}
		out = append(out, cur)
	}
	return out
}
