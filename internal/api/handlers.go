package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/search"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// ErrorResponse is the JSON body returned for any non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeStoreErr maps a Store/apperror error to the appropriate HTTP status.
func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case apperror.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case apperror.IsInvariantViolated(err), apperror.IsConflict(err), apperror.IsTimeShiftDetected(err):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// storeFromRequest resolves the {key} path parameter to its Store.
func (s *Server) storeFromRequest(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	key := chi.URLParam(r, "key")
	st, err := s.registry.Get(key)
	if err != nil {
		writeStoreErr(w, err)
		return nil, false
	}
	return st, true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name+": "+raw)
		return uuid.UUID{}, false
	}
	return id, true
}

func parseInt64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name+": "+raw)
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// --- loader service ---

// LoadRequest is the body of POST /api/v1/stores.
type LoadRequest struct {
	Path string `json:"path"`
}

// LoadResponse is returned by POST /api/v1/stores.
type LoadResponse struct {
	Key string `json:"key"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	key, err := s.registry.Load(req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LoadResponse{Key: key})
}

func (s *Server) handleGetLoaded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetLoaded())
}

func (s *Server) handleCloseStore(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.registry.Close(key); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- data service: datasets ---

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	datasets, err := st.Datasets()
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, datasets)
}

// RenameDatasetRequest is the body of PATCH .../datasets/{dsUUID}.
type RenameDatasetRequest struct {
	Alias string `json:"alias"`
}

func (s *Server) handleRenameDataset(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	var req RenameDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Alias == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "alias is required")
		return
	}
	if err := st.RenameDataset(dsUUID, req.Alias); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	if err := st.DeleteDataset(dsUUID); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShiftTimeRequest is the body of POST .../datasets/{dsUUID}/shift-time.
type ShiftTimeRequest struct {
	Hours int `json:"hours"`
}

func (s *Server) handleShiftTime(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	var req ShiftTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "hours is required")
		return
	}
	if err := st.ShiftDatasetTime(dsUUID, req.Hours); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- data service: users ---

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	users, err := st.Users(dsUUID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	userID, ok := parseInt64Param(w, r, "userID")
	if !ok {
		return
	}
	var u model.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid user body")
		return
	}
	u.DatasetUUID = dsUUID
	u.ID = userID
	if err := st.UpdateUser(u); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeUsersRequest is the body of POST .../users/merge.
type MergeUsersRequest struct {
	Base     int64 `json:"base"`
	Absorbed int64 `json:"absorbed"`
}

func (s *Server) handleMergeUsers(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	var req MergeUsersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "base and absorbed are required")
		return
	}
	if err := st.MergeUsers(dsUUID, req.Base, req.Absorbed); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- data service: chats ---

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	chats, err := st.Chats(dsUUID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	chatID, ok := parseInt64Param(w, r, "chatID")
	if !ok {
		return
	}
	if err := st.DeleteChat(dsUUID, chatID); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- data service: messages ---

func (s *Server) handleScrollMessages(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	msgs, err := st.ScrollMessages(dsUUID, chatID, offset, limit)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleFirstMessages(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	n := queryInt(r, "n", 100)
	msgs, err := st.FirstMessages(dsUUID, chatID, n)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleLastMessages(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	n := queryInt(r, "n", 100)
	msgs, err := st.LastMessages(dsUUID, chatID, n)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMessagesBefore(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	anchorID, ok := parseQueryInt64(w, r, "anchor_id")
	if !ok {
		return
	}
	n := queryInt(r, "n", 100)
	msgs, err := st.MessagesBefore(dsUUID, chatID, anchorID, n)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMessagesAfter(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	anchorID, ok := parseQueryInt64(w, r, "anchor_id")
	if !ok {
		return
	}
	n := queryInt(r, "n", 100)
	msgs, err := st.MessagesAfter(dsUUID, chatID, anchorID, n)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMessagesSlice(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	id1, ok := parseQueryInt64(w, r, "id1")
	if !ok {
		return
	}
	id2, ok := parseQueryInt64(w, r, "id2")
	if !ok {
		return
	}
	msgs, err := st.MessagesSlice(dsUUID, chatID, id1, id2)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMessagesAroundDate(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("at")
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "at must be RFC3339")
		return
	}
	n := queryInt(r, "n", 100)
	msgs, err := st.MessagesAroundDate(dsUUID, chatID, at, n)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMessageBySourceID(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	sourceID, ok := parseInt64Param(w, r, "sourceID")
	if !ok {
		return
	}
	msg, err := st.MessageBySourceID(dsUUID, chatID, sourceID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleMessageByInternalID(w http.ResponseWriter, r *http.Request) {
	st, dsUUID, chatID, ok := s.chatRequestParams(w, r)
	if !ok {
		return
	}
	internalID, ok := parseInt64Param(w, r, "internalID")
	if !ok {
		return
	}
	msg, err := st.MessageByInternalID(dsUUID, chatID, internalID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// chatRequestParams resolves the store, dataset and chat id shared by every
// message-listing route.
func (s *Server) chatRequestParams(w http.ResponseWriter, r *http.Request) (*store.Store, uuid.UUID, int64, bool) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return nil, uuid.UUID{}, 0, false
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return nil, uuid.UUID{}, 0, false
	}
	chatID, ok := parseInt64Param(w, r, "chatID")
	if !ok {
		return nil, uuid.UUID{}, 0, false
	}
	return st, dsUUID, chatID, true
}

func parseQueryInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name+": "+raw)
		return 0, false
	}
	return v, true
}

// --- data service: search ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	dsUUID, ok := parseUUIDParam(w, r, "dsUUID")
	if !ok {
		return
	}
	patterns := r.URL.Query()["q"]
	if len(patterns) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "at least one q parameter is required")
		return
	}
	opts := search.Options{
		CaseSensitive: r.URL.Query().Get("case_sensitive") == "true",
		Limit:         queryInt(r, "limit", 0),
	}

	var (
		matches []search.Match
		err     error
	)
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		chatID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid chat_id")
			return
		}
		matches, err = search.Chat(st, dsUUID, chatID, patterns, opts)
	} else {
		matches, err = search.AllChats(st, dsUUID, patterns, opts)
	}
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// --- data service: backup ---

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFromRequest(w, r)
	if !ok {
		return
	}
	path, err := st.Backup()
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}
