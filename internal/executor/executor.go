// Package executor implements the Merge Executor (component F of spec.md
// §4.5): given a master and slave dataset and a fully-resolved set of chat,
// range and user decisions (as produced by a human or calling program acting
// on internal/merge's diff output), it replays those decisions into a fresh
// store as one new merged dataset.
package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/merge"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// DefaultBatchSize matches internal/merge's, since the executor replays the
// same message ranges the Merger diffed.
const DefaultBatchSize = 1000

// Input bundles everything the Merge Executor needs: the two source stores
// and datasets being merged, the new store's path, and the caller's
// resolutions for every chat and user the comparison surfaced.
type Input struct {
	NewStorePath string

	MasterStore   *store.Store
	MasterDataset model.Dataset
	SlaveStore    *store.Store
	SlaveDataset  model.Dataset

	Chats     []ChatDecision
	Users     []UserResolution
	BatchSize int // 0 means DefaultBatchSize
}

// Execute runs the six-step procedure of spec.md §4.5. On any exit path —
// success, a caller error (bad decisions), or a mid-merge failure — the new
// store's backups are resumed and, if the store ended up non-empty, a final
// backup is taken before returning, since even a partial merge is worth
// preserving. The returned *store.Store is left open; the caller closes it.
func Execute(ctx context.Context, in Input) (*store.Store, error) {
	batchSize := in.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	dest, err := store.Open(in.NewStorePath)
	if err != nil {
		return nil, err
	}
	if err := dest.InitSchema(); err != nil {
		dest.Close()
		return nil, err
	}

	dest.SuspendBackups()
	defer func() {
		dest.ResumeBackups()
		if empty, err := dest.IsEmpty(); err == nil && !empty {
			_, _ = dest.Backup()
		}
	}()

	if err := execute(ctx, dest, in, batchSize); err != nil {
		return dest, err
	}
	return dest, nil
}

func execute(ctx context.Context, dest *store.Store, in Input, batchSize int) error {
	masterUsers, err := in.MasterStore.Users(in.MasterDataset.UUID)
	if err != nil {
		return err
	}
	slaveUsers, err := in.SlaveStore.Users(in.SlaveDataset.UUID)
	if err != nil {
		return err
	}

	myselfCount := 0
	masterUsersByID := make(map[int64]model.User, len(masterUsers))
	for _, u := range masterUsers {
		masterUsersByID[u.ID] = u
		if u.IsMyself {
			myselfCount++
		}
	}
	if myselfCount != 1 {
		return apperror.InvariantViolated("master dataset must have exactly one myself user, found %d", myselfCount)
	}
	slaveNameByID := make(map[int64]string, len(slaveUsers))
	for _, u := range slaveUsers {
		slaveNameByID[u.ID] = u.PrettyName()
	}

	userMap := make(map[int64]int64, len(in.Users)) // slave user id -> master user id
	for _, r := range in.Users {
		if r.Drop {
			continue
		}
		if _, ok := masterUsersByID[r.MasterUserID]; !ok {
			return apperror.InvariantViolated("user resolution targets unknown master user %d", r.MasterUserID)
		}
		userMap[r.SlaveUserID] = r.MasterUserID
	}

	newDS := model.Dataset{UUID: uuid.New(), Alias: in.MasterDataset.Alias + " (merged)", Root: "merged"}
	if err := dest.InsertDataset(newDS); err != nil {
		return err
	}
	for _, u := range masterUsers {
		u.DatasetUUID = newDS.UUID
		if err := dest.InsertUser(u); err != nil {
			return err
		}
	}

	masterRoot := in.MasterStore.DatasetRoot(in.MasterDataset.Root)
	slaveRoot := in.SlaveStore.DatasetRoot(in.SlaveDataset.Root)

	remapFromSlave := func(m model.Message) (model.Message, error) {
		masterID, ok := userMap[m.FromUserID]
		if !ok {
			return m, apperror.InvariantViolated("no user resolution for slave user %d", m.FromUserID)
		}
		m.FromUserID = masterID
		if m.BodyKind == model.BodyService && m.Service != nil && len(m.Service.MemberNames) > 0 {
			names := make([]string, len(m.Service.MemberNames))
			for i, n := range m.Service.MemberNames {
				names[i] = n
				for sid, name := range slaveNameByID {
					if name != n {
						continue
					}
					if mid, ok := userMap[sid]; ok {
						if mu, ok := masterUsersByID[mid]; ok {
							names[i] = mu.PrettyName()
						}
					}
					break
				}
			}
			svc := *m.Service
			svc.MemberNames = names
			m.Service = &svc
		}
		return m, nil
	}

	var maxMasterChatID int64
	for _, cd := range in.Chats {
		if cd.MasterChat != nil && cd.MasterChat.ID > maxMasterChatID {
			maxMasterChatID = cd.MasterChat.ID
		}
	}
	nextChatID := maxMasterChatID + 1

	personalName := func(chat model.Chat, fromSlave bool) string {
		for _, uid := range chat.MemberIDs {
			if fromSlave {
				masterID, ok := userMap[uid]
				if !ok {
					continue
				}
				if mu, ok := masterUsersByID[masterID]; ok && !mu.IsMyself {
					return mu.PrettyName()
				}
			} else if mu, ok := masterUsersByID[uid]; ok && !mu.IsMyself {
				return mu.PrettyName()
			}
		}
		return chat.Name
	}

	for _, cd := range in.Chats {
		switch cd.Action {
		case ChatDontAdd:
			continue

		case ChatKeep:
			mc := *cd.MasterChat
			newChat := mc
			newChat.DatasetUUID = newDS.UUID
			if newChat.Type == model.ChatPersonal {
				newChat.Name = personalName(mc, false)
			}
			if err := dest.InsertChat(masterRoot, newChat); err != nil {
				return err
			}
			if err := streamWholeChat(ctx, in.MasterStore, in.MasterDataset.UUID, mc.ID, batchSize, func(batch []model.Message) error {
				return dest.InsertMessages(masterRoot, newChat, batch)
			}); err != nil {
				return err
			}

		case ChatAdd:
			sc := *cd.SlaveChat
			newChat := sc
			newChat.DatasetUUID = newDS.UUID
			newChat.ID = nextChatID
			nextChatID++
			newChat.MemberIDs = remapMemberIDs(sc.MemberIDs, userMap)
			if newChat.Type == model.ChatPersonal {
				newChat.Name = personalName(sc, true)
			}
			if err := dest.InsertChat(slaveRoot, newChat); err != nil {
				return err
			}
			if err := streamWholeChat(ctx, in.SlaveStore, in.SlaveDataset.UUID, sc.ID, batchSize, func(batch []model.Message) error {
				remapped := make([]model.Message, len(batch))
				for i, m := range batch {
					rm, err := remapFromSlave(m)
					if err != nil {
						return err
					}
					remapped[i] = rm
				}
				return dest.InsertMessages(slaveRoot, newChat, remapped)
			}); err != nil {
				return err
			}

		case ChatCombine:
			mc := *cd.MasterChat
			newChat := mc
			newChat.DatasetUUID = newDS.UUID
			if newChat.Type == model.ChatPersonal {
				newChat.Name = personalName(mc, false)
			}
			if err := dest.InsertChat(masterRoot, newChat); err != nil {
				return err
			}
			if err := combineChat(ctx, dest, in, cd, newChat, masterRoot, slaveRoot, remapFromSlave, batchSize); err != nil {
				return err
			}

		default:
			return apperror.InvariantViolated("unknown chat action %q", cd.Action)
		}
	}

	return nil
}

func remapMemberIDs(ids []int64, userMap map[int64]int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if mapped, ok := userMap[id]; ok {
			out = append(out, mapped)
		}
	}
	return out
}

func combineChat(
	ctx context.Context,
	dest *store.Store,
	in Input,
	cd ChatDecision,
	newChat model.Chat,
	masterRoot, slaveRoot string,
	remapFromSlave func(model.Message) (model.Message, error),
	batchSize int,
) error {
	for _, rd := range cd.Ranges {
		seg := rd.Segment
		switch rd.Action {
		case RangeRetain, RangeDontReplace:
			if seg.MasterCount == 0 {
				continue
			}
			if err := streamRange(ctx, in.MasterStore, in.MasterDataset.UUID, cd.MasterChat.ID, seg.MasterFirstID, seg.MasterLastID, batchSize, func(batch []model.Message) error {
				return dest.InsertMessages(masterRoot, newChat, batch)
			}); err != nil {
				return err
			}

		case RangeAdd, RangeReplace:
			if seg.SlaveCount == 0 {
				continue
			}
			if err := streamRange(ctx, in.SlaveStore, in.SlaveDataset.UUID, cd.SlaveChat.ID, seg.SlaveFirstID, seg.SlaveLastID, batchSize, func(batch []model.Message) error {
				remapped := make([]model.Message, len(batch))
				for i, m := range batch {
					rm, err := remapFromSlave(m)
					if err != nil {
						return err
					}
					remapped[i] = rm
				}
				return dest.InsertMessages(slaveRoot, newChat, remapped)
			}); err != nil {
				return err
			}

		case RangeDontAdd:
			continue

		case RangeMatch:
			if err := combineMatchRange(dest, in, cd, newChat, masterRoot, slaveRoot, seg, remapFromSlave); err != nil {
				return err
			}

		default:
			return apperror.InvariantViolated("unknown range action %q", rd.Action)
		}
	}
	return nil
}

// combineMatchRange resolves a Match segment per spec.md §4.5: walk the
// master and slave ranges in parallel, and for each corresponding pair keep
// whichever side has more existing media files attached (ties favor master).
// Consecutive winners on the same side are grouped into a single insert call.
// Unlike streamRange, this reads both full ranges at once via MessagesSlice:
// positional pairing needs random access to both sides together, and a Match
// range (by construction, pairs the Merger already judged equivalent) is not
// expected to be large enough to matter.
func combineMatchRange(
	dest *store.Store,
	in Input,
	cd ChatDecision,
	newChat model.Chat,
	masterRoot, slaveRoot string,
	seg merge.Segment,
	remapFromSlave func(model.Message) (model.Message, error),
) error {
	if seg.MasterCount == 0 {
		return nil
	}
	masterMsgs, err := collectRange(in.MasterStore, in.MasterDataset.UUID, cd.MasterChat.ID, seg.MasterFirstID, seg.MasterLastID)
	if err != nil {
		return err
	}
	slaveMsgs, err := collectRange(in.SlaveStore, in.SlaveDataset.UUID, cd.SlaveChat.ID, seg.SlaveFirstID, seg.SlaveLastID)
	if err != nil {
		return err
	}
	if len(masterMsgs) != len(slaveMsgs) {
		return apperror.InvariantViolated(
			"match range length mismatch: master has %d, slave has %d", len(masterMsgs), len(slaveMsgs))
	}

	var group []model.Message
	groupSide := ""
	groupRoot := ""
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		err := dest.InsertMessages(groupRoot, newChat, group)
		group = nil
		return err
	}

	for i := range masterMsgs {
		winnerSide, winner := "master", masterMsgs[i]
		if mediaCount(slaveMsgs[i]) > mediaCount(masterMsgs[i]) {
			winnerSide, winner = "slave", slaveMsgs[i]
		}
		if winnerSide != groupSide {
			if err := flush(); err != nil {
				return err
			}
			groupSide = winnerSide
			if winnerSide == "master" {
				groupRoot = masterRoot
			} else {
				groupRoot = slaveRoot
			}
		}
		if winnerSide == "slave" {
			rm, err := remapFromSlave(winner)
			if err != nil {
				return err
			}
			winner = rm
		}
		group = append(group, winner)
	}
	return flush()
}
