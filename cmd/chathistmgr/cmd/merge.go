package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/frozenspider/chat-history-manager-go/internal/equivalence"
	"github.com/frozenspider/chat-history-manager-go/internal/executor"
	"github.com/frozenspider/chat-history-manager-go/internal/merge"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// maxConcurrentDiffs bounds how many chats are diffed at once: each diff
// reads both stores batch by batch, taking a store's read lock once per
// batch call, and Store's multi-reader discipline
// (internal/store.Store.withRead) has no benefit past a handful of
// concurrent readers.
const maxConcurrentDiffs = 4

var (
	mergeMasterPath   string
	mergeSlavePath    string
	mergeOutPath      string
	mergePreferMaster bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a slave archive into a master archive without duplication",
	Long: `Merge diffs every chat the master and slave archives have in common and
replays a fully-resolved merge into a brand new store at --out, leaving both
inputs untouched.

Chats are paired by (name, type); an unpaired master chat is kept as-is, an
unpaired slave chat is added as a new chat. Users are paired by matching
name/username, and the slave's "myself" user is always mapped onto the
master's own myself. An unmatched slave user is dropped; the merge fails if
any slave message it replays was written by a dropped user.

Within a paired chat, conflicting ranges default to the slave's version;
pass --prefer-master to keep the master's version instead.`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeMasterPath, "master", "", "path to the master archive's database (required)")
	mergeCmd.Flags().StringVar(&mergeSlavePath, "slave", "", "path to the slave archive's database (required)")
	mergeCmd.Flags().StringVar(&mergeOutPath, "out", "", "path for the new merged archive's database (required)")
	mergeCmd.Flags().BoolVar(&mergePreferMaster, "prefer-master", false, "keep the master's version of conflicting ranges instead of the slave's")
	_ = mergeCmd.MarkFlagRequired("master")
	_ = mergeCmd.MarkFlagRequired("slave")
	_ = mergeCmd.MarkFlagRequired("out")
}

func runMerge(cmd *cobra.Command, args []string) error {
	masterStore, err := store.Open(mergeMasterPath)
	if err != nil {
		return fmt.Errorf("open master: %w", err)
	}
	defer masterStore.Close()

	slaveStore, err := store.Open(mergeSlavePath)
	if err != nil {
		return fmt.Errorf("open slave: %w", err)
	}
	defer slaveStore.Close()

	masterDatasets, err := masterStore.Datasets()
	if err != nil {
		return fmt.Errorf("list master datasets: %w", err)
	}
	if len(masterDatasets) != 1 {
		return fmt.Errorf("master archive must have exactly one dataset, found %d", len(masterDatasets))
	}
	slaveDatasets, err := slaveStore.Datasets()
	if err != nil {
		return fmt.Errorf("list slave datasets: %w", err)
	}
	if len(slaveDatasets) != 1 {
		return fmt.Errorf("slave archive must have exactly one dataset, found %d", len(slaveDatasets))
	}
	masterDS, slaveDS := masterDatasets[0], slaveDatasets[0]

	masterUsers, err := masterStore.Users(masterDS.UUID)
	if err != nil {
		return fmt.Errorf("list master users: %w", err)
	}
	slaveUsers, err := slaveStore.Users(slaveDS.UUID)
	if err != nil {
		return fmt.Errorf("list slave users: %w", err)
	}
	userResolutions, userMap := resolveUsers(masterUsers, slaveUsers)

	masterChats, err := masterStore.Chats(masterDS.UUID)
	if err != nil {
		return fmt.Errorf("list master chats: %w", err)
	}
	slaveChats, err := slaveStore.Chats(slaveDS.UUID)
	if err != nil {
		return fmt.Errorf("list slave chats: %w", err)
	}

	masterRoot := masterStore.DatasetRoot(masterDS.Root)
	slaveRoot := slaveStore.DatasetRoot(slaveDS.Root)

	sameUser := func(a, b int64) bool {
		return a == b || userMap[b] == a
	}

	decisions, err := resolveChats(cmd.Context(), masterStore, masterDS.UUID, masterChats,
		slaveStore, slaveDS.UUID, slaveChats, masterRoot, slaveRoot, sameUser, mergePreferMaster)
	if err != nil {
		return err
	}

	dest, err := executor.Execute(cmd.Context(), executor.Input{
		NewStorePath:  mergeOutPath,
		MasterStore:   masterStore,
		MasterDataset: masterDS,
		SlaveStore:    slaveStore,
		SlaveDataset:  slaveDS,
		Chats:         decisions,
		Users:         userResolutions,
	})
	if dest != nil {
		defer dest.Close()
	}
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	fmt.Printf("Merged archive written to %s\n", mergeOutPath)
	return nil
}

// resolveUsers pairs slave users onto master users by exact name/username
// match, always mapping slave's myself onto master's myself. Unmatched
// slave users are dropped.
func resolveUsers(masterUsers, slaveUsers []model.User) ([]executor.UserResolution, map[int64]int64) {
	var masterMyselfID int64
	byKey := make(map[string]int64, len(masterUsers))
	for _, u := range masterUsers {
		if u.IsMyself {
			masterMyselfID = u.ID
		}
		byKey[userKey(u)] = u.ID
	}

	userMap := make(map[int64]int64)
	var out []executor.UserResolution
	for _, u := range slaveUsers {
		if u.IsMyself {
			out = append(out, executor.UserResolution{SlaveUserID: u.ID, MasterUserID: masterMyselfID})
			userMap[u.ID] = masterMyselfID
			continue
		}
		if masterID, ok := byKey[userKey(u)]; ok {
			out = append(out, executor.UserResolution{SlaveUserID: u.ID, MasterUserID: masterID})
			userMap[u.ID] = masterID
			continue
		}
		out = append(out, executor.UserResolution{SlaveUserID: u.ID, Drop: true})
	}
	return out, userMap
}

func userKey(u model.User) string {
	return strings.ToLower(u.FirstName + "\x00" + u.LastName + "\x00" + u.Username)
}

// chatPairKey identifies chats as "the same conversation" across the two
// archives: same type, same display name. Good enough for a default,
// non-interactive merge; ambiguous name collisions pair the first match.
func chatPairKey(c model.Chat) string {
	return string(c.Type) + "\x00" + strings.ToLower(c.Name)
}

// resolveChats pairs chats by (name, type) and runs the Merger over each
// pair, defaulting conflicting ranges to the slave's version unless
// preferMaster is set. Master chats with no slave counterpart are kept
// as-is; slave chats with no master counterpart are added as new chats.
func resolveChats(
	ctx context.Context,
	masterStore *store.Store, masterDSUUID uuid.UUID, masterChats []model.ChatWithDetails,
	slaveStore *store.Store, slaveDSUUID uuid.UUID, slaveChats []model.ChatWithDetails,
	masterRoot, slaveRoot string,
	sameUser equivalence.SameUser,
	preferMaster bool,
) ([]executor.ChatDecision, error) {
	slaveByKey := make(map[string]model.Chat, len(slaveChats))
	for _, c := range slaveChats {
		key := chatPairKey(c.Chat)
		if _, dup := slaveByKey[key]; !dup {
			slaveByKey[key] = c.Chat
		}
	}
	matchedSlave := make(map[int64]bool)

	// Each matched pair's chat Diff only reads its own chat's messages, so
	// pairs are diffed concurrently; Store's read lock (internal/store.Store)
	// allows any number of simultaneous readers.
	results := make([]*executor.ChatDecision, len(masterChats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDiffs)

	for i, mc := range masterChats {
		sc, ok := slaveByKey[chatPairKey(mc.Chat)]
		if !ok {
			results[i] = &executor.ChatDecision{Action: executor.ChatKeep, MasterChat: &mc.Chat}
			continue
		}
		matchedSlave[sc.ID] = true

		i, mc, sc := i, mc, sc
		g.Go(func() error {
			segments, err := merge.Diff(gctx,
				merge.Source{Store: masterStore, DatasetUUID: masterDSUUID, Chat: mc.Chat, Root: masterRoot},
				merge.Source{Store: slaveStore, DatasetUUID: slaveDSUUID, Chat: sc, Root: slaveRoot},
				sameUser, merge.DefaultBatchSize)
			if err != nil {
				return fmt.Errorf("diff chat %q: %w", mc.Chat.Name, err)
			}

			ranges := make([]executor.RangeDecision, len(segments))
			for i, seg := range segments {
				ranges[i] = executor.RangeDecision{Segment: seg, Action: rangeAction(seg, preferMaster)}
			}

			master, slave := mc.Chat, sc
			results[i] = &executor.ChatDecision{
				Action:     executor.ChatCombine,
				MasterChat: &master,
				SlaveChat:  &slave,
				Ranges:     ranges,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	decisions := make([]executor.ChatDecision, 0, len(masterChats)+len(slaveChats))
	for _, d := range results {
		decisions = append(decisions, *d)
	}

	for _, sc := range slaveChats {
		if matchedSlave[sc.Chat.ID] {
			continue
		}
		chat := sc.Chat
		decisions = append(decisions, executor.ChatDecision{Action: executor.ChatAdd, SlaveChat: &chat})
	}

	return decisions, nil
}

// rangeAction maps a diff segment to its default resolution: match/retain/add
// segments have one obvious outcome, conflicting replace segments resolve
// per preferMaster.
func rangeAction(seg merge.Segment, preferMaster bool) executor.RangeAction {
	switch seg.Kind {
	case merge.KindMatch:
		return executor.RangeMatch
	case merge.KindRetain:
		return executor.RangeRetain
	case merge.KindAdd:
		return executor.RangeAdd
	case merge.KindReplace:
		if preferMaster {
			return executor.RangeDontReplace
		}
		return executor.RangeReplace
	default:
		return executor.RangeDontReplace
	}
}
