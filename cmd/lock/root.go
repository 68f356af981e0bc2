package lock

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/mclock/cmd/util"
	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcLockMgr lockmgr.ILockManager

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		PersistentPreRunE: setupLockClient,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if rpcLockMgr == nil {
				return nil
			}
			return rpcLockMgr.Close()
		},
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire",
		Short: "Acquire a set of locks as one transaction",
		Long: `Acquire a set of locks as one transaction. Either pass a single record through
the flags or a JSON list of records through --records, e.g.

  mclock lock acquire --session xxxxx --hmc hmc-id --type Write --resource 234 --segments LockAll:2,DontLock:4
  mclock lock acquire --records '[{"session_id":"xxxxx","hmc_id":"hmc-id","lock_type":"Read","resource_id":234,"segments":[{"flag":"DontLock","length":2},{"flag":"DontLock","length":4}]}]'`,
		Args: cobra.NoArgs,
		RunE: runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [transactionID...]",
		Short: "Release previously acquired transactions",
		Long:  "Release transactions by id. All transactions must be owned by the session and hmc given with --session and --hmc, otherwise nothing is released.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRelease,
	}

	// releaseSessionCmd represents the release-session command
	releaseSessionCmd = &cobra.Command{
		Use:   "release-session [sessionID]",
		Short: "Release every transaction of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runReleaseSession,
	}

	// listCmd represents the list command
	listCmd = &cobra.Command{
		Use:   "list [sessionID...]",
		Short: "List the transactions of one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runList,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(releaseSessionCmd)
	LockCommands.AddCommand(listCmd)
	LockCommands.AddCommand(perfTestCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().String("records", "", util.WrapString("JSON list of lock records (overrides the single record flags)"))
	acquireCmd.Flags().String("type", string(lockmgr.LockTypeWrite), util.WrapString("Lock type of the record (Read, Write)"))
	acquireCmd.Flags().Uint64("resource", 0, util.WrapString("Resource id of the record"))
	acquireCmd.Flags().String("segments", "DontLock:2,DontLock:4", util.WrapString("Segments of the record as a comma separated list of flag:length pairs"))

	// Owner flags shared by acquire and release
	for _, cmd := range []*cobra.Command{acquireCmd, releaseCmd} {
		cmd.Flags().String("session", "", util.WrapString("Session id of the lock owner"))
		cmd.Flags().String("hmc", "", util.WrapString("HMC id of the lock owner"))
	}
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the lock manager client
	rpcLockMgr, err = client.NewRPCLockMgr(
		*config,
		t,
		s,
	)

	return err
}

// runAcquire handles the acquire command
func runAcquire(_ *cobra.Command, _ []string) error {
	records, err := recordsFromFlags()
	if err != nil {
		return err
	}

	txID, err := rpcLockMgr.Acquire(records)
	if err != nil {
		return describe("failed to acquire locks", err)
	}

	fmt.Printf("acquired=true, transactionId=%d\n", txID)
	return nil
}

// runRelease handles the release command
func runRelease(_ *cobra.Command, args []string) error {
	txIDs, err := parseTransactionIDs(args)
	if err != nil {
		return err
	}

	owner := lockmgr.Owner{
		HMCID:     viper.GetString("hmc"),
		SessionID: viper.GetString("session"),
	}
	if err := rpcLockMgr.Release(txIDs, owner); err != nil {
		return describe("failed to release transactions", err)
	}

	fmt.Printf("released=%d\n", len(txIDs))
	return nil
}

// runReleaseSession handles the release-session command
func runReleaseSession(_ *cobra.Command, args []string) error {
	released, err := rpcLockMgr.ReleaseBySession(args[0])
	if err != nil {
		return describe("failed to release session", err)
	}

	fmt.Printf("session=%s, released=%d\n", args[0], released)
	return nil
}

// runList handles the list command
func runList(_ *cobra.Command, args []string) error {
	transactions, err := rpcLockMgr.List(args)
	if err != nil {
		return describe("failed to list transactions", err)
	}

	if len(transactions) == 0 {
		fmt.Println("no transactions")
		return nil
	}
	for _, tx := range transactions {
		fmt.Printf("transaction %d\n", tx.ID)
		for _, r := range tx.Records {
			fmt.Printf("  %s\n", r)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// recordsFromFlags builds the records of an acquire request
func recordsFromFlags() ([]lockmgr.LockRecord, error) {
	if raw := viper.GetString("records"); raw != "" {
		var records []lockmgr.LockRecord
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			return nil, fmt.Errorf("invalid records: %v", err)
		}
		return records, nil
	}

	segments, err := parseSegments(viper.GetString("segments"))
	if err != nil {
		return nil, err
	}

	return []lockmgr.LockRecord{{
		SessionID:  viper.GetString("session"),
		HMCID:      viper.GetString("hmc"),
		LockType:   lockmgr.LockType(viper.GetString("type")),
		ResourceID: viper.GetUint64("resource"),
		Segments:   segments,
	}}, nil
}

// parseSegments parses a list like "LockAll:2,DontLock:4". The flag
// spelling is left to the server, which validates it.
func parseSegments(s string) ([]lockmgr.Segment, error) {
	var segments []lockmgr.Segment
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		flag, length, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid segment %q (expected flag:length)", part)
		}
		n, err := strconv.ParseUint(length, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid segment length %q: %v", length, err)
		}
		segments = append(segments, lockmgr.Segment{Flag: lockmgr.LockFlag(flag), Length: uint32(n)})
	}
	return segments, nil
}

// parseTransactionIDs parses the transaction ids given as arguments
func parseTransactionIDs(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction id %q: %v", arg, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// describe adds the return code of a lock manager error to the message
func describe(msg string, err error) error {
	return fmt.Errorf("%s (code=%s): %v", msg, lockmgr.CodeOf(err), err)
}
