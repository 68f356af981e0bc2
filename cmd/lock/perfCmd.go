package lock

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/mclock/cmd/util"
	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for mclock servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfSessionPrefix = "__perf"
	perfNumThreads    = 10
	perfSkip          = make([]string, 0)

	// perfSessions counts the sessions handed out to benchmark goroutines
	perfSessions atomic.Uint64
	// perfResources hands out resource ids that never collide
	perfResources atomic.Uint64
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. acquire-release,list)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for mclock servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	// every test session is released when the run ends, even if a benchmark leaked locks
	defer releasePerfSessions()

	acquireReleaseResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("acquire-release") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			owner := nextOwner()
			for pb.Next() {
				txID, err := rpcLockMgr.Acquire([]lockmgr.LockRecord{writeRecord(owner, perfResources.Add(1))})
				if err != nil {
					log.Printf("(acquire-release) - error acquiring lock: %v\n", err)
					continue
				}
				if err := rpcLockMgr.Release([]uint32{txID}, owner); err != nil {
					log.Printf("(acquire-release) - error releasing lock: %v\n", err)
				}
			}
		})
	})

	results["acquire-release"] = acquireReleaseResult
	printResult("acquire-release", acquireReleaseResult)

	sharedReadResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("shared-read") {
			return
		}

		// all goroutines read the same resource
		resource := perfResources.Add(1)

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			owner := nextOwner()
			for pb.Next() {
				record := writeRecord(owner, resource)
				record.LockType = lockmgr.LockTypeRead
				txID, err := rpcLockMgr.Acquire([]lockmgr.LockRecord{record})
				if err != nil {
					log.Printf("(shared-read) - error acquiring lock: %v\n", err)
					continue
				}
				if err := rpcLockMgr.Release([]uint32{txID}, owner); err != nil {
					log.Printf("(shared-read) - error releasing lock: %v\n", err)
				}
			}
		})
	})

	results["shared-read"] = sharedReadResult
	printResult("shared-read", sharedReadResult)

	conflictResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("conflict") {
			return
		}

		// hold a write lock that every benchmark request collides with
		holder := nextOwner()
		resource := perfResources.Add(1)
		txID, err := rpcLockMgr.Acquire([]lockmgr.LockRecord{writeRecord(holder, resource)})
		if err != nil {
			log.Printf("(conflict) - error acquiring lock: %v\n", err)
			return
		}

		// cleanup
		b.Cleanup(func() {
			if err := rpcLockMgr.Release([]uint32{txID}, holder); err != nil {
				log.Printf("(conflict) - error releasing lock: %v\n", err)
			}
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			owner := nextOwner()
			for pb.Next() {
				_, err := rpcLockMgr.Acquire([]lockmgr.LockRecord{writeRecord(owner, resource)})
				if lockmgr.CodeOf(err) != lockmgr.RetCConflictWithTable {
					log.Printf("(conflict) - expected a conflict, got: %v\n", err)
				}
			}
		})
	})

	results["conflict"] = conflictResult
	printResult("conflict", conflictResult)

	listResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("list") {
			return
		}

		// give the listed session a few transactions
		owner := nextOwner()
		for i := 0; i < 10; i++ {
			if _, err := rpcLockMgr.Acquire([]lockmgr.LockRecord{writeRecord(owner, perfResources.Add(1))}); err != nil {
				log.Printf("(list) - error acquiring lock: %v\n", err)
			}
		}

		// cleanup
		b.Cleanup(func() {
			if _, err := rpcLockMgr.ReleaseBySession(owner.SessionID); err != nil {
				log.Printf("(list) - error releasing session: %v\n", err)
			}
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := rpcLockMgr.List([]string{owner.SessionID}); err != nil {
					log.Printf("(list) - error listing transactions: %v\n", err)
				}
			}
		})
	})

	results["list"] = listResult
	printResult("list", listResult)

	// Write results to CSV if path is provided
	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", csvPath)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// shouldSkip checks if a test should be skipped
func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// nextOwner returns a fresh owner for one benchmark goroutine
func nextOwner() lockmgr.Owner {
	n := perfSessions.Add(1)
	return lockmgr.Owner{
		SessionID: fmt.Sprintf("%s-%d", perfSessionPrefix, n),
		HMCID:     fmt.Sprintf("%s-hmc-%d", perfSessionPrefix, n),
	}
}

// writeRecord returns a write lock on exactly one resource
func writeRecord(owner lockmgr.Owner, resource uint64) lockmgr.LockRecord {
	return lockmgr.LockRecord{
		SessionID:  owner.SessionID,
		HMCID:      owner.HMCID,
		LockType:   lockmgr.LockTypeWrite,
		ResourceID: resource,
		Segments: []lockmgr.Segment{
			{Flag: lockmgr.FlagDontLock, Length: 4},
			{Flag: lockmgr.FlagDontLock, Length: 4},
		},
	}
}

// releasePerfSessions releases the locks of every session used by the run
func releasePerfSessions() {
	for n := uint64(1); n <= perfSessions.Load(); n++ {
		session := fmt.Sprintf("%s-%d", perfSessionPrefix, n)
		if _, err := rpcLockMgr.ReleaseBySession(session); err != nil {
			log.Printf("error releasing session %s: %v\n", session, err)
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in a stable order
	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	slices.Sort(tests)

	for _, test := range tests {
		result := results[test]
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
