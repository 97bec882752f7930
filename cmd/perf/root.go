package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dbwire/cmd/util"
	"github.com/ValentinKolb/dbwire/rpc/client"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	session *util.Session

	// PerfCmd measures the request throughput of a server
	PerfCmd = &cobra.Command{
		Use:                "perf",
		Short:              "Performance testing tool for the connections",
		Long:               "Runs parallel benchmarks of the version endpoint and of document reads over the configured protocol.",
		PersistentPreRunE:  setupPerf,
		PersistentPostRunE: closePerf,
		RunE:               run,
	}
	perfNumThreads = 10
	perfCollection = ""
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. version,get-missing)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "collection"
	PerfCmd.Flags().String(key, "", util.WrapString("Collection used for the document benchmarks, they are skipped if empty"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the document benchmarks"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func setupPerf(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.Setup(cmd)
	if err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfCollection = viper.GetString("collection")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func closePerf(cmd *cobra.Command, _ []string) error {
	return session.Close(cmd.OutOrStdout())
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dbwire connections")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(session.Config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	c := session.Client
	ctx := context.Background()

	versionResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("version") {
			return
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := c.Version(ctx, false); err != nil {
					log.Printf("(version) - error: %v\n", err)
				}
			}
		})
	})

	results["version"] = versionResult
	printResult("version", versionResult)

	getMissingResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get-missing") || perfCollection == "" {
			return
		}

		getKey := getKeys("missing")
		opts := client.DefaultDocumentOptions()

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				var doc map[string]any
				if _, err := c.GetDocument(ctx, perfCollection, getKey(counter), &doc, opts); err != nil {
					log.Printf("(get-missing) - error: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get-missing"] = getMissingResult
	printResult("get-missing", getMissingResult)

	existsResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("exists") || perfCollection == "" {
			return
		}

		getKey := getKeys("exists")
		opts := client.DefaultDocumentOptions()

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := c.DocumentExists(ctx, perfCollection, getKey(counter), opts); err != nil {
					log.Printf("(exists) - error: %v\n", err)
				}
				counter++
			}
		})
	})

	results["exists"] = existsResult
	printResult("exists", existsResult)

	fmt.Println()
	stats := session.Pool.Stats()
	fmt.Printf("Connections: %d live, %d created, %d discarded\n", stats.Live, stats.Created, stats.Discarded)

	// Write results to CSV if path is provided
	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, session.Config); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		fmt.Printf("Results written to %s\n", csvPath)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// getKeys returns a function that maps an index to one of perfKeySpread test keys
func getKeys(prefix string) func(int) string {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("__perf-%s-%d", prefix, i)
	}
	return func(i int) string {
		return keys[i%perfKeySpread]
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

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config common.ConnectionConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "Protocol", "Timeout", "ConnectionsPerHost", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
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
			strings.ReplaceAll(viper.GetString("endpoints"), ",", ";"),
			config.Protocol.String(),
			config.Timeout.String(),
			strconv.Itoa(config.EffectiveConnectionsPerHost()),
			strconv.Itoa(perfNumThreads),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
