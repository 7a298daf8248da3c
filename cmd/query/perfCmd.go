package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dQRY/cmd/util"
	"github.com/ValentinKolb/dQRY/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf [cache] [sql]",
		Short: "Performance testing tool for dQRY servers",
		Long: `Runs benchmarks with the given SELECT statement against a dQRY server:

  execute   execute the statement and close the query
  first     execute the statement with the page size and close it after the first page
  scan      execute the statement and fetch all pages
  fetch     fetch single pages of long running queries

Request latencies are recorded per benchmark and printed as percentiles.`,
		Args:    cobra.ExactArgs(2),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfSkip       = make([]string, 0)

	// latencies holds one timer per benchmark
	latencies = gometrics.NewRegistry()
)

var percentiles = []float64{0.5, 0.95, 0.99}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. execute,scan)"))
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
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, args []string) error {
	cache, sql := args[0], args[1]
	pageSize := viper.GetInt("page-size")

	fmt.Println("Performance testing tool for dQRY servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Query: %s on %s (page size %d)\n", sql, cache, pageSize)
	fmt.Println()

	// check the query once before measuring it
	page, err := rpcClient.Execute(cache, "", sql, nil, pageSize)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if !page.Last {
		if _, err := rpcClient.CloseQuery(page.QueryID); err != nil {
			return err
		}
	}

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	bench := func(name string, op func() error) {
		timer := gometrics.GetOrRegisterTimer(name, latencies)
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					start := time.Now()
					if err := op(); err != nil {
						log.Printf("(%s) - error: %v\n", name, err)
						continue
					}
					timer.UpdateSince(start)
				}
			})
		})
		results[name] = result
		printResult(name, result, timer)
	}

	bench("execute", func() error {
		page, err := rpcClient.Execute(cache, "", sql, nil, pageSize)
		if err != nil {
			return err
		}
		if !page.Last {
			_, err = rpcClient.CloseQuery(page.QueryID)
		}
		return err
	})

	bench("first", func() error {
		page, err := rpcClient.ExecuteFields(cache, sql, nil, pageSize)
		if err != nil {
			return err
		}
		if !page.Last {
			_, err = rpcClient.CloseQuery(page.QueryID)
		}
		return err
	})

	bench("scan", func() error {
		page, err := rpcClient.Execute(cache, "", sql, nil, pageSize)
		if err != nil {
			return err
		}
		return rpcClient.ForEach(page, pageSize, func(json.RawMessage) error { return nil })
	})

	// each op fetches one page of a query, a new query is started when it is exhausted
	bench("fetch", func() error {
		page, err := rpcClient.Execute(cache, "", sql, nil, 1)
		if err != nil {
			return err
		}
		for !page.Last {
			if page, err = rpcClient.Fetch(page.QueryID, 1); err != nil {
				return err
			}
		}
		return nil
	})

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	snapshot := timer.Snapshot()
	ps := snapshot.Percentiles(percentiles)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s max=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(snapshot.Max()))
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
		"P50Ns", "P95Ns", "P99Ns", "MaxNs",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport", "Threads", "PageSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	// Write test results
	for _, test := range tests {
		result := results[test]

		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		snapshot := gometrics.GetOrRegisterTimer(test, latencies).Snapshot()
		ps := snapshot.Percentiles(percentiles)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(snapshot.Max(), 10),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(viper.GetInt("page-size")),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
