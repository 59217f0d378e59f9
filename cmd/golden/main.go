// golden is gcpp's test-suite runner: drives a target preprocessor
// binary (and, when present on PATH, a system reference preprocessor)
// over a set of .c/.h test files, compares their emitted token text,
// and can cache results as golden JSON fixtures for offline comparison
// when no reference is available. Adapted from the teacher compiler's
// cmd/gtest/main.go compile-and-run harness: preprocessing has no
// runtime phase, so the per-test-case argv/stdin probing collapses
// into a single execution per file, but the concurrency model,
// content-hash deduplication of identical test files, and go-cmp
// diffing are kept as-is.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

// Execution is one preprocessor invocation's captured result.
type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// FileTestResult is one test file's PASS/FAIL/SKIP/ERROR verdict.
type FileTestResult struct {
	File      string     `json:"file"`
	Status    string     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Diff      string     `json:"diff,omitempty"`
	Reference *Execution `json:"reference,omitempty"`
	Target    *Execution `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	refCompiler    = flag.String("ref-compiler", "cpp", "Path to a reference preprocessor (e.g. system cpp or gcc -E).")
	refArgs        = flag.String("ref-args", "-P -nostdinc", "Arguments for the reference preprocessor (space-separated).")
	targetCompiler = flag.String("target-compiler", "./gcpp", "Path to the gcpp binary to test.")
	targetArgs     = flag.String("target-args", "", "Arguments for the target preprocessor (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "testdata/*.c", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each invocation.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	useCache       = flag.Bool("cached", false, "Use cached golden files if available.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	ignoreLines    = flag.String("ignore-lines", "", "Comma-separated substrings to ignore during output comparison.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "golden-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden)
		return
	}
	handleRunTestSuite()
}

func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(sourceFile string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	targetResult := run(*targetCompiler, strings.Fields(*targetArgs), sourceFile)

	jsonData, err := json.MarshalIndent(targetResult, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite() {
	_, err := exec.LookPath(*refCompiler)
	refFound := err == nil
	if !refFound && !*useCache {
		log.Printf("%s[WARN]%s Reference preprocessor '%s' not found. Will rely on golden files. Use --cached to suppress this warning.\n", cYellow, cNone, *refCompiler)
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, refFound)
			}
		}()
	}

	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool { return allResults[i].File < allResults[j].File })

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)

	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file string, refFound bool) *FileTestResult {
	goldenFile := getJSONPath(file)
	_, err := os.Stat(goldenFile)
	hasGolden := err == nil

	if *useCache && hasGolden {
		return testWithGoldenFile(file, goldenFile)
	}
	if refFound {
		return testWithReference(file)
	}
	if hasGolden {
		log.Printf("[%s] No reference preprocessor, falling back to golden file: %s", file, goldenFile)
		return testWithGoldenFile(file, goldenFile)
	}
	return &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Reference preprocessor '%s' not found and no golden file exists", *refCompiler)}
}

func testWithGoldenFile(file, goldenFile string) *FileTestResult {
	goldenData, err := os.ReadFile(goldenFile)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden Execution
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}
	target := run(*targetCompiler, strings.Fields(*targetArgs), file)
	return compareResults(file, &golden, target)
}

func testWithReference(file string) *FileTestResult {
	var ref, target *Execution
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); ref = run(*refCompiler, strings.Fields(*refArgs), file) }()
	go func() { defer wg.Done(); target = run(*targetCompiler, strings.Fields(*targetArgs), file) }()
	wg.Wait()
	return compareResults(file, ref, target)
}

func compareResults(file string, ref, target *Execution) *FileTestResult {
	if ref.ExitCode != 0 && target.ExitCode != 0 {
		return &FileTestResult{File: file, Status: "PASS", Message: "Both preprocessors rejected the input as expected", Reference: ref, Target: target}
	}
	if ref.ExitCode == 0 && target.ExitCode != 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Target failed, but reference succeeded", Diff: fmt.Sprintf("Target STDERR:\n%s", target.Stderr), Reference: ref, Target: target}
	}
	if ref.ExitCode != 0 && target.ExitCode == 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Target succeeded, but reference failed", Diff: fmt.Sprintf("Reference STDERR:\n%s", ref.Stderr), Reference: ref, Target: target}
	}

	ignored := []string{}
	if *ignoreLines != "" {
		ignored = strings.Split(*ignoreLines, ",")
	}
	refOut := normalize(filterOutput(ref.Stdout, ignored))
	targetOut := normalize(filterOutput(target.Stdout, ignored))

	if refOut != targetOut {
		return &FileTestResult{
			File: file, Status: "FAIL", Message: "Preprocessed output mismatch",
			Diff: cmp.Diff(refOut, targetOut), Reference: ref, Target: target,
		}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Output matches", Reference: ref, Target: target}
}

// normalize collapses whitespace runs, since the reference
// preprocessor and gcpp aren't expected to agree on exact inter-token
// spacing — only on the resulting token sequence.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func run(compiler string, args []string, file string) *Execution {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, compiler, append(append([]string{}, args...), file)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	duration := time.Since(start)

	result := &Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: duration}
	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
	} else if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -2
			result.Stderr += "\nExecution error: " + err.Error()
		}
	}
	return result
}

func filterOutput(output string, ignoredSubstrings []string) string {
	if len(ignoredSubstrings) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		ignore := false
		for _, sub := range ignoredSubstrings {
			if sub != "" && strings.Contains(line, sub) {
				ignore = true
				break
			}
		}
		if !ignore {
			filtered = append(filtered, line)
		}
	}
	return strings.Join(filtered, "\n")
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)
		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
		if *verbose && result.Target != nil {
			fmt.Printf("    target: %s\n", formatDuration(result.Target.Duration))
		}
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			b.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			b.WriteString(cGreen)
		}
		b.WriteString("    " + line)
		b.WriteString(cNone)
		b.WriteString("\n")
	}
	return b.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}
	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}
	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
