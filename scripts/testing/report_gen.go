// Command report_gen merges `go test -json` output with the TestPurpose /
// Scope / Expected / Test Case ID headers on test functions and writes JSON
// and Markdown reports.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/clinicflow/clinicflow/"

// TestMetadata holds info parsed from Go source comments
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// GoTestEvent represents a single event from 'go test -json'
type GoTestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// FinalTestResult is the merged result for a single test
type FinalTestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level stats
type ReportSummary struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Total       int               `json:"total"`
	Passed      int               `json:"passed"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Results     []FinalTestResult `json:"results"`
}

// categoryOrder is the section order of the Markdown report.
var categoryOrder = []string{"Reconciliation", "Access Guard", "Checkout", "Subscriptions", "Gateway", "Store", "API", "Platform", "Other"}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Test Report", "Report title")
	category := flag.String("category", "", "Only include this category")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	results, err := parseTestOutput(*inputPath, scanMetadata("."))
	if err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}
	if *category != "" {
		filtered := results[:0]
		for _, res := range results {
			if res.Annotations.Category == *category {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	summary := generateSummary(results)
	if err := writeFile(*outputJSON, mustJSON(summary)); err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}
	if err := writeFile(*outputMD, []byte(renderMarkdown(summary, *title))); err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}

	// Fail the CI step when any test failed
	if summary.Failed > 0 {
		fmt.Printf("\n❌ Test Reporting: %d tests failed. Exiting with error.\n", summary.Failed)
		os.Exit(1)
	}
}

func scanMetadata(root string) map[string]TestMetadata {
	metadataMap := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name == "vendor" || name == ".git" || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkgPath := packagePath(root, path)
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}
			meta := parseHeader(fn.Doc)
			meta.Name = fn.Name.Name
			meta.Package = pkgPath
			meta.Category = determineCategory(pkgPath)
			metadataMap[pkgPath+"."+fn.Name.Name] = meta
		}
		return nil
	})

	return metadataMap
}

func parseHeader(doc *ast.CommentGroup) TestMetadata {
	var meta TestMetadata
	if doc == nil {
		return meta
	}
	fields := map[string]*string{
		"TestPurpose:":  &meta.Purpose,
		"Scope:":        &meta.Scope,
		"Security:":     &meta.Security,
		"Expected:":     &meta.Expected,
		"Test Case ID:": &meta.TestCaseID,
	}
	for _, line := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
		for prefix, dst := range fields {
			if strings.HasPrefix(text, prefix) {
				*dst = strings.TrimSpace(strings.TrimPrefix(text, prefix))
			}
		}
	}
	return meta
}

func packagePath(root, filePath string) string {
	rel, err := filepath.Rel(root, filepath.Dir(filePath))
	if err != nil || rel == "." {
		return strings.TrimSuffix(modulePath, "/")
	}
	return modulePath + filepath.ToSlash(rel)
}

func determineCategory(pkgPath string) string {
	rel := strings.TrimPrefix(pkgPath, modulePath)
	switch {
	case strings.HasPrefix(rel, "internal/reconcile"):
		return "Reconciliation"
	case strings.HasPrefix(rel, "internal/guard"):
		return "Access Guard"
	case strings.HasPrefix(rel, "internal/checkout"):
		return "Checkout"
	case strings.HasPrefix(rel, "internal/subscription"), strings.HasPrefix(rel, "internal/tenant"):
		return "Subscriptions"
	case strings.HasPrefix(rel, "internal/gateway"):
		return "Gateway"
	case strings.HasPrefix(rel, "internal/store"):
		return "Store"
	case strings.HasPrefix(rel, "internal/transport"):
		return "API"
	case strings.HasPrefix(rel, "internal/"), strings.HasPrefix(rel, "cmd/"):
		return "Platform"
	}
	return "Other"
}

func parseTestOutput(path string, meta map[string]TestMetadata) ([]FinalTestResult, error) {
	testStates := make(map[string]*FinalTestResult)
	for key, m := range meta {
		testStates[key] = &FinalTestResult{Name: m.Name, Package: m.Package, Status: "not run", Annotations: m}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open test output: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Test == "" {
			continue
		}

		key := event.Package + "." + event.Test
		res, ok := testStates[key]
		if !ok {
			// Subtests inherit the parent's header.
			parent, _, _ := strings.Cut(event.Test, "/")
			annotations := meta[event.Package+"."+parent]
			annotations.Name = event.Test
			annotations.Package = event.Package
			if annotations.Category == "" {
				annotations.Category = determineCategory(event.Package)
			}
			res = &FinalTestResult{Name: event.Test, Package: event.Package, Annotations: annotations}
			testStates[key] = res
		}

		switch event.Action {
		case "fail":
			res.Status = "fail"
			res.Elapsed = event.Elapsed
		case "pass":
			res.Status = "pass"
			res.Elapsed = event.Elapsed
			res.Failure = ""
		case "skip":
			res.Status = "skip"
			res.Failure = ""
		case "output":
			res.Failure += event.Output
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read test output: %w", err)
	}

	list := make([]FinalTestResult, 0, len(testStates))
	for _, v := range testStates {
		list = append(list, *v)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Package != list[j].Package {
			return list[i].Package < list[j].Package
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func generateSummary(results []FinalTestResult) ReportSummary {
	summary := ReportSummary{GeneratedAt: time.Now(), Results: results}
	for _, r := range results {
		summary.Total++
		switch r.Status {
		case "pass":
			summary.Passed++
		case "fail":
			summary.Failed++
		case "skip":
			summary.Skipped++
		}
	}
	return summary
}

func renderMarkdown(summary ReportSummary, title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Clinicflow %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	status := "✅ PASSED"
	if summary.Failed > 0 {
		status = "❌ FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if summary.Total > 0 {
		rate = float64(summary.Passed) / float64(summary.Total) * 100
	}
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", summary.Total, summary.Passed, summary.Failed, summary.Skipped, rate)

	byCategory := make(map[string][]FinalTestResult)
	for _, r := range summary.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}
	for _, cat := range categoryOrder {
		tests := byCategory[cat]
		if len(tests) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", cat)
		sb.WriteString("| ID | Test Name | Status | Purpose | Security |\n")
		sb.WriteString("|----|-----------|--------|---------|----------|\n")
		for _, t := range tests {
			security := t.Annotations.Security
			if security != "" {
				security = "**" + security + "**"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				t.Annotations.TestCaseID, t.Name, statusIcon(t.Status), t.Annotations.Purpose, security)
		}
		sb.WriteString("\n")
	}

	if summary.Failed > 0 {
		sb.WriteString("## Failure Details\n\n")
		for _, t := range summary.Results {
			if t.Status == "fail" {
				fmt.Fprintf(&sb, "### %s (%s)\n```\n%s\n```\n\n", t.Name, t.Package, t.Failure)
			}
		}
	}
	return sb.String()
}

func statusIcon(status string) string {
	switch status {
	case "pass":
		return "✅"
	case "fail":
		return "❌"
	case "skip":
		return "⏭️"
	}
	return "⚪"
}

func mustJSON(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
