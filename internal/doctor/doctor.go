// Package doctor provides health checks for a hackseeker installation.
// Used by `hackseeker doctor` before serving.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/billing"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/config"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	// SkipUpstream skips model endpoint connectivity checks (for CI/offline).
	SkipUpstream bool
	Client       *http.Client
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check HACKSEEKER_* variables and hackseeker.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg), checkLLMKey(cfg), checkAPIKeys(cfg), checkWebSearch(cfg))
		report.Checks = append(report.Checks, checkStores(ctx, cfg)...)
		if !opts.SkipUpstream {
			report.Checks = append(report.Checks, checkUpstream(ctx, opts.Client, cfg.LLMBaseURL)...)
		}
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}
	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure the directory exists and is writable, or set HACKSEEKER_DATA_DIR",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkLLMKey(cfg *config.Config) CheckResult {
	if err := cfg.RequireLLM(); err != nil {
		return CheckResult{
			Name: "llm_key", Category: "config", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Set HACKSEEKER_LLM_API_KEY (or XAI_API_KEY)",
		}
	}
	return CheckResult{
		Name: "llm_key", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s at %s", cfg.LLMModel, cfg.LLMBaseURL),
	}
}

func checkAPIKeys(cfg *config.Config) CheckResult {
	if len(cfg.APIKeys) == 0 {
		return CheckResult{
			Name: "api_keys", Category: "config", Status: StatusWarn,
			Message: "No API keys configured, every HTTP request will be rejected",
			Fix:     "Set HACKSEEKER_API_KEYS=key:user,...",
		}
	}
	return CheckResult{
		Name: "api_keys", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%d key(s)", len(cfg.APIKeys)),
	}
}

func checkWebSearch(cfg *config.Config) CheckResult {
	if cfg.SearchURL == "" {
		return CheckResult{
			Name: "web_search", Category: "config", Status: StatusWarn,
			Message: "No web search endpoint, artifact research is off",
			Fix:     "Set HACKSEEKER_SEARCH_URL (and HACKSEEKER_SEARCH_API_KEY)",
		}
	}
	return CheckResult{
		Name: "web_search", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s, %d pages per query", cfg.SearchURL, cfg.SearchLimit),
	}
}

// checkStores opens every database, creating schemas on first run.
func checkStores(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult
	open := func(name, path string, fn func(string) (io.Closer, error)) {
		c, err := fn(path)
		if err != nil {
			results = append(results, CheckResult{
				Name: name + "_db", Category: "storage", Status: StatusFail, Message: err.Error(),
			})
			return
		}
		_ = c.Close()
		results = append(results, CheckResult{
			Name: name + "_db", Category: "storage", Status: StatusPass, Message: path + " " + fileSize(path),
		})
	}
	open("chat", cfg.ChatDBPath(), func(p string) (io.Closer, error) { return chat.NewStore(p) })
	open("pain", cfg.PainDBPath(), func(p string) (io.Closer, error) { return pain.NewStore(p) })
	open("billing", cfg.BillingDBPath(), func(p string) (io.Closer, error) { return billing.NewLedger(p, cfg.InitialCredits) })

	mem, err := memory.NewStore(cfg.MemoryDBPath())
	if err != nil {
		return append(results, CheckResult{
			Name: "memory_db", Category: "storage", Status: StatusFail, Message: err.Error(),
		})
	}
	defer mem.Close()

	count, err := mem.Count(ctx)
	if err != nil {
		return append(results, CheckResult{
			Name: "memory_db", Category: "storage", Status: StatusFail, Message: err.Error(),
		})
	}
	results = append(results, CheckResult{
		Name: "memory_db", Category: "storage", Status: StatusPass,
		Message: fmt.Sprintf("%d items, %s", count, fileSize(cfg.MemoryDBPath())),
	})
	if mem.FullText() {
		results = append(results, CheckResult{
			Name: "memory_fts5", Category: "storage", Status: StatusPass, Message: "full-text search enabled",
		})
	} else {
		results = append(results, CheckResult{
			Name: "memory_fts5", Category: "storage", Status: StatusWarn,
			Message: "SQLite built without FTS5, memory search uses LIKE matching",
			Fix:     "Build with -tags sqlite_fts5",
		})
	}
	return results
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "(size unknown)"
	}
	return fmt.Sprintf("(%.1f MB)", float64(fi.Size())/(1024*1024))
}

func checkUpstream(ctx context.Context, client *http.Client, baseURL string) []CheckResult {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	modelsURL := strings.TrimRight(baseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return []CheckResult{{
			Name: "llm_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", err),
			Fix:     "Check HACKSEEKER_LLM_BASE_URL",
		}}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL comes from operator config
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: "llm_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and HACKSEEKER_LLM_BASE_URL",
		}}
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return []CheckResult{{
			Name: "llm_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("GET %s: %d", modelsURL, resp.StatusCode),
		}}
	}
	results := []CheckResult{{
		Name: "llm_upstream", Category: "upstream", Status: StatusPass,
		Message: fmt.Sprintf("%s: %d in %dms", modelsURL, resp.StatusCode, latency.Milliseconds()),
	}}
	if latency > 2*time.Second {
		results = append(results, CheckResult{
			Name: "llm_upstream_latency", Category: "upstream", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
		})
	}
	return results
}
