package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/runforge/corectl/pkg/chainaudit"
)

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: runctl audit <verify|health|is-valid> [flags]")
		return 2
	}
	switch args[0] {
	case "verify":
		return runAuditVerify(args[1:], stdout, stderr)
	case "health":
		return runAuditHealth(args[1:], stdout, stderr)
	case "is-valid":
		return runAuditIsValid(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown audit subcommand: %s\n", args[0])
		return 2
	}
}

type auditFlags struct {
	tenant           string
	entriesPath      string
	startSequence    uint64
	endSequence      uint64
	hasEndSequence   bool
	maxEntries       int
	verifyTimestamps bool
	jsonOutput       bool
}

func parseAuditFlags(name string, args []string, stderr io.Writer) (auditFlags, *flag.FlagSet, error) {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var f auditFlags
	var endSequence int64
	cmd.StringVar(&f.tenant, "tenant", "", "Tenant ID to verify (REQUIRED)")
	cmd.StringVar(&f.entriesPath, "entries", "", "Path to a JSON array of chain entries (REQUIRED)")
	cmd.Uint64Var(&f.startSequence, "start-sequence", 0, "First sequence number in the verification window")
	cmd.Int64Var(&endSequence, "end-sequence", -1, "Last sequence number in the verification window (-1 = unbounded)")
	cmd.IntVar(&f.maxEntries, "max-entries", 0, "Maximum entries to verify (0 = unbounded)")
	cmd.BoolVar(&f.verifyTimestamps, "verify-timestamps", true, "Flag entries whose timestamp regresses")
	cmd.BoolVar(&f.jsonOutput, "json", false, "Output the verification report as JSON")

	if err := cmd.Parse(args); err != nil {
		return auditFlags{}, cmd, err
	}
	if endSequence >= 0 {
		f.endSequence = uint64(endSequence)
		f.hasEndSequence = true
	}
	if f.tenant == "" || f.entriesPath == "" {
		return auditFlags{}, cmd, fmt.Errorf("--tenant and --entries are required")
	}
	return f, cmd, nil
}

func loadEntries(path string) ([]chainaudit.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entries file: %w", err)
	}
	var entries []chainaudit.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse entries file: %w", err)
	}
	return entries, nil
}

func runAuditVerify(args []string, stdout, stderr io.Writer) int {
	f, _, err := parseAuditFlags("audit verify", args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := loadEntries(f.entriesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report := chainaudit.Verify(f.tenant, entries, chainaudit.VerifyOptions{
		StartSequence:    f.startSequence,
		EndSequence:      f.endSequence,
		HasEndSequence:   f.hasEndSequence,
		MaxEntries:       f.maxEntries,
		VerifyTimestamps: f.verifyTimestamps,
	}, time.Now())

	if f.jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		if report.Valid {
			_, _ = fmt.Fprintf(stdout, "chain verified: tenant=%s entries=%d\n", f.tenant, report.Stats.EntriesVerified)
		} else {
			_, _ = fmt.Fprintf(stdout, "chain verification FAILED: tenant=%s\n", f.tenant)
			for _, issue := range report.Issues {
				_, _ = fmt.Fprintf(stdout, "  - [%s] %s (sequence %d): %s\n", issue.Severity, issue.Type, issue.Sequence, issue.Detail)
			}
		}
	}

	if !report.Valid {
		return 1
	}
	return 0
}

func runAuditHealth(args []string, stdout, stderr io.Writer) int {
	f, _, err := parseAuditFlags("audit health", args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := loadEntries(f.entriesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report := chainaudit.GetChainHealth(f.tenant, entries, time.Now())
	if f.jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintf(stdout, "%s\n", report.Summary)
		_, _ = fmt.Fprintf(stdout, "continuity: %.1f%%, gaps: %d, algorithms: %v\n",
			report.Stats.ContinuityPercent, report.Stats.GapsDetected, report.Stats.AlgorithmsUsed)
	}
	if !report.Valid {
		return 1
	}
	return 0
}

func runAuditIsValid(args []string, stdout, stderr io.Writer) int {
	f, _, err := parseAuditFlags("audit is-valid", args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := loadEntries(f.entriesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	valid := chainaudit.IsChainValid(f.tenant, entries, time.Now())
	if f.jsonOutput {
		data, _ := json.MarshalIndent(map[string]bool{"valid": valid}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		_, _ = fmt.Fprintln(stdout, valid)
	}
	if !valid {
		return 1
	}
	return 0
}
