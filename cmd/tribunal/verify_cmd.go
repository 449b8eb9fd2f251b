package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Soulfra/soulfra-sub004/pkg/report"
)

// runVerifyCmd implements `tribunal verify`: offline re-validation of a
// persisted proof report. No network access.
//
// Exit codes:
//
//	0 = verification passed
//	2 = chain invalid (tamper evidence)
//	3 = unreadable report or other failure
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path       string
		jsonOutput bool
	)
	cmd.StringVar(&path, "report", "", "Path to tribunal-proof-<session>.json (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	if err := cmd.Parse(args); err != nil {
		return 3
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --report is required")
		return 3
	}

	vr, err := report.VerifyFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot verify report: %v\n", err)
		return 3
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(vr, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		for _, c := range vr.Checks {
			mark := "PASS"
			detail := c.Detail
			if !c.Pass {
				mark = "FAIL"
				detail = c.Reason
			}
			_, _ = fmt.Fprintf(stdout, "  [%s] %-18s %s\n", mark, c.Name, detail)
		}
		_, _ = fmt.Fprintln(stdout, vr.Summary)
	}

	switch {
	case vr.Verified:
		return 0
	case vr.ChainInvalid:
		return 2
	default:
		return 3
	}
}
