package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/tbs/internal/engine"
	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
)

// printSummary writes a human readable account of report to w.
func printSummary(w io.Writer, report *engine.Report) {
	if report == nil {
		return
	}

	mode := "run"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "%s %s finished in %s\n", mode, report.RunID, report.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tCORRECT\tFILLED\tMISSING\tWRITTEN")
	for _, t := range report.Torrents {
		if !t.Loaded {
			continue
		}
		for _, f := range t.Files {
			written := humanize.Bytes(uint64(f.BytesWritten))
			if report.DryRun {
				written = "(" + humanize.Bytes(uint64(f.BytesPlanned)) + ")"
			}
			if f.Failed {
				written = "failed"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
				f.ExportPath, humanize.Bytes(uint64(f.DeclaredLength)), f.Correct, f.Filled, f.Missing, written)
		}
	}
	_ = tw.Flush()

	correct, filled, missing := report.Totals()
	fmt.Fprintf(w, "\ntorrents: %d loaded of %d\n", report.Loaded(), len(report.Torrents))
	fmt.Fprintf(w, "candidates: %s scanned, %s hashed, %s cache hits\n",
		humanize.Comma(int64(report.Candidates)), humanize.Bytes(uint64(report.BytesHashed)), humanize.Comma(int64(report.CacheHits)))
	fmt.Fprintf(w, "pieces: %s correct, %s filled, %s missing\n",
		humanize.Comma(int64(correct)), humanize.Comma(int64(filled)), humanize.Comma(int64(missing)))
	fmt.Fprintf(w, "written: %s\n", humanize.Bytes(uint64(report.BytesWritten)))

	if report.Verified {
		for _, t := range report.Torrents {
			if !t.Loaded {
				continue
			}
			status := "incomplete"
			if t.Complete() {
				status = "complete"
			}
			fmt.Fprintf(w, "verified %s: %d/%d pieces, %s\n", t.Name, t.PiecesVerified, t.Pieces, status)
		}
	}

	if len(report.Issues) == 0 {
		return
	}

	fmt.Fprintf(w, "\nissues (%d):\n", len(report.Issues))
	for _, err := range report.Issues {
		resource, _ := tbserrors.ResourceOf(err)
		fmt.Fprintf(w, "  %-22s %s: %v\n", tbserrors.KindOf(err), resource, tbserrors.Unwrap(err))
	}
}
