package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/hexverde/malsift/internal/pipeline"
)

var threatColors = map[string]*color.Color{
	"high":   color.New(color.FgRed, color.Bold),
	"medium": color.New(color.FgYellow, color.Bold),
	"low":    color.New(color.FgGreen),
}

// Render writes the human-readable analysis report to w.
func Render(w io.Writer, meta *pipeline.RunMetadata) {
	heading := color.New(color.FgCyan, color.Bold)
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, rule)
	heading.Fprintln(w, "MALWARE ANALYSIS REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Sample: %s\n", meta.SampleName)
	fmt.Fprintf(w, "SHA256: %s\n", meta.SampleSHA256)
	fmt.Fprintf(w, "Size: %s\n", humanize.Bytes(uint64(meta.SampleSize)))
	fmt.Fprintf(w, "Session ID: %s\n", meta.SessionID)
	fmt.Fprintf(w, "Analysis Time: %.1fs\n", meta.TotalDurationSeconds)

	fmt.Fprintf(w, "\nFILE HASHES:\n%s\n", strings.Repeat("-", 15))
	labels := make([]string, 0, len(meta.FileRecords))
	for label := range meta.FileRecords {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(label), meta.FileRecords[label].SHA256)
	}

	fmt.Fprintf(w, "\nANALYSIS RESULTS:\n%s\n", strings.Repeat("-", 20))
	if meta.Payload != nil {
		fmt.Fprintf(w, "Malware DLL: %s\n", meta.Payload.Name)
		fmt.Fprintf(w, "DLL Size: %s\n", humanize.Bytes(uint64(meta.Payload.Size)))
		fmt.Fprintf(w, "DLL SHA256: %s\n", meta.Payload.SHA256)
	}
	if meta.StringsCount > 0 {
		fmt.Fprintf(w, "Strings Extracted: %s\n", humanize.Comma(int64(meta.StringsCount)))
	}
	if len(meta.URLsFound) > 0 {
		fmt.Fprintf(w, "URLs Found: %d\n", len(meta.URLsFound))
	}
	if meta.C2URL != "" {
		color.New(color.FgRed).Fprintf(w, "C&C Server: %s\n", meta.C2URL)
	}
	if meta.DownloadURL != "" {
		fmt.Fprintf(w, "Download URL: %s\n", meta.DownloadURL)
	}

	fmt.Fprintf(w, "\nTHREAT ASSESSMENT:\n%s\n", strings.Repeat("-", 20))
	levelColor, ok := threatColors[meta.ThreatLevel]
	if !ok {
		levelColor = color.New()
	}
	levelColor.Fprintf(w, "Threat Level: %s\n", strings.ToUpper(meta.ThreatLevel))
	fmt.Fprintf(w, "Malware Family: %s\n", meta.Family)

	fmt.Fprintf(w, "\nSUMMARY:\n%s\n", strings.Repeat("-", 10))
	fmt.Fprintln(w, meta.Summary)
	fmt.Fprintln(w, rule)
}
