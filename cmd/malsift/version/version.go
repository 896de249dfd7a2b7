package version

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexverde/malsift/internal/buildinfo"
)

var (
	flagShort bool
	flagJSON  bool
)

// buildDetails is the --json diagnostic payload.
type buildDetails struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	BuiltBy   string `json:"built_by,omitempty"`
	Go        string `json:"go"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
	Timestamp string `json:"timestamp"`
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagShort || !flagJSON {
			// Exactly one line on the default path.
			_, err := fmt.Fprintf(os.Stdout, "malsift %s\n", buildinfo.Summary())
			return err
		}

		// Diagnostic object on stdout, human friendly line on stderr.
		_, _ = fmt.Fprintf(os.Stderr, "malsift version: %s\n", buildinfo.Summary())
		out, err := json.MarshalIndent(buildDetails{
			Version:   buildinfo.Version,
			Commit:    buildinfo.Commit,
			Date:      buildinfo.Date,
			BuiltBy:   buildinfo.BuiltBy,
			Go:        runtime.Version(),
			GoOS:      runtime.GOOS,
			GoArch:    runtime.GOARCH,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(out))
		return err
	},
}

func init() {
	VersionCmd.Flags().BoolVar(&flagShort, "short", false, "Print only the version string")
	VersionCmd.Flags().BoolVar(&flagJSON, "json", false, "Print detailed JSON version info")
}
