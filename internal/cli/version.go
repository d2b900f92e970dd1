package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd(app *App) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long: `Version prints the berth release, the commit it was built from and the
build time. Binaries built without release ldflags, such as those from
'go install', report what the Go toolchain recorded instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, _ := debug.ReadBuildInfo()
			info := resolveVersion(app.versionInfo, bi)

			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}
			fmt.Fprintf(out, "berth version %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built: %s\n", info.Date)
			fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")

	return cmd
}

// resolveVersion fills fields the linker left unset from the module and
// VCS data in bi, then falls back to "dev" and "unknown". A commit read
// from a modified checkout is marked -dirty.
func resolveVersion(info VersionInfo, bi *debug.BuildInfo) VersionInfo {
	unset := func(s string) bool { return s == "" || s == "dev" || s == "unknown" }

	var fromVCS, modified bool
	if bi != nil {
		if unset(info.Version) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if unset(info.Commit) {
					info.Commit = s.Value
					fromVCS = true
				}
			case "vcs.time":
				if unset(info.Date) {
					info.Date = s.Value
				}
			case "vcs.modified":
				modified = s.Value == "true"
			}
		}
	}

	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if fromVCS && modified {
		info.Commit += "-dirty"
	}

	if unset(info.Version) {
		info.Version = "dev"
	}
	if unset(info.Commit) {
		info.Commit = "unknown"
	}
	if unset(info.Date) {
		info.Date = "unknown"
	}
	return info
}
