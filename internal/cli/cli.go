package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RevCBH/berth/internal/config"
	"github.com/RevCBH/berth/internal/container"
)

// VersionInfo holds build-time version data
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Global flags
	verbose    bool
	configFile string
	projectDir string

	// Version information
	versionInfo VersionInfo

	// newRuntime builds the container runtime client; tests replace it
	newRuntime func(name string) (container.Runtime, error)

	// notifySignals registers with OS signal handling; off in tests
	notifySignals bool

	// logSink receives log output; defaults to stderr
	logSink io.Writer
}

// New creates a new CLI application
func New() *App {
	app := &App{
		newRuntime:    defaultRuntime,
		notifySignals: true,
		logSink:       os.Stderr,
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "berth",
		Short: "Start and stop interdependent containers",
		Long: `berth starts a set of container workloads in dependency order,
waits for each to become ready, and tears the batch down again.

Workloads are declared in berth.yaml in the project directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add persistent flags
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")
	a.rootCmd.PersistentFlags().StringVarP(&a.configFile, "file", "f", "",
		"Config file (default: berth.yaml in the project directory)")
	a.rootCmd.PersistentFlags().StringVarP(&a.projectDir, "dir", "C", ".",
		"Project directory")

	a.rootCmd.AddCommand(
		NewUpCmd(a),
		NewDownCmd(a),
		NewPlanCmd(a),
		NewStatusCmd(a),
		NewVersionCmd(a),
	)
}

// loadConfig loads the project's configuration honoring --dir and --file
func (a *App) loadConfig() (*config.Config, error) {
	return config.LoadConfig(a.projectDir, a.configFile)
}

func defaultRuntime(name string) (container.Runtime, error) {
	resolved, err := container.ResolveRuntime(name)
	if err != nil {
		return nil, err
	}
	return container.NewCLIManager(resolved), nil
}
