package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagToken   string
	flagContext string
	flagOutput  string
	flagVerbose bool

	// activeContext is the context selected by --context, CONSOLE_CONTEXT
	// or current-context. Nil when none is configured.
	activeContext *ContextDetail
)

var rootCmd = &cobra.Command{
	Use:   "console-admin",
	Short: "Learning platform admin console CLI",
	Long: `console-admin is a kubectl-style CLI for the admin console API.

It lists the role hierarchy, submits bulk user operations and follows
their progress.

Use "console-admin config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Interrupts cancel in-flight requests and
// --wait polling.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: CONSOLE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Override access token (env: CONSOLE_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: CONSOLE_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, wide, json, yaml (default from context)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clusterInfoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(bulkCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("CONSOLE_API_URL")
	}
	if flagToken == "" {
		flagToken = os.Getenv("CONSOLE_TOKEN")
	}

	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("CONSOLE_CONTEXT")
	}
	detail, err := resolveContext(ctxName)
	if err != nil {
		if flagVerbose {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		return
	}
	activeContext = detail

	if flagAPIURL == "" {
		flagAPIURL = detail.APIURL
	}
	if flagToken == "" {
		token, err := detail.accessToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		flagToken = token
	}
}

// resolveContext returns the named context, or the current one when name
// is empty.
func resolveContext(name string) (*ContextDetail, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = cfg.CurrentContext
	}
	if name == "" {
		return nil, errors.New("no current context set")
	}
	nc := cfg.GetContext(name)
	if nc == nil {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return &nc.Context, nil
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, CONSOLE_API_URL, or 'console-admin config set-context'")
		os.Exit(1)
	}
	if flagToken == "" {
		fmt.Fprintln(os.Stderr, "Error: access token not configured. Use --token, CONSOLE_TOKEN, or 'console-admin config set-context'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagToken, flagVerbose)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("console-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var clusterInfoCmd = &cobra.Command{
	Use:   "cluster-info",
	Short: "Display API connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := mustClient()
		data, err := client.Get(cmd.Context(), "/ready")
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		var resp ReadyResponse
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), outputFor(cmd), resp, func(w io.Writer) {
			fmt.Fprintf(w, "Admin Console API\n")
			fmt.Fprintf(w, "  API URL:  %s\n", flagAPIURL)
			fmt.Fprintf(w, "  Status:   %s\n", resp.Status)
			if len(resp.Checks) > 0 {
				t := newTable(w, "CHECK", "STATUS", "ERROR")
				for name, c := range resp.Checks {
					t.row(name, c.Status, dash(c.Error))
				}
				t.flush()
			}
		})
	},
}
