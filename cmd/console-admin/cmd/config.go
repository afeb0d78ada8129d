package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configAPIVersion = "console-admin/v1"

// Config is the on-disk CLI configuration: named connections to console
// deployments and which one is in use.
type Config struct {
	APIVersion     string         `yaml:"apiVersion"`
	Kind           string         `yaml:"kind"`
	CurrentContext string         `yaml:"current-context"`
	Contexts       []NamedContext `yaml:"contexts"`
}

type NamedContext struct {
	Name    string        `yaml:"name"`
	Context ContextDetail `yaml:"context"`
}

// ContextDetail is one console deployment. Output is the default format;
// Outputs overrides it per command group, e.g. {"bulk": "json"} for
// scripted submissions against an environment whose roles are read by hand.
type ContextDetail struct {
	APIURL    string            `yaml:"api-url"`
	Token     string            `yaml:"token,omitempty"`
	TokenFile string            `yaml:"token-file,omitempty"`
	Output    string            `yaml:"output,omitempty"`
	Outputs   map[string]string `yaml:"outputs,omitempty"`
}

func (d ContextDetail) outputFor(group string) string {
	if out := d.Outputs[group]; out != "" {
		return out
	}
	return d.Output
}

// accessToken returns the inline token or the trimmed contents of
// TokenFile.
func (d ContextDetail) accessToken() (string, error) {
	if d.Token != "" || d.TokenFile == "" {
		return d.Token, nil
	}
	data, err := os.ReadFile(expandPath(d.TokenFile))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (d ContextDetail) validate() error {
	u, err := url.Parse(d.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api-url %q must be an http(s) URL", d.APIURL)
	}
	if _, err := parseOutput(d.Output); err != nil {
		return err
	}
	groups := outputGroups()
	for group, out := range d.Outputs {
		if _, ok := groups[group]; !ok {
			return fmt.Errorf("unknown command group %q in outputs", group)
		}
		if _, err := parseOutput(out); err != nil {
			return fmt.Errorf("outputs.%s: %w", group, err)
		}
	}
	return nil
}

// outputGroups is the set of top-level commands that print responses.
func outputGroups() map[string]struct{} {
	groups := make(map[string]struct{})
	for _, c := range rootCmd.Commands() {
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		groups[c.Name()] = struct{}{}
	}
	return groups
}

func (c *Config) validate() error {
	if c.APIVersion != "" && c.APIVersion != configAPIVersion {
		return fmt.Errorf("unsupported apiVersion %q (want %s)", c.APIVersion, configAPIVersion)
	}
	seen := make(map[string]bool, len(c.Contexts))
	for _, nc := range c.Contexts {
		if seen[nc.Name] {
			return fmt.Errorf("context %q is defined twice", nc.Name)
		}
		seen[nc.Name] = true
		if err := nc.Context.validate(); err != nil {
			return fmt.Errorf("context %q: %w", nc.Name, err)
		}
	}
	if c.CurrentContext != "" && !seen[c.CurrentContext] {
		return fmt.Errorf("current-context %q is not defined", c.CurrentContext)
	}
	return nil
}

func configDir() string {
	if dir := os.Getenv("CONSOLE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".console-admin")
}

func configPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

func loadConfig() (*Config, error) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath(), err)
	}
	return &cfg, nil
}

// loadOrEmptyConfig treats a missing file as an empty configuration.
func loadOrEmptyConfig() (*Config, error) {
	cfg, err := loadConfig()
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

func saveConfig(cfg *Config) error {
	cfg.APIVersion = configAPIVersion
	cfg.Kind = "Config"
	if err := cfg.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(configDir(), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0o600)
}

func (c *Config) GetContext(name string) *NamedContext {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i]
		}
	}
	return nil
}

func (c *Config) SetContext(name string, ctx ContextDetail) {
	if nc := c.GetContext(name); nc != nil {
		nc.Context = ctx
		return
	}
	c.Contexts = append(c.Contexts, NamedContext{Name: name, Context: ctx})
}

// DeleteContext removes name and clears it as the current context. It
// reports whether the context existed.
func (c *Config) DeleteContext(name string) bool {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			c.Contexts = append(c.Contexts[:i], c.Contexts[i+1:]...)
			if c.CurrentContext == name {
				c.CurrentContext = ""
			}
			return true
		}
	}
	return false
}

// Redacted returns a copy with inline tokens masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Contexts = make([]NamedContext, len(c.Contexts))
	for i, nc := range c.Contexts {
		if nc.Context.Token != "" {
			nc.Context.Token = "REDACTED"
		}
		out.Contexts[i] = nc
	}
	return &out
}

// contextUpdate holds the set-context flags that were given. Unset fields
// keep the existing value.
type contextUpdate struct {
	apiURL    *string
	token     *string
	tokenFile *string
	output    *string
	outputs   map[string]string
}

func (u contextUpdate) apply(d ContextDetail) ContextDetail {
	if u.apiURL != nil {
		d.APIURL = *u.apiURL
	}
	if u.token != nil {
		d.Token = *u.token
		d.TokenFile = ""
	}
	if u.tokenFile != nil {
		d.TokenFile = *u.tokenFile
		d.Token = ""
	}
	if u.output != nil {
		d.Output = *u.output
	}
	if len(u.outputs) > 0 {
		merged := make(map[string]string, len(d.Outputs)+len(u.outputs))
		for group, out := range d.Outputs {
			merged[group] = out
		}
		for group, out := range u.outputs {
			if out == "" {
				delete(merged, group)
				continue
			}
			merged[group] = out
		}
		d.Outputs = merged
	}
	return d
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage connections to console deployments",
}

func init() {
	useCtxCmd := &cobra.Command{
		Use:   "use-context NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			if cfg.GetContext(args[0]) == nil {
				return fmt.Errorf("context %q not found", args[0])
			}
			cfg.CurrentContext = args[0]
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
			return nil
		},
	}

	deleteCtxCmd := &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Remove a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			if !cfg.DeleteContext(args[0]) {
				return fmt.Errorf("context %q not found", args[0])
			}
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted context %q.\n", args[0])
			return nil
		},
	}

	getCtxCmd := &cobra.Command{
		Use:   "get-contexts",
		Short: "List all configured contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			return render(cmd.OutOrStdout(), outputFor(cmd), cfg.Redacted().Contexts, func(w io.Writer) {
				printContexts(w, cfg)
			})
		},
	}

	curCtxCmd := &cobra.Command{
		Use:   "current-context",
		Short: "Show the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			if cfg.CurrentContext == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "No current context set.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
			return nil
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show the full configuration with tokens redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			format := outputFor(cmd)
			if !format.structured() {
				format = outputYAML
			}
			return render(cmd.OutOrStdout(), format, cfg.Redacted(), nil)
		},
	}

	configCmd.AddCommand(newSetContextCmd(), useCtxCmd, deleteCtxCmd, getCtxCmd, curCtxCmd, viewCmd)
}

func newSetContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-context NAME",
		Short: "Create or update a context",
		Long: `Create a context, or update the given fields of an existing one.

Output defaults can be set for the whole context (--default-output) and per
command group (--group-output bulk=json,get=wide). An empty group value
removes the override.`,
		Args: cobra.ExactArgs(1),
		RunE: runSetContext,
	}
	cmd.Flags().String("api-url", "", "Console API URL")
	cmd.Flags().String("token", "", "Access token")
	cmd.Flags().String("token-file", "", "Path to a file holding the access token")
	cmd.Flags().String("default-output", "", "Default output format for this context")
	cmd.Flags().StringToString("group-output", nil, "Output format per command group (group=format)")
	return cmd
}

func runSetContext(cmd *cobra.Command, args []string) error {
	name := args[0]
	var upd contextUpdate
	for flag, dst := range map[string]**string{
		"api-url":        &upd.apiURL,
		"token":          &upd.token,
		"token-file":     &upd.tokenFile,
		"default-output": &upd.output,
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			*dst = &v
		}
	}
	if upd.token != nil && upd.tokenFile != nil {
		return errors.New("--token and --token-file are mutually exclusive")
	}
	upd.outputs, _ = cmd.Flags().GetStringToString("group-output")

	cfg, err := loadOrEmptyConfig()
	if err != nil {
		return err
	}

	var current ContextDetail
	existing := cfg.GetContext(name)
	if existing != nil {
		current = existing.Context
	} else {
		if upd.apiURL == nil {
			return errors.New("--api-url is required for a new context")
		}
		if upd.token == nil && upd.tokenFile == nil {
			return errors.New("--token or --token-file is required for a new context")
		}
	}

	cfg.SetContext(name, upd.apply(current))
	if cfg.CurrentContext == "" {
		cfg.CurrentContext = name
	}
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	if existing != nil {
		fmt.Fprintf(out, "Context %q updated.\n", name)
	} else {
		fmt.Fprintf(out, "Context %q created.\n", name)
	}
	if cfg.CurrentContext == name {
		fmt.Fprintf(out, "Current context is %q.\n", name)
	}
	return nil
}

func printContexts(w io.Writer, cfg *Config) {
	t := newTable(w, "CURRENT", "NAME", "API-URL", "AUTH", "OUTPUT")
	for _, c := range cfg.Contexts {
		current := ""
		if c.Name == cfg.CurrentContext {
			current = "*"
		}
		auth := "token"
		if c.Context.TokenFile != "" {
			auth = "file:" + c.Context.TokenFile
		}
		t.row(current, c.Name, c.Context.APIURL, auth, describeOutputs(c.Context))
	}
	t.flush()
}

// describeOutputs summarizes output defaults as "table bulk=json get=wide".
func describeOutputs(d ContextDetail) string {
	parts := []string{dash(d.Output)}
	groups := make([]string, 0, len(d.Outputs))
	for group := range d.Outputs {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		parts = append(parts, group+"="+d.Outputs[group])
	}
	return strings.Join(parts, " ")
}
