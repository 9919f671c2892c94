package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/audit"
	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/provider"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for promstack.

Besides commands and flags, the scripts complete provider platforms,
output drivers, report formats, audit levels and rule IDs, and YAML files
for --project and --policy.

Bash:
  $ source <(promstack completion bash)

Zsh:
  $ promstack completion zsh > "${fpath[1]}/_promstack"

Fish:
  $ promstack completion fish > ~/.config/fish/completions/promstack.fish

PowerShell:
  PS> promstack completion powershell | Out-String | Invoke-Expression
`,
		// Override parent PersistentPreRunE: completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// registerFlagCompletions attaches value completions to the flags of root
// and its subcommands. Flags a command does not define are skipped.
func registerFlagCompletions(root *cobra.Command) {
	fixed := map[string][]string{
		"log-level":      {config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError},
		"log-format":     {config.LogFormatText, config.LogFormatJSON},
		"driver":         {config.DriverDirectory, config.DriverPrint},
		"fail-on":        {"critical", "high", "medium", "low", "info"},
		"security-level": {"none", "baseline", "restricted"},
	}

	formats := map[string][]string{
		"inspect": {"table", "json", "yaml"},
		"diff":    {"unified", "summary", "json"},
		"audit":   {"table", "json", "sarif"},
	}

	_ = root.RegisterFlagCompletionFunc("provider", completeProvider)

	for name, values := range fixed {
		if root.PersistentFlags().Lookup(name) != nil {
			_ = root.RegisterFlagCompletionFunc(name, fixedCompletion(values))
		}
	}

	for _, cmd := range root.Commands() {
		for name, values := range fixed {
			if cmd.Flags().Lookup(name) != nil {
				_ = cmd.RegisterFlagCompletionFunc(name, fixedCompletion(values))
			}
		}

		if values, ok := formats[cmd.Name()]; ok {
			_ = cmd.RegisterFlagCompletionFunc("format", fixedCompletion(values))
		}

		for _, name := range []string{"project", "policy"} {
			if cmd.Flags().Lookup(name) != nil {
				_ = cmd.MarkFlagFilename(name, "yaml", "yml")
			}
		}

		if cmd.Flags().Lookup("ignore") != nil {
			_ = cmd.RegisterFlagCompletionFunc("ignore", completeRuleIDs)
		}
	}
}

func fixedCompletion(values []string) cobra.CompletionFunc {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeProvider offers "platform/" for every well-known platform. The
// service part is free-form.
func completeProvider(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if strings.Contains(toComplete, "/") {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var out []string

	for _, p := range provider.Platforms() {
		if strings.HasPrefix(p, strings.ToLower(toComplete)) {
			out = append(out, p+"/")
		}
	}

	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completeRuleIDs offers the built-in rule IDs not yet listed in the
// comma-separated value.
func completeRuleIDs(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	done := strings.Split(toComplete, ",")
	prefix := strings.Join(done[:len(done)-1], ",")
	current := strings.ToUpper(done[len(done)-1])

	used := make(map[string]bool, len(done))
	for _, id := range done[:len(done)-1] {
		used[strings.ToUpper(id)] = true
	}

	var out []string

	for _, id := range audit.RuleIDs() {
		if used[id] || !strings.HasPrefix(id, current) {
			continue
		}

		if prefix != "" {
			id = prefix + "," + id
		}

		out = append(out, id)
	}

	return out, cobra.ShellCompDirectiveNoFileComp
}
