package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/policy"
)

var rulesTier string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate the rule catalog",
	Long: `Inspect the rule catalog in effect (catalog.path, or the embedded default,
plus any packs in catalog.packs_dir).

Examples:
  rcguard rules list --tier block
  rcguard rules validate ./my-rules.yaml
  rcguard rules dump > ~/.rcguard/rules.yaml
  rcguard rules packs`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the loaded rules in evaluation order",
	RunE:  rulesList,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a catalog file, or the configured catalog and packs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  rulesValidate,
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the embedded default catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(policy.DefaultRulesYAML())
		return err
	},
}

var rulesPacksCmd = &cobra.Command{
	Use:   "packs",
	Short: "List the packs found in catalog.packs_dir",
	RunE:  rulesPacks,
}

func init() {
	rulesListCmd.Flags().StringVar(&rulesTier, "tier", "", "Only list one tier: self_protect, block or escalate")
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesDumpCmd)
	rulesCmd.AddCommand(rulesPacksCmd)
	rootCmd.AddCommand(rulesCmd)
}

func loadCatalog() (*policy.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return policy.Load(cfg.CatalogOptions())
}

func rulesList(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	tiers := policy.Tiers
	if rulesTier != "" {
		tiers = []policy.Tier{policy.Tier(rulesTier)}
		valid := false
		for _, t := range policy.Tiers {
			valid = valid || t == tiers[0]
		}
		if !valid {
			return fmt.Errorf("unknown tier %q", rulesTier)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Catalog %s (version %s, fingerprint %s)\n\n", cat.Source(), cat.Version(), cat.Fingerprint())
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tID\tON_UNRESOLVED\tREASON")
	for _, t := range tiers {
		for _, r := range cat.Tier(t) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Tier, r.ID, r.Unresolved(), r.Reason)
		}
	}
	return tw.Flush()
}

func rulesValidate(cmd *cobra.Command, args []string) error {
	var (
		cat *policy.Catalog
		err error
	)
	if len(args) == 1 {
		var data []byte
		data, err = os.ReadFile(args[0])
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("%w: %v", policy.ErrCatalogLoad, err)}
		}
		home, _ := os.UserHomeDir()
		cat, err = policy.Parse(data, args[0], policy.LoadOptions{Home: home})
	} else {
		cat, err = loadCatalog()
	}
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	counts := map[policy.Tier]int{}
	for _, r := range cat.Rules() {
		counts[r.Tier]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s version %s, %d rules (%d self_protect, %d block, %d escalate), %d protected paths, fingerprint %s\n",
		cat.Source(), cat.Version(), len(cat.Rules()),
		counts[policy.TierSelfProtect], counts[policy.TierBlock], counts[policy.TierEscalate],
		len(cat.ProtectedPaths()), cat.Fingerprint())
	return nil
}

func rulesPacks(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(cat.Packs()) == 0 {
		fmt.Fprintln(out, "No packs installed.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tRULES\tVERSION\tPATH")
	for _, p := range cat.Packs() {
		status := "enabled"
		if !p.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.Name, status, p.RuleCount, p.Version, p.Path)
	}
	return tw.Flush()
}
