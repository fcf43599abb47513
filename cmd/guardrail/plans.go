package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/artpar/guardrail/config"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List configured plans",
	Long: `List the subscription plans defined in the configuration.

Plans define per-metric monthly quotas and the allowed model set.
A limit of -1 means unlimited.

Examples:
  guardrail plans
  guardrail plans --config /etc/guardrail/config.yaml`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTOKENS\tREQUESTS\tLOGS\tPROJECTS\tWORKFLOWS\tSEATS\tMODELS")
	for _, p := range cfg.ToPlans() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name,
			formatLimit(p.Limits.TokensPerMonth),
			formatLimit(p.Limits.RequestsPerMonth),
			formatLimit(p.Limits.LogsPerMonth),
			formatLimit(p.Limits.Projects),
			formatLimit(p.Limits.Workflows),
			formatLimit(p.Limits.Seats),
			formatModels(p.Limits.Models),
		)
	}
	return w.Flush()
}

func formatLimit(v int64) string {
	if plan.IsUnlimited(v) {
		return "unlimited"
	}
	return fmt.Sprintf("%d", v)
}

func formatModels(models []string) string {
	if len(models) == 0 {
		return "any"
	}
	return strings.Join(models, ",")
}
