package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"depgate/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate policy files",
}

var policyLintCmd = &cobra.Command{
	Use:   "lint <file>...",
	Short: "Parse and merge policy files, reporting the first error",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPolicyLint,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyLintCmd)
}

func runPolicyLint(cmd *cobra.Command, args []string) error {
	set, err := policy.LoadFiles(args...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LAYER\tRULE\tACTION\tKIND")
	for _, r := range set.Rules() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Layer(), r.Name, r.Action, r.Predicate.Kind)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d rules, version %s\n", len(set.Rules()), set.Version()[:12])
	return nil
}
