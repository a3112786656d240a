package cmd

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/akashpal/jobwright/internal/memory"
)

var (
	domainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	mappingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or reset learned portal knowledge",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show [domain]",
	Short: "Show learned strategies and field mappings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		domains := store.Domains()
		if len(args) == 1 {
			domains = []string{args[0]}
		}
		sort.Strings(domains)

		if len(domains) == 0 {
			fmt.Println("No portals learned yet.")
			return nil
		}

		for _, domain := range domains {
			strategy, ok := store.Load(domain)
			successes, failures := store.History(domain)

			fmt.Println(domainStyle.Render(domain))
			if !ok {
				fmt.Println(mappingStyle.Render("  no strategy recorded"))
			} else {
				fmt.Printf("  successes: %d  confidence boost: %.2f  updated: %s\n",
					strategy.SuccessCount, strategy.ConfidenceBoost,
					strategy.UpdatedAt.Format("2006-01-02 15:04"))
				keys := make([]string, 0, len(strategy.FieldMappings))
				for k := range strategy.FieldMappings {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					m := strategy.FieldMappings[k]
					fmt.Println(mappingStyle.Render(fmt.Sprintf("    %-30s -> %-16s %.2f (%s)",
						k, m.Attribute, m.Confidence, m.Source)))
				}
			}
			fmt.Printf("  history: %d success(es), %d failure(s)\n\n", len(successes), len(failures))
		}
		return nil
	},
}

var memoryForgetCmd = &cobra.Command{
	Use:   "forget <domain>",
	Short: "Erase everything learned about a portal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if !store.Forget(args[0]) {
			return fmt.Errorf("nothing known about %s", args[0])
		}
		if err := store.Flush(); err != nil {
			return err
		}
		fmt.Printf("Forgot %s\n", args[0])
		return nil
	},
}

func openStore() (*memory.Store, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, err
	}
	return memory.Open(cfg.Memory.Path), nil
}

func init() {
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryForgetCmd)
	rootCmd.AddCommand(memoryCmd)
}
