package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/akashpal/jobwright/internal/agent"
	"github.com/akashpal/jobwright/internal/ai"
	"github.com/akashpal/jobwright/internal/browser"
	"github.com/akashpal/jobwright/internal/config"
	"github.com/akashpal/jobwright/internal/database"
	"github.com/akashpal/jobwright/internal/email"
	"github.com/akashpal/jobwright/internal/logging"
	"github.com/akashpal/jobwright/internal/memory"
	"github.com/akashpal/jobwright/internal/profile"
)

var (
	applyHeadless       bool
	applyMaxRetries     int
	applyPromptPassword bool

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var applyCmd = &cobra.Command{
	Use:   "apply <job_url> [config_path]",
	Short: "Apply to a job posting",
	Long: `Apply runs one application attempt against the given posting URL.

The optional second argument names a config file, matching the positional
contract of older wrappers; it takes precedence over --config.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyHeadless, "headless", false, "run the browser headless regardless of config")
	applyCmd.Flags().IntVar(&applyMaxRetries, "max-retries", 0, "override the configured retry limit")
	applyCmd.Flags().BoolVar(&applyPromptPassword, "prompt-password", false, "prompt for the portal password instead of reading it from config")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	jobURL := args[0]
	explicitConfig := ""
	if len(args) == 2 {
		explicitConfig = args[1]
	}

	cfg, err := loadConfig(explicitConfig)
	if err != nil {
		return err
	}
	if applyHeadless {
		cfg.Browser.Headless = true
	}
	if applyMaxRetries > 0 {
		cfg.Agent.MaxRetries = applyMaxRetries
	}

	if applyPromptPassword {
		pw, err := readPassword("Portal password: ")
		if err != nil {
			return err
		}
		cfg.Profile["password"] = pw
	}

	p, err := profile.New(cfg.Profile)
	if err != nil {
		return err
	}

	client, err := ai.NewClient(ai.Config{
		Provider: ai.Provider(cfg.AI.Provider),
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		BaseURL:  cfg.AI.BaseURL,
		Timeout:  cfg.AI.Timeout,
	})
	if err != nil {
		return err
	}

	store := memory.Open(cfg.Memory.Path)
	audit := database.Open(cfg.Memory.DatabasePath)
	defer audit.Close()

	driver, err := browser.NewSession(cfg.Browser)
	if err != nil {
		return err
	}
	defer driver.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := agent.New(driver, client, p, store, audit, agent.Options{
		MaxRetries:          cfg.Agent.MaxRetries,
		RetryDelay:          cfg.Agent.RetryDelay,
		ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
		ScreenshotOnFailure: cfg.Agent.ScreenshotOnFailure,
		ScreenshotDir:       cfg.Agent.ScreenshotDir,
		ProviderName:        cfg.AI.Provider,
	})

	submittedAt := time.Now()
	report, runErr := engine.Run(ctx, jobURL)

	if runErr == nil && cfg.Email != nil {
		checkInbox(ctx, cfg.Email, report.Domain, submittedAt)
	}

	printReport(report)
	if runErr != nil {
		return fmt.Errorf("application failed: %w", runErr)
	}
	return nil
}

func checkInbox(ctx context.Context, cfg *config.EmailConfig, domain string, since time.Time) {
	monitor := email.NewMonitor(*cfg)
	defer monitor.Close()

	conf, err := monitor.WaitForConfirmation(ctx, domain, since)
	if err != nil {
		logging.Warn("Inbox confirmation check failed: %v", err)
		return
	}
	if conf != nil {
		fmt.Println(detailStyle.Render(fmt.Sprintf("  Inbox confirmation: %q from %s", conf.Subject, conf.From)))
	}
}

func printReport(r *agent.Report) {
	if r.Succeeded {
		fmt.Println(successStyle.Render("✓ Application submitted"))
	} else {
		fmt.Println(failureStyle.Render("✗ Application failed"))
		if r.Err != nil {
			fmt.Println(detailStyle.Render("  " + r.Err.Error()))
		}
		if r.ScreenshotPath != "" {
			fmt.Println(detailStyle.Render("  Screenshot: " + r.ScreenshotPath))
		}
	}
	fmt.Println(detailStyle.Render(fmt.Sprintf("  Portal: %s  Retries: %d  AI queries: %d  Attempt: %s",
		r.Domain, r.Retries, r.AIQueries, r.AttemptID)))
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for password: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
