package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/s0up4200/godmart/config"
	"github.com/s0up4200/godmart/dmart"
)

var (
	cfgFile     string
	cfg         *config.Config
	logger      zerolog.Logger
	dmartClient *dmart.Client

	// readPassword reads a password from the terminal without echo
	readPassword = term.ReadPassword
	// stdinIsTerminal reports whether a password prompt can be shown
	stdinIsTerminal = func() bool { return isatty.IsTerminal(os.Stdin.Fd()) }
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "godmart",
	Short: "A command line client for the Dmart API",
	Long: `godmart logs in to a Dmart instance with the configured credentials
and runs authenticated requests against it, such as fetching the profile
of the logged-in user.`,
	PersistentPreRunE: initializeApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the in-flight request.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeApp initializes the configuration and the Dmart client
func initializeApp(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	// Load configuration
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger = setupLogger(cfg.Logging, os.Stderr)

	if cfg.Dmart.Password == "" {
		password, err := promptPassword(cmd.ErrOrStderr(), cfg.Dmart.Username)
		if err != nil {
			return err
		}
		cfg.Dmart.Password = password
	}

	dmartClient = newDmartClient(cfg.Dmart, logger)

	return nil
}

// newDmartClient maps the file configuration onto client options
func newDmartClient(dc config.DmartConfig, logger zerolog.Logger) *dmart.Client {
	opts := []dmart.Option{
		dmart.WithTimeout(dc.Timeout),
		dmart.WithRetryCount(dc.RetryCount),
		dmart.WithAutoConnect(dc.AutoConnect),
		dmart.WithUserAgent(dc.UserAgent),
	}
	if dc.InsecureSkipVerify {
		logger.Warn().Msg("TLS certificate verification is disabled")
		opts = append(opts, dmart.WithInsecureSkipVerify())
	}

	return dmart.NewClient(dmart.Config{
		URL:      dc.URL,
		Username: dc.Username,
		Password: dc.Password,
	}, logger, opts...)
}

// promptPassword asks for the password when none is configured
func promptPassword(out io.Writer, username string) (string, error) {
	if !stdinIsTerminal() {
		return "", fmt.Errorf("dmart.password is not set and stdin is not a terminal (set GODMART_DMART_PASSWORD)")
	}

	fmt.Fprintf(out, "Password for %s: ", username)
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(password), nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig, out *os.File) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Format == "json" {
		return zerolog.New(out).With().Timestamp().Logger()
	}

	// Console format, colored only on a real terminal
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isatty.IsTerminal(out.Fd()),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
