package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cwinsights/internal/ai"
	"cwinsights/internal/config"
	"cwinsights/internal/poller"
	"cwinsights/internal/profiles"
	"cwinsights/internal/querier"
	"cwinsights/internal/querier/cloudwatch"
	"cwinsights/internal/querier/fake"
	"cwinsights/internal/querier/file"
	"cwinsights/internal/session"
	"cwinsights/internal/store"
	"cwinsights/internal/ui"
	"cwinsights/internal/util/logx"
	"cwinsights/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.Name + " [flags]",
		Short: "Interactive CloudWatch Logs Insights queries in the terminal",
		Long: `Run CloudWatch Logs Insights queries and browse the results as they arrive.

Flags take precedence over CWINSIGHTS_* environment variables, which take
precedence over the config file. Piped input is queried with the file backend.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg := config.Bind(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if cfg.ShowVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		}
		if err := cfg.Resolve(cmd.Flags()); err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logx.SetLevelFromEnv()
	if cfg.LogFile != "" {
		if err := logx.OpenFile(cfg.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}
	defer logx.CloseFile()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, closeClient := newClient(cfg)
	defer closeClient()

	names := profiles.Discover()
	profile := cfg.Profile
	if profile == "" {
		profile = profiles.Default(names)
	}
	mgr, err := newManager(cfg, client, profile)
	if err != nil {
		return err
	}
	defer mgr.Close()

	var drafter *ai.OpenAIClient
	if !cfg.Offline {
		drafter = ai.NewOpenAIClient(cfg.OpenAIKey(), cfg.OpenAIBase, cfg.OpenAIModel, time.Duration(cfg.OpenAITimeoutSec)*time.Second)
	}

	logx.Infof("starting %s: %s", version.String(), cfg.String())
	if err := ui.Run(ctx, cfg, ui.Deps{Manager: mgr, Profiles: names, AI: drafter}); err != nil {
		logx.Errorf("exited with error: %v", err)
		return err
	}
	return nil
}

// newClient builds the query service selected by cfg. The returned func
// releases it.
func newClient(cfg *config.Config) (querier.Client, func()) {
	switch cfg.Backend {
	case config.BackendFake:
		return fake.New(fake.DefaultOptions()), func() {}
	case config.BackendFile:
		c := file.New(file.Options{Follow: cfg.Follow, Stdin: stdin(cfg)})
		return c, c.Close
	}
	opt := cloudwatch.DefaultOptions()
	opt.Endpoint = cfg.Endpoint
	opt.AccessKeyID, opt.SecretAccessKey = cfg.AccessKeyID, cfg.SecretAccessKey
	return cloudwatch.New(opt), func() {}
}

func stdin(cfg *config.Config) io.Reader {
	if cfg.IsPipedStdin {
		return os.Stdin
	}
	return nil
}

func newManager(cfg *config.Config, client querier.Client, profile string) (*session.Manager, error) {
	carry, err := session.ParseCarryOver(cfg.CarryOver)
	if err != nil {
		return nil, err
	}
	poll := poller.DefaultOptions()
	poll.Interval = cfg.PollInterval
	poll.Retry.MaxAttempts = cfg.MaxRetries + 1
	return session.NewManager(client, session.Options{
		Region:    cfg.Region,
		Profile:   profile,
		Poll:      poll,
		Store:     store.Options{MaxRows: cfg.MaxRows},
		CarryOver: carry,
	}), nil
}
