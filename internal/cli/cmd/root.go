package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arkmanager/internal/app"
	"arkmanager/internal/config"
	"arkmanager/internal/domain"
	"arkmanager/internal/logger"
	"arkmanager/pkg/sdk"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Client    *sdk.Client
	BaseURL   string
	ConfigDir string
	UseDaemon bool
)

var RootCmd = &cobra.Command{
	Use:           "arkmanager",
	Short:         "Lifecycle manager for dedicated ARK servers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		Client = sdk.NewClient(BaseURL)
	},
}

func Execute() {
	RootCmd.PersistentFlags().StringVar(&BaseURL, "url", "http://localhost:23010", "URL of the arkmanager daemon")
	RootCmd.PersistentFlags().StringVar(&ConfigDir, "config", "", "configuration directory (default is the per-user config dir)")
	RootCmd.PersistentFlags().BoolVar(&UseDaemon, "daemon", false, "submit lifecycle operations to the daemon instead of running them here")

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on the first interrupt. A second interrupt
// falls through to the default handler and kills the process.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func loadConfig() (*config.Config, error) {
	dir := ConfigDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log)
	return cfg, nil
}

// withLocal builds a one-shot container and exits with the code fn returns.
func withLocal(fn func(ctx context.Context, c *app.Container) domain.ExitCode) {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("Could not load configuration")
		os.Exit(int(domain.ExitInvalidDataDirectory))
	}
	c, err := app.New(cfg, app.ModeOneShot)
	if err != nil {
		log.Error().Err(err).Msg("Could not initialise")
		os.Exit(int(domain.ExitInvalidDataDirectory))
	}

	ctx, stop := signalContext()
	code := fn(ctx, c)
	stop()
	c.Close()

	log.Info().Int("exit_code", int(code)).Str("result", code.String()).Msg("Done")
	os.Exit(int(code))
}

// findLocal resolves a profile by id or case-insensitive name.
func findLocal(c *app.Container, ref string) (domain.ProfileSnapshot, bool) {
	if s, ok := c.Registry.Snapshot(ref); ok {
		return s, true
	}
	for _, s := range c.Registry.Snapshots() {
		if strings.EqualFold(s.Name, ref) {
			return s, true
		}
	}
	return domain.ProfileSnapshot{}, false
}

func withProfile(ref string, fn func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode) {
	withLocal(func(ctx context.Context, c *app.Container) domain.ExitCode {
		s, ok := findLocal(c, ref)
		if !ok {
			log.Error().Str("profile", ref).Msg("Profile not found")
			return domain.ExitProfileNotFound
		}
		return fn(ctx, c, s)
	})
}

// submit hands a run to the daemon, waits for it and exits with its code.
// An interrupt cancels the remote run before waiting for it to settle.
func submit(start func(ctx context.Context) (*sdk.Run, error)) {
	ctx, stop := signalContext()
	defer stop()

	run, err := start(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Request failed")
		os.Exit(int(domain.ExitUnknownError))
	}
	fmt.Printf("Run %s started (%s %s)\n", run.ID, run.Op, run.Target)

	go func() {
		<-ctx.Done()
		if _, err := Client.CancelRun(context.Background(), run.ID); err != nil {
			log.Warn().Err(err).Msg("Could not cancel run")
		}
	}()

	final, err := Client.WaitRun(context.Background(), run.ID)
	if err != nil {
		log.Error().Err(err).Msg("Lost track of run")
		os.Exit(int(domain.ExitUnknownError))
	}
	fmt.Printf("Run %s finished: %d %s\n", final.ID, final.ExitCode, final.Result)
	os.Exit(final.ExitCode)
}

func remoteProfile(ref string) *sdk.Profile {
	p, err := Client.FindProfile(context.Background(), ref)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not resolve profile")
	}
	return p
}
