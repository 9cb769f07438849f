package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PARTYHOST"

type Config struct {
	bind           string
	envFile        string
	inviteTimeout  time.Duration
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	rewardsURL     string
	roomGrace      time.Duration
	roomTimeout    time.Duration
	sessionTimeout time.Duration
	sweepInterval  time.Duration
	timerMax       int
	timerMin       int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	for name, d := range map[string]time.Duration{
		"invite-timeout":  c.inviteTimeout,
		"player-timeout":  c.playerTimeout,
		"room-grace":      c.roomGrace,
		"room-timeout":    c.roomTimeout,
		"session-timeout": c.sessionTimeout,
		"sweep-interval":  c.sweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid --%s (must be positive): %s", name, d)
		}
	}

	if c.timerMin < 1 || c.timerMax < c.timerMin {
		return fmt.Errorf("invalid round timer bounds (need 1 <= --timer-min <= --timer-max): %d-%d", c.timerMin, c.timerMax)
	}

	if c.rewardsURL != "" {
		u, err := url.Parse(c.rewardsURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid --rewards-url (must be an http or https url): %q", c.rewardsURL)
		}
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// applyEnv fills every flag the user did not pass from the environment,
// falling back to values read from the env file.
func applyEnv(cfg *Config, v *viper.Viper, fs *pflag.FlagSet) error {
	fileVals := map[string]string{}
	if cfg.envFile != "" {
		vals, err := godotenv.Read(cfg.envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, os.ErrNotExist) && !fs.Changed("env-file"):
		default:
			return fmt.Errorf("failed to read env file %s: %w", cfg.envFile, err)
		}
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "env-file" {
			return
		}

		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)

		key := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if _, set := os.LookupEnv(key); set {
			errs = append(errs, fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))))
		} else if val, ok := fileVals[key]; ok {
			errs = append(errs, fs.Set(f.Name, val))
		}
	})

	return errors.Join(errs...)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "partyhost",
		Short:         "Hosts real-time party games for browser clients over WebSockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnv(cfg, v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYHOST_BIND)")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "file to read PARTYHOST_* settings from, if present")
	fs.DurationVar(&cfg.inviteTimeout, "invite-timeout", 24*time.Hour, "time before invite links expire (env: PARTYHOST_INVITE_TIMEOUT)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time a disconnected player keeps their seat (env: PARTYHOST_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYHOST_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYHOST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYHOST_PROFILE)")
	fs.StringVar(&cfg.rewardsURL, "rewards-url", "", "base url of the rewards platform, disabled if empty (env: PARTYHOST_REWARDS_URL)")
	fs.DurationVar(&cfg.roomGrace, "room-grace", 2*time.Minute, "time an empty platform-linked room is kept (env: PARTYHOST_ROOM_GRACE)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 2*time.Hour, "time before idle rooms are deleted (env: PARTYHOST_ROOM_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 30*time.Minute, "time before idle reconnection tokens expire (env: PARTYHOST_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", time.Minute, "how often idle rooms and sessions are swept (env: PARTYHOST_SWEEP_INTERVAL)")
	fs.IntVar(&cfg.timerMax, "timer-max", 300, "longest allowed round timer, in seconds (env: PARTYHOST_TIMER_MAX)")
	fs.IntVar(&cfg.timerMin, "timer-min", 10, "shortest allowed round timer, in seconds (env: PARTYHOST_TIMER_MIN)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYHOST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYHOST_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYHOST_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYHOST_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyhost v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
