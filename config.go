/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	galleryTTL     time.Duration
	logFormat      string
	maxPlayers     int
	messageBurst   int
	messageRate    float64
	minPlayers     int
	mintTimeout    time.Duration
	mintURL        string
	port           int
	prefix         string
	profile        bool
	redisAddr      string
	redisDB        int
	redisPassword  string
	roundTimeout   time.Duration
	sessionTimeout time.Duration
	timeoutContent string
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
	if c.logFormat != "console" && c.logFormat != "json" {
		return fmt.Errorf("invalid log format (must be console or json): %q", c.logFormat)
	}
	if c.minPlayers < 2 {
		return fmt.Errorf("invalid minimum player count (must be at least 2): %d", c.minPlayers)
	}
	if c.maxPlayers < c.minPlayers {
		return fmt.Errorf("maximum player count (%d) is lower than minimum player count (%d)", c.maxPlayers, c.minPlayers)
	}
	if c.roundTimeout < 0 || c.mintTimeout < 0 || c.sessionTimeout < 0 || c.galleryTTL < 0 {
		return errors.New("durations must not be negative")
	}
	if c.messageRate <= 0 || c.messageBurst < 1 {
		return fmt.Errorf("invalid message rate limit: %v/s with burst %d", c.messageRate, c.messageBurst)
	}
	if c.redisDB < 0 {
		return fmt.Errorf("invalid redis database: %d", c.redisDB)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CORPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "corpse",
		Short:         "Exquisite corpse party game server: write, draw, pass it on.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CORPSE_BIND)")
	fs.DurationVar(&cfg.galleryTTL, "gallery-ttl", 24*time.Hour, "how long finished games stay in the gallery, 0 to keep forever (env: CORPSE_GALLERY_TTL)")
	fs.StringVar(&cfg.logFormat, "log-format", "console", "log output format, console or json (env: CORPSE_LOG_FORMAT)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 8, "maximum players per game (env: CORPSE_MAX_PLAYERS)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 40, "inbound message burst allowed per connection (env: CORPSE_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 20, "inbound messages per second allowed per connection (env: CORPSE_MESSAGE_RATE)")
	fs.IntVar(&cfg.minPlayers, "min-players", 3, "minimum players required to start a game (env: CORPSE_MIN_PLAYERS)")
	fs.DurationVar(&cfg.mintTimeout, "mint-timeout", 30*time.Second, "time allowed for a single mint request (env: CORPSE_MINT_TIMEOUT)")
	fs.StringVar(&cfg.mintURL, "mint-url", "", "endpoint of the minting service, minting is disabled if empty (env: CORPSE_MINT_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CORPSE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CORPSE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CORPSE_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for the gallery, in-memory if empty (env: CORPSE_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: CORPSE_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: CORPSE_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.roundTimeout, "round-timeout", 0, "time before missing submissions are filled in, 0 to wait forever (env: CORPSE_ROUND_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: CORPSE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.timeoutContent, "timeout-content", "", "content submitted for players who miss the round timeout (env: CORPSE_TIMEOUT_CONTENT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CORPSE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CORPSE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CORPSE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CORPSE_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("corpse v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
