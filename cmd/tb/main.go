package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/config"
	"taskboard/internal/logutils"
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskboard CLI",
	Long: `Taskboard is a personal task tracker.

Run "tb serve" to start the API, "tb signup" and "tb login" to create a
session, then manage tasks with "tb tasks" or the interactive "tb dashboard".
Settings come from taskboard.yml, TASKBOARD_* environment variables and flags,
in increasing precedence. A .env file in the working directory is loaded first.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "taskboard.yml", "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server", "", "API base URL for client commands")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("client.base_url", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads the config file (defaults when absent) and applies
// TASKBOARD_* environment variables and bound flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	strs := map[string]*string{
		"server.addr":          &cfg.Server.Addr,
		"server.base_path":     &cfg.Server.BasePath,
		"store.driver":         &cfg.Store.Driver,
		"store.path":           &cfg.Store.Path,
		"store.mongo_uri":      &cfg.Store.MongoURI,
		"store.mongo_database": &cfg.Store.MongoDatabase,
		"auth.jwt_secret":      &cfg.Auth.JWTSecret,
		"auth.issuer":          &cfg.Auth.Issuer,
		"log.level":            &cfg.Log.Level,
		"log.file":             &cfg.Log.File,
		"client.base_url":      &cfg.Client.BaseURL,
		"client.keyring_dir":   &cfg.Client.KeyringDir,
	}
	for k, p := range strs {
		if viper.IsSet(k) && viper.GetString(k) != "" {
			*p = viper.GetString(k)
		}
	}
	durations := map[string]*time.Duration{
		"auth.token_ttl":   &cfg.Auth.TokenTTL,
		"auth.refresh_ttl": &cfg.Auth.RefreshTTL,
		"client.timeout":   &cfg.Client.Timeout,
	}
	for k, p := range durations {
		if viper.IsSet(k) {
			*p = viper.GetDuration(k)
		}
	}
	if viper.IsSet("auth.min_password_length") {
		cfg.Auth.MinPasswordLength = viper.GetInt("auth.min_password_length")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, fallbackFile string) (zerolog.Logger, func(), error) {
	file := cfg.Log.File
	if file == "" {
		file = fallbackFile
	}
	return logutils.New(cfg.Log.Level, file)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
