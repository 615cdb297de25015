package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/config"
	"taskboard/internal/forms"
	taskboardsdk "taskboard/sdk/go"
)

func newClient(cfg *config.Config) *taskboardsdk.Client {
	c := taskboardsdk.New(cfg.Client.BaseURL)
	c.BasePath = cfg.Server.BasePath
	c.Timeout = cfg.Client.Timeout
	return c
}

func openAuth(cfg *config.Config) (*taskboardsdk.Client, *taskboardsdk.Auth, error) {
	store, err := taskboardsdk.OpenKeyring(cfg.Client.KeyringDir)
	if err != nil {
		return nil, nil, err
	}
	c := newClient(cfg)
	return c, taskboardsdk.NewAuth(c, store), nil
}

// authedClient restores the persisted session and returns a client carrying
// a fresh id token.
func authedClient(ctx context.Context) (*taskboardsdk.Client, *taskboardsdk.User, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	c, auth, err := openAuth(cfg)
	if err != nil {
		return nil, nil, err
	}
	u, err := auth.Restore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, errors.New("not signed in; run tb login")
	}
	token, err := auth.IDToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c.WithBearer(token), u, nil
}

// credentials fills missing email or password with an interactive prompt.
func credentials(title, email, password string) (string, string, error) {
	if email != "" && password != "" {
		return email, password, nil
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&email),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
	).Title(title))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func signupCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, auth, err := openAuth(cfg)
			if err != nil {
				return err
			}
			email, password, err := credentials("Create account", email, password)
			if err != nil {
				return err
			}
			r := forms.Register(cmd.Context(), auth, email, password)
			if !r.OK() {
				return errors.New(r.Message)
			}
			fmt.Println(r.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, auth, err := openAuth(cfg)
			if err != nil {
				return err
			}
			email, password, err := credentials("Sign in", email, password)
			if err != nil {
				return err
			}
			r := forms.Login(cmd.Context(), auth, email, password)
			if !r.OK() {
				return errors.New(r.Message)
			}
			u := auth.CurrentUser()
			if viper.GetBool("json") {
				return printJSON(u)
			}
			fmt.Println("Signed in as", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, auth, err := openAuth(cfg)
			if err != nil {
				return err
			}
			if _, err := auth.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, auth, err := openAuth(cfg)
			if err != nil {
				return err
			}
			u, err := auth.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(u)
			}
			if u == nil {
				fmt.Println("Not signed in")
				return nil
			}
			fmt.Printf("%s (%s)\n", u.Email, u.UID)
			return nil
		},
	}
}
