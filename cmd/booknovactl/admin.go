package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	"github.com/noah-isme/booknova-api/internal/service"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

// readPassword is swapped out in tests.
var readPassword = func(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var name, email, phone string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an ADMIN account with MANAGE access",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password must not be empty")
			}

			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			users := service.NewUserService(repository.NewUserRepository(db), repository.NewAuditRepository(db), validation.New(), a.log())
			user, err := users.AdminRegister(cmd.Context(), service.CreateUserRequest{
				Name:        name,
				Email:       email,
				Password:    password,
				Phone:       phone,
				Role:        models.RoleAdmin,
				AccessLevel: models.AccessManage,
			}, models.AuditMeta{UserAgent: "booknovactl"})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&phone, "phone", "", "contact phone")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("phone")

	cmd.AddCommand(create)
	return cmd
}
