// internal/cli/session.go
package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"backoffice-console/internal/domain/auth"
	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/pkg/jwt"
	sessionsvc "backoffice-console/internal/service/session"

	"github.com/spf13/cobra"
)

// ErrNotAllowed is returned by "can" when the permission check fails.
var ErrNotAllowed = errors.New("permission denied")

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Long: `Sign in against the user service. The password is read from --password,
then CONSOLE_PASSWORD, then the first line of standard input.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				password = os.Getenv("CONSOLE_PASSWORD")
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("password is required")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			stack, err := opts.stack(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer stack.Close()

			if err := stack.Session.Login(cmd.Context(), auth.Credentials{Username: username, Password: password}); err != nil {
				return err
			}

			snap := stack.Session.Snapshot()
			printf(cmd, "signed in as %s (%d permissions)\n", username, len(snap.Permissions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVar(&password, "password", "", "operator password (prefer CONSOLE_PASSWORD or stdin)")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := opts.stack(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer stack.Close()

			stack.Session.Logout()
			printf(cmd, "signed out\n")
			return nil
		},
	}
}

// statusReport is the "status" output.
type statusReport struct {
	Status      sessionsvc.Status `json:"status"`
	Subject     string            `json:"subject,omitempty"`
	IdentityID  int64             `json:"identity_id,omitempty"`
	Roles       []string          `json:"roles,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at,omitzero"`
	Permissions []string          `json:"permissions"`
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Restore the session and show who is signed in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := opts.stack(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer stack.Close()

			snap := stack.Session.Snapshot()
			report := statusReport{
				Status:      snap.Status,
				ExpiresAt:   snap.ExpiresAt,
				Permissions: snap.Permissions,
			}
			if token := stack.Tokens.AccessToken(); token != "" {
				if claims, err := jwt.Inspect(token); err == nil {
					report.Subject = claims.Subject
					report.IdentityID = claims.IdentityID
					report.Roles = claims.Roles
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printf(cmd, "status:      %s\n", report.Status)
			if report.Subject != "" {
				printf(cmd, "subject:     %s\n", report.Subject)
			}
			if len(report.Roles) > 0 {
				printf(cmd, "roles:       %s\n", strings.Join(report.Roles, ", "))
			}
			if !report.ExpiresAt.IsZero() {
				printf(cmd, "expires:     %s\n", report.ExpiresAt.Format(time.RFC3339))
			}
			printf(cmd, "permissions: %s\n", strings.Join(report.Permissions, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newCanCmd(opts *options) *cobra.Command {
	var anyOf bool

	cmd := &cobra.Command{
		Use:   "can <permission>...",
		Short: "Check the restored session's permissions",
		Long: `Exit non-zero unless the session holds all the given permissions
(or any of them with --any).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := opts.stack(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer stack.Close()

			mode := permission.ModeAll
			if anyOf {
				mode = permission.ModeAny
			}

			if !stack.Session.IsAuthenticated() {
				return fmt.Errorf("not signed in")
			}
			if !stack.Session.HasPermission(mode, permission.Keys(args...)...) {
				return fmt.Errorf("%w: %s", ErrNotAllowed, strings.Join(args, ", "))
			}
			printf(cmd, "allowed\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&anyOf, "any", false, "allow when any permission is held")
	return cmd
}
