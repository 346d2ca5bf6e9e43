package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hengadev/rxseal/internal/prescription"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for testing the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := prescription.Actor{ID: subject, Role: prescription.Role(role)}
			if !actor.Role.Valid() {
				return fmt.Errorf("unknown role '%s' (patient, doctor or admin)", role)
			}
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}

			svc, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			token, err := svc.Verifier().Issue(actor, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id carried in the token")
	cmd.Flags().StringVar(&role, "role", "doctor", "patient, doctor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
