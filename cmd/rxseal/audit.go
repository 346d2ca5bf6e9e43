package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hengadev/rxseal/internal/prescription"
	s3archive "github.com/hengadev/rxseal/providers/archive/s3"
)

var cliAdmin = prescription.Actor{ID: "rxseal-cli", Role: prescription.RoleAdmin}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		bucket string
		region string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List issued prescriptions, or export them to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			cfg := svc.Config()
			if bucket == "" {
				bucket = cfg.AuditBucket
			}
			if bucket == "" {
				entries, err := svc.Audit(ctx, cliAdmin)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			exporter, err := s3archive.NewExporterFromConfig(ctx, region, bucket, cfg.AuditPrefix)
			if err != nil {
				return err
			}
			location, err := svc.ExportAudit(ctx, cliAdmin, exporter)
			if err != nil {
				return err
			}
			cmd.Printf("Audit report written to %s\n", location)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "s3-bucket", "", "export to this S3 bucket (overrides RXSEAL_AUDIT_BUCKET)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (default: from the AWS configuration)")
	return cmd
}
