package cli

import (
	"fmt"
	"time"

	"academy-of-heroes/internal/auth"
	"academy-of-heroes/internal/config"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token for local use.
func NewTokenCmd(configPath *string) *cobra.Command {
	var teacherID, studentID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a teacher or student token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
			if err != nil {
				return err
			}
			var token string
			if studentID != "" {
				token, err = issuer.IssueStudentToken(teacherID, studentID)
			} else {
				token, err = issuer.IssueTeacherToken(teacherID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&teacherID, "teacher", "", "teacher id")
	cmd.Flags().StringVar(&studentID, "student", "", "student id; omit for a teacher token")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}
