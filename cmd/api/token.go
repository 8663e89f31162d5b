package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"barangay/api/internal/auth"
	"barangay/api/internal/rbac"
	"barangay/api/internal/util"
)

var (
	tokenName string
	tokenRole string
	tokenUnit string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := rbac.Normalize(tokenRole)
		if string(role) != tokenRole {
			return fmt.Errorf("unknown role %q (want resident, staff or admin)", tokenRole)
		}
		token, err := auth.IssueToken([]byte(cfg.TokenSecret), auth.Claims{
			Sub:    util.NewID("usr"),
			Name:   tokenName,
			Role:   string(role),
			UnitID: tokenUnit,
			JTI:    util.NewID("jti"),
			Exp:    time.Now().Add(tokenTTL).Unix(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name stamped on transitions")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(rbac.RoleAdmin), "resident, staff or admin")
	tokenCmd.Flags().StringVar(&tokenUnit, "unit", "", "Administrative unit id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("name")
	_ = tokenCmd.MarkFlagRequired("unit")
}
