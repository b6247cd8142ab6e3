package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sharednote/backend/internal/httpapi/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token signed with auth.jwtSecret",
	Long: `Issue an HS256 access token for local development. The server accepts
it when auth.jwtSecret is set to the same secret.`,
	Run: runToken,
}

var (
	tokenUser uint64
	tokenName string
	tokenTTL  time.Duration
)

func init() {
	tokenCmd.Flags().Uint64Var(&tokenUser, "user", 0, "User ID")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Username")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Auth.JWTSecret == "" {
		exitError("auth.jwtSecret is not set")
	}
	if tokenUser == 0 {
		exitError("--user must be non-zero")
	}
	token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), tokenUser, tokenName, tokenTTL)
	if err != nil {
		exitError("sign token: %v", err)
	}
	fmt.Println(token)
}
