package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Access gate CLI",
	Long:  "A CLI for operating the dual-factor access control service.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(allowlistCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(loginCmd())
}

// --- evaluate ---

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Request an access decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, _ := cmd.Flags().GetString("origin")
			body := map[string]any{}
			if origin != "" {
				body["origin_address"] = origin
			}
			client := newClient()
			result, err := client.post("/v1/access/evaluate", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("origin", "", "Origin address to evaluate (defaults to this connection's address)")
	return cmd
}

// --- allowlist ---

func allowlistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "allowlist", Short: "Manage the origin allowlist"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current allowlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/admin/allowlist")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <origin>...",
		Short: "Replace the allowlist with the given origins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.put("/v1/admin/allowlist", map[string]any{"origins": args})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the access audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			since, _ := cmd.Flags().GetString("since")
			origin, _ := cmd.Flags().GetString("origin")
			result, _ := cmd.Flags().GetString("result")

			params := []string{fmt.Sprintf("limit=%d", limit)}
			if since != "" {
				params = append(params, "since="+since)
			}
			if origin != "" {
				params = append(params, "origin="+origin)
			}
			if result != "" {
				params = append(params, "result="+result)
			}

			client := newClient()
			res, err := client.get("/v1/admin/audit-log?" + strings.Join(params, "&"))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(res)
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum records to return")
	cmd.Flags().String("since", "", "Only records at or after this RFC3339 time")
	cmd.Flags().String("origin", "", "Filter by origin address")
	cmd.Flags().String("result", "", "Filter by result: success or failure")
	return cmd
}

// --- health ---

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/sys/health")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- login ---

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <credential>",
		Short: "Store a bearer credential for subsequent commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Credential = args[0]
			if err := saveConfig(); err != nil {
				printError(err.Error())
				return nil
			}
			fmt.Println("credential saved")
			return nil
		},
	}
}
