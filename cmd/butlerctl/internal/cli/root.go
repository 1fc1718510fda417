package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var (
	serverURL string
	fromAddr  string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "butlerctl",
	Short: "AI Butler 命令行客户端",
	Long: `butlerctl 通过 REST API 驱动 AI Butler 的批量交易、定时交易与工作流合约。

EXAMPLES:
  # 批量转账，任一操作失败即整体回滚
  butlerctl --from 0x...a1 batch exec --value 30 --op 0x...b1:10 --op 0x...b2:20 --require-all

  # 十分钟后执行的定时转账
  butlerctl --from 0x...a1 schedule create --target 0x...b1 --amount 5 --in 10m

  # 创建并立即执行工作流
  butlerctl --from 0x...a1 workflow create --name rebalance --action transfer:0x...b1:5 --execute --value 5`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultServer := os.Getenv("BUTLER_API")
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "API 地址，默认读取 BUTLER_API")
	rootCmd.PersistentFlags().StringVar(&fromAddr, "from", os.Getenv("BUTLER_FROM"), "调用者地址，默认读取 BUTLER_FROM")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", butler.DefaultHTTPTimeout, "单次请求超时")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(connectorCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(keeperCmd)
	rootCmd.AddCommand(clockCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "检查服务状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			block, err := c.Health(ctx)
			return map[string]any{"status": "ok", "block_number": block}, err
		})
	},
}

// withClient builds a client from the global flags, runs fn under the
// request timeout and prints its result as JSON.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *butler.Client) (any, error)) error {
	client, err := butler.NewClient(serverURL, nil)
	if err != nil {
		return err
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	out, err := fn(ctx, client)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func requireFrom() (string, error) {
	if fromAddr == "" {
		return "", errors.New("需要通过 --from 或 BUTLER_FROM 指定调用者地址")
	}
	return fromAddr, nil
}
