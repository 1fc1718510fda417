package cli

import (
	"context"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "协议连接器登记表，写操作仅限合约管理员",
}

var connectorRegisterCmd = &cobra.Command{
	Use:   "register <name> <address>",
	Short: "登记连接器",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.RegisterConnector(ctx, from, args[0], args[1])
		})
	},
}

var connectorUnregisterCmd = &cobra.Command{
	Use:   "unregister <name> <address>",
	Short: "注销连接器",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.UnregisterConnector(ctx, from, args[0], args[1])
		})
	},
}

var connectorListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "列出连接器名称，指定名称时列出其地址",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			if len(args) == 1 {
				return c.Connectors(ctx, args[0])
			}
			return c.ConnectorNames(ctx)
		})
	},
}

var connectorCheckCmd = &cobra.Command{
	Use:   "check <name> <address>",
	Short: "检查连接器是否已登记",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			ok, err := c.IsConnectorRegistered(ctx, args[0], args[1])
			return map[string]bool{"registered": ok}, err
		})
	},
}

func init() {
	connectorCmd.AddCommand(connectorRegisterCmd)
	connectorCmd.AddCommand(connectorUnregisterCmd)
	connectorCmd.AddCommand(connectorListCmd)
	connectorCmd.AddCommand(connectorCheckCmd)
}
