package cli

import (
	"context"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var (
	eventQuery butler.EventQuery
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "账户余额与开发水龙头",
}

var accountBalanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "查询余额",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.Account(ctx, args[0])
		})
	},
}

var accountFundCmd = &cobra.Command{
	Use:   "fund <address> <amount>",
	Short: "通过水龙头充值，服务端需开启 ledger.faucet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.Fund(ctx, args[0], args[1])
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "查询已索引的合约事件",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ListEvents(ctx, eventQuery)
		})
	},
}

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "查看 keeper 执行统计",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.KeeperStats(ctx)
		})
	},
}

var clockCmd = &cobra.Command{
	Use:   "advance-clock <seconds>",
	Short: "推进手动时钟，仅在 ledger.clock 为 manual 时可用",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			now, err := c.AdvanceClock(ctx, seconds)
			return map[string]uint64{"now": now}, err
		})
	},
}

func init() {
	accountCmd.AddCommand(accountBalanceCmd)
	accountCmd.AddCommand(accountFundCmd)

	f := eventsCmd.Flags()
	f.StringVar(&eventQuery.Contract, "contract", "", "合约名称，例如 BatchTransactions")
	f.StringVar(&eventQuery.Event, "event", "", "事件名称")
	f.StringVar(&eventQuery.TxHash, "tx", "", "交易哈希")
	f.Uint64Var(&eventQuery.FromBlock, "from-block", 0, "起始区块")
	f.IntVar(&eventQuery.Limit, "limit", 0, "最大条数")
}
