package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var (
	batchValue      string
	batchOps        []string
	batchRequireAll bool
	statsAddress    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "批量交易",
}

var batchExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "在一笔交易内执行多个调用",
	Long: `按顺序执行 --op 指定的调用。附带金额必须覆盖所有操作的金额，未使用部分原路退回。

操作格式: target:value[:data][:allow-failure]`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		ops := make([]butler.Operation, 0, len(batchOps))
		for _, raw := range batchOps {
			op, err := parseOperation(raw)
			if err != nil {
				return err
			}
			ops = append(ops, op)
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ExecuteBatch(ctx, butler.BatchSubmission{
				From:              from,
				Value:             batchValue,
				RequireAllSuccess: batchRequireAll,
				Operations:        ops,
			})
		})
	},
}

var batchEstimateCmd = &cobra.Command{
	Use:   "estimate <operation-count>",
	Short: "预估批量交易 gas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			gas, err := c.EstimateGas(ctx, n)
			return map[string]uint64{"gas": gas}, err
		})
	},
}

var batchStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查看批量交易计数",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.BatchStats(ctx, statsAddress)
		})
	},
}

func init() {
	batchExecCmd.Flags().StringVar(&batchValue, "value", "", "随交易附带的金额")
	batchExecCmd.Flags().StringArrayVar(&batchOps, "op", nil, "操作，可重复指定")
	batchExecCmd.Flags().BoolVar(&batchRequireAll, "require-all", false, "任一未标记 allow-failure 的操作失败即整体回滚")
	_ = batchExecCmd.MarkFlagRequired("op")

	batchStatsCmd.Flags().StringVar(&statsAddress, "address", "", "同时返回该地址的批量交易次数")

	batchCmd.AddCommand(batchExecCmd)
	batchCmd.AddCommand(batchEstimateCmd)
	batchCmd.AddCommand(batchStatsCmd)
}
