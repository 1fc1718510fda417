package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var (
	wfName         string
	wfActions      []string
	wfAllowPartial bool
	wfExecute      bool
	wfValue        string
	wfCreator      string
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "工作流",
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建工作流，--execute 时在同一交易内执行",
	Long: `创建由 --action 组成的工作流。

动作格式: type:target[:value[:data]]，type 为 transfer、swap、stake、lend、borrow 或 custom。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		actions := make([]butler.Action, 0, len(wfActions))
		for _, raw := range wfActions {
			action, err := parseAction(raw)
			if err != nil {
				return err
			}
			actions = append(actions, action)
		}
		req := butler.WorkflowSubmission{
			From:                from,
			Name:                wfName,
			AllowPartialFailure: wfAllowPartial,
			Actions:             actions,
			Value:               wfValue,
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			if wfExecute {
				return c.CreateAndExecuteWorkflow(ctx, req)
			}
			return c.CreateWorkflow(ctx, req)
		})
	},
}

var workflowGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看工作流",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.GetWorkflow(ctx, id)
		})
	},
}

var workflowActionCmd = &cobra.Command{
	Use:   "action <id> <index>",
	Short: "查看工作流中的单个动作",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.GetWorkflowAction(ctx, id, index)
		})
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出某地址创建的工作流",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		creator := wfCreator
		if creator == "" {
			creator = fromAddr
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ListWorkflows(ctx, creator)
		})
	},
}

var workflowExecuteCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "执行待处理的工作流，仅创建者可调用",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ExecuteWorkflow(ctx, from, id, wfValue)
		})
	},
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消待处理的工作流",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.CancelWorkflow(ctx, from, id)
		})
	},
}

func init() {
	f := workflowCreateCmd.Flags()
	f.StringVar(&wfName, "name", "", "工作流名称")
	f.StringArrayVar(&wfActions, "action", nil, "动作，可重复指定")
	f.BoolVar(&wfAllowPartial, "allow-partial", false, "允许部分动作失败")
	f.BoolVar(&wfExecute, "execute", false, "创建后立即执行")
	f.StringVar(&wfValue, "value", "", "配合 --execute 附带的金额")
	_ = workflowCreateCmd.MarkFlagRequired("action")

	workflowExecuteCmd.Flags().StringVar(&wfValue, "value", "", "随交易附带的金额")
	workflowListCmd.Flags().StringVar(&wfCreator, "creator", "", "创建者地址，默认使用 --from")

	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowGetCmd)
	workflowCmd.AddCommand(workflowActionCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowExecuteCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
}
