package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"AIButler-Chain/sdk/go/butler"
)

var (
	schedTarget      string
	schedAmount      string
	schedValue       string
	schedData        string
	schedAfter       uint64
	schedIn          time.Duration
	schedWindow      time.Duration
	schedDescription string
	schedCreator     string
	schedReady       bool
	schedLimit       int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "定时交易",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "登记定时交易，金额在执行前由合约托管",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := requireFrom()
		if err != nil {
			return err
		}
		executeAfter := schedAfter
		if schedIn > 0 {
			executeAfter = uint64(time.Now().Add(schedIn).Unix())
		}
		if executeAfter == 0 {
			return errors.New("需要 --execute-after 或 --in")
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ScheduleTransaction(ctx, butler.ScheduleSubmission{
				From:          from,
				Value:         schedValue,
				Target:        schedTarget,
				Amount:        schedAmount,
				Data:          schedData,
				ExecuteAfter:  executeAfter,
				ExecuteWindow: uint64(schedWindow / time.Second),
				Description:   schedDescription,
			})
		})
	},
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看定时交易",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.GetSchedule(ctx, id)
		})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出定时交易，默认列出全部待执行记录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			if schedReady {
				return c.ReadySchedules(ctx, schedLimit)
			}
			return c.ListSchedules(ctx, schedCreator)
		})
	},
}

var scheduleReadyCmd = &cobra.Command{
	Use:   "ready <id>",
	Short: "检查定时交易是否可以执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *butler.Client) (any, error) {
			return c.ScheduleReadiness(ctx, id)
		})
	},
}

var scheduleExecuteCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "触发到期的定时交易，任何账户都可以调用",
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
			return c.ExecuteSchedule(ctx, from, id)
		})
	},
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消待执行的定时交易并退回托管金额",
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
			return c.CancelSchedule(ctx, from, id)
		})
	},
}

func init() {
	f := scheduleCreateCmd.Flags()
	f.StringVar(&schedTarget, "target", "", "目标地址")
	f.StringVar(&schedAmount, "amount", "", "执行时转出的金额")
	f.StringVar(&schedValue, "value", "", "随交易附带的金额，默认等于 amount")
	f.StringVar(&schedData, "data", "", "0x 开头的调用数据")
	f.Uint64Var(&schedAfter, "execute-after", 0, "最早执行时间，unix 秒")
	f.DurationVar(&schedIn, "in", 0, "相对当前时间的延迟，优先于 --execute-after")
	f.DurationVar(&schedWindow, "window", 0, "执行窗口，0 表示不过期")
	f.StringVar(&schedDescription, "description", "", "备注")
	_ = scheduleCreateCmd.MarkFlagRequired("target")

	scheduleListCmd.Flags().StringVar(&schedCreator, "creator", "", "只列出该地址创建的记录")
	scheduleListCmd.Flags().BoolVar(&schedReady, "ready", false, "只列出当前可执行的记录")
	scheduleListCmd.Flags().IntVar(&schedLimit, "limit", 0, "配合 --ready 限制数量")

	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleGetCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleReadyCmd)
	scheduleCmd.AddCommand(scheduleExecuteCmd)
	scheduleCmd.AddCommand(scheduleCancelCmd)
}
