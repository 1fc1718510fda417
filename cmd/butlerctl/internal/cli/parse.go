package cli

import (
	"fmt"
	"strconv"
	"strings"

	"AIButler-Chain/sdk/go/butler"
)

// parseOperation reads "target:value[:data][:allow-failure]".
func parseOperation(raw string) (butler.Operation, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return butler.Operation{}, fmt.Errorf("操作格式应为 target:value[:data][:allow-failure]，得到 %q", raw)
	}
	op := butler.Operation{Target: parts[0], Value: parts[1]}
	for _, extra := range parts[2:] {
		switch {
		case extra == "allow-failure":
			op.AllowFailure = true
		case strings.HasPrefix(extra, "0x"):
			op.Data = extra
		default:
			return butler.Operation{}, fmt.Errorf("无法识别的操作字段 %q", extra)
		}
	}
	return op, nil
}

// parseAction reads "type:target[:value[:data]]".
func parseAction(raw string) (butler.Action, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return butler.Action{}, fmt.Errorf("动作格式应为 type:target[:value[:data]]，得到 %q", raw)
	}
	action := butler.Action{Type: parts[0], Target: parts[1]}
	if len(parts) > 2 {
		action.Value = parts[2]
	}
	if len(parts) > 3 {
		action.Data = parts[3]
	}
	return action, nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的编号 %q", raw)
	}
	return id, nil
}
