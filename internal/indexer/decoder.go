package indexer

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "AIButler-Chain/internal/errors"
)

type contractInfo struct {
	name string
	abi  abi.ABI
}

// Decoder 将原始日志按发出合约的 ABI 解码。
type Decoder struct {
	mu        sync.RWMutex
	contracts map[common.Address]contractInfo
}

// NewDecoder 创建空的解码器。
func NewDecoder() *Decoder {
	return &Decoder{contracts: make(map[common.Address]contractInfo)}
}

// Register 登记合约地址及其 ABI。
func (d *Decoder) Register(name string, addr common.Address, contractABI abi.ABI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contracts[addr] = contractInfo{name: name, abi: contractABI}
}

// Decode 解码一条日志。
func (d *Decoder) Decode(log *types.Log) (Record, error) {
	d.mu.RLock()
	info, ok := d.contracts[log.Address]
	d.mu.RUnlock()
	if !ok {
		return Record{}, xerrors.New(CodeUndecodableLog, "unknown contract "+log.Address.Hex())
	}
	if len(log.Topics) == 0 {
		return Record{}, xerrors.New(CodeUndecodableLog, "anonymous log")
	}
	ev, err := info.abi.EventByID(log.Topics[0])
	if err != nil {
		return Record{}, xerrors.Wrap(CodeUndecodableLog, err, "unknown event")
	}

	values := make(map[string]any)
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return Record{}, xerrors.Wrap(CodeUndecodableLog, err, "decode topics of "+ev.Name)
	}
	if len(log.Data) > 0 {
		if err := ev.Inputs.UnpackIntoMap(values, log.Data); err != nil {
			return Record{}, xerrors.Wrap(CodeUndecodableLog, err, "decode data of "+ev.Name)
		}
	}

	fields := make(map[string]string, len(values))
	for k, v := range values {
		fields[k] = formatValue(v)
	}
	return Record{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Contract:    info.name,
		Address:     log.Address,
		Event:       ev.Name,
		Fields:      fields,
	}, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case []byte:
		return hexutil.Encode(val)
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
