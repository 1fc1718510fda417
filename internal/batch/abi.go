package batch

import "AIButler-Chain/internal/ledger"

// ABIJSON 声明批量交易合约的事件与可通过 ABI 调用的方法。
const ABIJSON = `[
  {"type":"function","name":"totalBatchesExecuted","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userBatchCount","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"estimateGas","stateMutability":"pure","inputs":[{"name":"operationCount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"BatchExecuted","anonymous":false,"inputs":[
    {"name":"caller","type":"address","indexed":true},
    {"name":"batchId","type":"uint256","indexed":true},
    {"name":"operationCount","type":"uint256","indexed":false},
    {"name":"successCount","type":"uint256","indexed":false}]},
  {"type":"event","name":"OperationFailed","anonymous":false,"inputs":[
    {"name":"batchId","type":"uint256","indexed":true},
    {"name":"index","type":"uint256","indexed":false},
    {"name":"target","type":"address","indexed":false},
    {"name":"reason","type":"string","indexed":false}]}
]`

// ContractABI 是解析后的 ABIJSON。
var ContractABI = ledger.MustParseABI(ABIJSON)
