package schedule

import "AIButler-Chain/internal/ledger"

// ABIJSON 声明定时交易合约的事件与可通过 ABI 调用的方法。
const ABIJSON = `[
  {"type":"function","name":"scheduleTransaction","stateMutability":"payable","inputs":[
    {"name":"target","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"data","type":"bytes"},
    {"name":"executeAfter","type":"uint256"},
    {"name":"executeWindow","type":"uint256"},
    {"name":"description","type":"string"}],"outputs":[{"name":"scheduleId","type":"uint256"}]},
  {"type":"function","name":"executeScheduledTransaction","stateMutability":"nonpayable","inputs":[{"name":"scheduleId","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}]},
  {"type":"function","name":"cancelScheduledTransaction","stateMutability":"nonpayable","inputs":[{"name":"scheduleId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"isReadyToExecute","stateMutability":"view","inputs":[{"name":"scheduleId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"TransactionScheduled","anonymous":false,"inputs":[
    {"name":"scheduleId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"target","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false},
    {"name":"executeAfter","type":"uint256","indexed":false},
    {"name":"executeWindow","type":"uint256","indexed":false},
    {"name":"description","type":"string","indexed":false}]},
  {"type":"event","name":"TransactionExecuted","anonymous":false,"inputs":[
    {"name":"scheduleId","type":"uint256","indexed":true},
    {"name":"executor","type":"address","indexed":true},
    {"name":"success","type":"bool","indexed":false},
    {"name":"returnData","type":"bytes","indexed":false}]},
  {"type":"event","name":"TransactionCancelled","anonymous":false,"inputs":[
    {"name":"scheduleId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"refunded","type":"uint256","indexed":false}]},
  {"type":"event","name":"DelayBoundsUpdated","anonymous":false,"inputs":[
    {"name":"minDelay","type":"uint256","indexed":false},
    {"name":"maxDelay","type":"uint256","indexed":false}]}
]`

// ContractABI 是解析后的 ABIJSON。
var ContractABI = ledger.MustParseABI(ABIJSON)
