package flow

import "AIButler-Chain/internal/ledger"

// ABIJSON 声明工作流合约的事件与可通过 ABI 调用的方法。
const ABIJSON = `[
  {"type":"function","name":"executeWorkflow","stateMutability":"payable","inputs":[{"name":"workflowId","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}]},
  {"type":"function","name":"cancelWorkflow","stateMutability":"nonpayable","inputs":[{"name":"workflowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"registerConnector","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"connector","type":"address"}],"outputs":[]},
  {"type":"function","name":"isConnectorRegistered","stateMutability":"view","inputs":[{"name":"name","type":"string"},{"name":"connector","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"WorkflowCreated","anonymous":false,"inputs":[
    {"name":"workflowId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"name","type":"string","indexed":false},
    {"name":"actionCount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ActionExecuted","anonymous":false,"inputs":[
    {"name":"workflowId","type":"uint256","indexed":true},
    {"name":"index","type":"uint256","indexed":false},
    {"name":"success","type":"bool","indexed":false}]},
  {"type":"event","name":"WorkflowExecuted","anonymous":false,"inputs":[
    {"name":"workflowId","type":"uint256","indexed":true},
    {"name":"executor","type":"address","indexed":true},
    {"name":"success","type":"bool","indexed":false},
    {"name":"successCount","type":"uint256","indexed":false}]},
  {"type":"event","name":"WorkflowCancelled","anonymous":false,"inputs":[
    {"name":"workflowId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true}]},
  {"type":"event","name":"ConnectorRegistered","anonymous":false,"inputs":[
    {"name":"name","type":"string","indexed":false},
    {"name":"connector","type":"address","indexed":true}]},
  {"type":"event","name":"ConnectorUnregistered","anonymous":false,"inputs":[
    {"name":"name","type":"string","indexed":false},
    {"name":"connector","type":"address","indexed":true}]}
]`

// ContractABI 是解析后的 ABIJSON。
var ContractABI = ledger.MustParseABI(ABIJSON)
