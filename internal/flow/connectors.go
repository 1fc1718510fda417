package flow

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/ledger"
)

// RegisterConnector 将 connector 登记为协议 name 的适配器。登记仅供参考，
// 执行动作时不会校验；重复登记同一组合不产生变化。
func (c *Contract) RegisterConnector(env *ledger.Env, name string, connector common.Address) error {
	if err := ledger.RequireNonPayable(env); err != nil {
		return err
	}
	if err := c.OnlyOwner(env); err != nil {
		return err
	}
	if name == "" || connector == (common.Address{}) {
		return ErrInvalidConnector
	}
	if c.connectors[name][connector] {
		return nil
	}

	set, existed := c.connectors[name]
	if !existed {
		set = make(map[common.Address]bool)
		c.connectors[name] = set
	}
	set[connector] = true
	prevOrder := c.connectorOrder[name]
	c.connectorOrder[name] = append(append([]common.Address(nil), prevOrder...), connector)
	env.Journal(func() {
		delete(set, connector)
		if !existed {
			delete(c.connectors, name)
		}
		c.restoreOrder(name, prevOrder)
	})
	return env.EmitEvent(ContractABI, "ConnectorRegistered", name, connector)
}

// UnregisterConnector 移除已登记的连接器。
func (c *Contract) UnregisterConnector(env *ledger.Env, name string, connector common.Address) error {
	if err := ledger.RequireNonPayable(env); err != nil {
		return err
	}
	if err := c.OnlyOwner(env); err != nil {
		return err
	}
	set := c.connectors[name]
	if !set[connector] {
		return ErrConnectorNotFound
	}

	delete(set, connector)
	prevOrder := c.connectorOrder[name]
	next := make([]common.Address, 0, len(prevOrder))
	for _, addr := range prevOrder {
		if addr != connector {
			next = append(next, addr)
		}
	}
	c.connectorOrder[name] = next
	env.Journal(func() {
		set[connector] = true
		c.restoreOrder(name, prevOrder)
	})
	return env.EmitEvent(ContractABI, "ConnectorUnregistered", name, connector)
}

func (c *Contract) restoreOrder(name string, order []common.Address) {
	if order == nil {
		delete(c.connectorOrder, name)
		return
	}
	c.connectorOrder[name] = order
}

// IsConnectorRegistered 判断 connector 是否登记在 name 下。
func (c *Contract) IsConnectorRegistered(name string, connector common.Address) bool {
	var ok bool
	c.ledger.View(func() { ok = c.connectors[name][connector] })
	return ok
}

// Connectors 按登记顺序返回 name 下的连接器。
func (c *Contract) Connectors(name string) []common.Address {
	var out []common.Address
	c.ledger.View(func() {
		out = append([]common.Address(nil), c.connectorOrder[name]...)
	})
	return out
}

// ConnectorNames 返回至少登记了一个连接器的协议名。
func (c *Contract) ConnectorNames() []string {
	var names []string
	c.ledger.View(func() {
		for name, order := range c.connectorOrder {
			if len(order) > 0 {
				names = append(names, name)
			}
		}
	})
	sort.Strings(names)
	return names
}
