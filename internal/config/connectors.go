package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	xerrors "AIButler-Chain/internal/errors"
)

// ConnectorDefinitions 对应 connectors.yaml 的结构。
type ConnectorDefinitions struct {
	Connectors []ConnectorDefinition `yaml:"connectors"`
}

// ConnectorDefinition 描述一个需要在启动时登记的协议连接器。
type ConnectorDefinition struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Description string `yaml:"description"`
}

// ConnectorSeed 是解析后的连接器。
type ConnectorSeed struct {
	Name    string
	Address common.Address
}

// LoadConnectors 解析连接器种子文件，路径为空时返回空列表。
func LoadConnectors(path string) ([]ConnectorSeed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取连接器配置失败")
	}
	var defs ConnectorDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析连接器配置失败")
	}

	seeds := make([]ConnectorSeed, 0, len(defs.Connectors))
	for i, def := range defs.Connectors {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("第 %d 个连接器缺少名称", i+1))
		}
		addr, err := parseAddress("connectors."+name, def.Address)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, ConnectorSeed{Name: name, Address: addr})
	}
	return seeds, nil
}
