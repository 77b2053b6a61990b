package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Decode 将合并后的 map 解码到 out，沿用 yaml tag 和 time.Duration 的解析规则。
// out 中已有的值在 map 未提及的字段上保持不变。
func Decode(merged map[string]any, out any) error {
	var node yaml.Node
	if err := node.Encode(merged); err != nil {
		return fmt.Errorf("failed to encode merged config: %w", err)
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("failed to decode merged config: %w", err)
	}
	return nil
}
