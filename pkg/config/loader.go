package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDir 未指定目录时的配置目录
const DefaultDir = "config"

// LoadConfig 按 base.yaml、<env>.yaml 的顺序叠加配置，后者覆盖前者，
// 最后用 secrets.env 中的值替换 ${NAME} 占位符。
// 缺失的文件直接跳过，目录不存在时返回空 map，由调用方填充默认值。
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = DefaultDir
	}

	merged := make(map[string]any)
	for _, name := range layerFiles(env) {
		layer, err := readLayer(filepath.Join(configDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		overlay(merged, layer)
	}

	secrets, err := readSecrets(filepath.Join(configDir, "secrets.env"))
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}
	if len(secrets) > 0 {
		expandTree(merged, secrets)
	}
	return merged, nil
}

// layerFiles 返回按优先级从低到高排列的 YAML 文件名
func layerFiles(env string) []string {
	files := []string{"base.yaml"}
	if env != "" && env != "base" {
		files = append(files, env+".yaml")
	}
	return files
}

func readLayer(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var layer map[string]any
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, err
	}
	return layer, nil
}

// overlay 把 src 就地合并进 dst，两边都是 map 时递归合并，否则 src 覆盖
func overlay(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			overlay(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			// 复制一份，避免后续合并改写 src
			cp := make(map[string]any, len(srcMap))
			overlay(cp, srcMap)
			v = cp
		}
		dst[k] = v
	}
}

// readSecrets 解析 KEY=VALUE 格式的 secrets.env，支持注释、export 前缀和成对引号
func readSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	secrets := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		secrets[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return secrets, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandTree 就地替换 map 和列表中所有字符串里的 ${NAME}，未知的占位符保持原样
func expandTree(node map[string]any, secrets map[string]string) {
	for k, v := range node {
		node[k] = expandValue(v, secrets)
	}
}

func expandValue(v any, secrets map[string]string) any {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(m string) string {
			if s, ok := secrets[m[2:len(m)-1]]; ok {
				return s
			}
			return m
		})
	case map[string]any:
		expandTree(val, secrets)
		return val
	case []any:
		for i := range val {
			val[i] = expandValue(val[i], secrets)
		}
		return val
	default:
		return v
	}
}
