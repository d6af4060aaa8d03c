package conf

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/pelletier/go-toml"
)

// LoadTOML 从 TOML 文档加载与 ini 相同的一组配置项
//
//	[optimizer]
//	mrr = "off"
//	max_sel_args = 8000
func (cfg *Cfg) LoadTOML(path string) (*Cfg, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "加载 TOML 配置 %s 失败", path)
	}
	if err := cfg.applyTOML(tree); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// LoadTOMLString 解析内存中的 TOML 文本
func (cfg *Cfg) LoadTOMLString(content string) (*Cfg, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, errors.Annotatef(err, "解析 TOML 配置失败")
	}
	if err := cfg.applyTOML(tree); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (cfg *Cfg) applyTOML(tree *toml.Tree) error {
	ints := []struct {
		key string
		set func(int64)
	}{
		{"optimizer.range_optimizer_max_mem_size", func(v int64) { cfg.RangeOptimizerMaxMemSize = v }},
		{"optimizer.max_sel_args", func(v int64) { cfg.MaxSelArgs = int(v) }},
		{"optimizer.mrr_buffer_size", func(v int64) { cfg.MRRBufferSize = int(v) }},
	}
	for _, it := range ints {
		if !tree.Has(it.key) {
			continue
		}
		v, ok := tree.Get(it.key).(int64)
		if !ok {
			return errors.NotValidf("%s=%v", it.key, tree.Get(it.key))
		}
		if v < 0 {
			return errors.NotValidf("%s=%d", it.key, v)
		}
		it.set(v)
	}

	switches := []struct {
		key string
		dst *bool
	}{
		{"optimizer.index_merge", &cfg.IndexMerge},
		{"optimizer.index_merge_union", &cfg.IndexMergeUnion},
		{"optimizer.index_merge_sort_union", &cfg.IndexMergeSortUnion},
		{"optimizer.mrr", &cfg.MRR},
		{"optimizer.group_min_max", &cfg.GroupMinMax},
		{"optimizer.remove_jump_scans", &cfg.RemoveJumpScans},
	}
	for _, s := range switches {
		if !tree.Has(s.key) {
			continue
		}
		switch v := tree.Get(s.key).(type) {
		case bool:
			*s.dst = v
		default:
			b, err := switchValue(s.key, fmt.Sprint(v))
			if err != nil {
				return errors.Trace(err)
			}
			*s.dst = b
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"logs.log_error", &cfg.LogError},
		{"logs.log_infos", &cfg.LogInfos},
		{"logs.log_level", &cfg.LogLevel},
	}
	for _, s := range strs {
		if v, ok := tree.Get(s.key).(string); ok && v != "" {
			*s.dst = v
		}
	}
	return nil
}
