package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/logger"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

/*
*
[optimizer]
range_optimizer_max_mem_size = 8388608
max_sel_args                 = 16000
index_merge                  = on
index_merge_union            = on
index_merge_sort_union       = on
mrr                          = on
mrr_buffer_size              = 262144
group_min_max                = on
remove_jump_scans            = on

[logs]
log_error = /var/log/mysql/error.log
log_infos = /var/log/mysql/mysql.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	// optimizer
	RangeOptimizerMaxMemSize int64 `default:"8388608" yaml:"range_optimizer_max_mem_size" json:"range_optimizer_max_mem_size,omitempty"`
	MaxSelArgs               int   `default:"16000" yaml:"max_sel_args" json:"max_sel_args,omitempty"`
	IndexMerge               bool  `default:"true" yaml:"index_merge" json:"index_merge,omitempty"`
	IndexMergeUnion          bool  `default:"true" yaml:"index_merge_union" json:"index_merge_union,omitempty"`
	IndexMergeSortUnion      bool  `default:"true" yaml:"index_merge_sort_union" json:"index_merge_sort_union,omitempty"`
	MRR                      bool  `default:"true" yaml:"mrr" json:"mrr,omitempty"`
	MRRBufferSize            int   `default:"262144" yaml:"mrr_buffer_size" json:"mrr_buffer_size,omitempty"`
	GroupMinMax              bool  `default:"true" yaml:"group_min_max" json:"group_min_max,omitempty"`
	RemoveJumpScans          bool  `default:"true" yaml:"remove_jump_scans" json:"remove_jump_scans,omitempty"`

	// logs
	LogError string `default:"/var/log/mysql/error.log" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"/var/log/mysql/mysql.log" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

// OptimizerSwitch 范围优化器实际消费的开关集合
type OptimizerSwitch struct {
	MaxMemSize          int64
	MaxSelArgs          int
	IndexMerge          bool
	IndexMergeUnion     bool
	IndexMergeSortUnion bool
	MRR                 bool
	MRRBufferSize       int
	GroupMinMax         bool
	RemoveJumpScans     bool
}

// DefaultOptimizerSwitch 默认开关，和 NewCfg 的默认值一致
func DefaultOptimizerSwitch() OptimizerSwitch {
	return NewCfg().OptimizerSwitch()
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:                      ini.Empty(),
		RangeOptimizerMaxMemSize: 8 << 20, // 8MB
		MaxSelArgs:               16000,
		IndexMerge:               true,
		IndexMergeUnion:          true,
		IndexMergeSortUnion:      true,
		MRR:                      true,
		MRRBufferSize:            256 << 10, // 256KB
		GroupMinMax:              true,
		RemoveJumpScans:          true,
		LogError:                 "/var/log/mysql/error.log",
		LogInfos:                 "/var/log/mysql/mysql.log",
		LogLevel:                 "info",
	}
}

// OptimizerSwitch 把配置投影为优化器开关
func (cfg *Cfg) OptimizerSwitch() OptimizerSwitch {
	return OptimizerSwitch{
		MaxMemSize:          cfg.RangeOptimizerMaxMemSize,
		MaxSelArgs:          cfg.MaxSelArgs,
		IndexMerge:          cfg.IndexMerge,
		IndexMergeUnion:     cfg.IndexMerge && cfg.IndexMergeUnion,
		IndexMergeSortUnion: cfg.IndexMerge && cfg.IndexMergeSortUnion,
		MRR:                 cfg.MRR,
		MRRBufferSize:       cfg.MRRBufferSize,
		GroupMinMax:         cfg.GroupMinMax,
		RemoveJumpScans:     cfg.RemoveJumpScans,
	}
}

// Load 加载配置文件，文件不存在时保留默认值
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg.Raw = iniFile

	if err := cfg.parseOptimizerCfg(cfg.Raw.Section("optimizer")); err != nil {
		return nil, errors.Annotatef(err, "section [optimizer]")
	}
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg, nil
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/my.ini"
	if args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("配置文件不存在: %s，使用默认配置", configFile)
		return ini.Empty(), nil
	}

	parsedFile, err := ini.Load(configFile)
	if err != nil {
		return nil, errors.Annotatef(err, "解析配置文件 %s 失败", configFile)
	}

	logger.Debugf("成功加载配置文件: %s", configFile)
	return parsedFile, nil
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) string {
	if section == nil {
		return defaultValue
	}
	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		value = defaultValue
	}
	return value
}

// parseSwitch 解析 on/off 形式的开关
func parseSwitch(section *ini.Section, keyName string, defaultValue bool) (bool, error) {
	if section == nil || !section.HasKey(keyName) {
		return defaultValue, nil
	}
	return switchValue(keyName, section.Key(keyName).String())
}

func switchValue(keyName string, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	default:
		return false, errors.NotValidf("%s=%q", keyName, raw)
	}
}

func (cfg *Cfg) parseOptimizerCfg(section *ini.Section) error {
	if section == nil {
		return nil
	}

	cfg.RangeOptimizerMaxMemSize = section.Key("range_optimizer_max_mem_size").MustInt64(cfg.RangeOptimizerMaxMemSize)
	if cfg.RangeOptimizerMaxMemSize < 0 {
		return errors.NotValidf("range_optimizer_max_mem_size=%d", cfg.RangeOptimizerMaxMemSize)
	}
	cfg.MaxSelArgs = section.Key("max_sel_args").MustInt(cfg.MaxSelArgs)
	cfg.MRRBufferSize = section.Key("mrr_buffer_size").MustInt(cfg.MRRBufferSize)

	switches := []struct {
		key string
		dst *bool
	}{
		{"index_merge", &cfg.IndexMerge},
		{"index_merge_union", &cfg.IndexMergeUnion},
		{"index_merge_sort_union", &cfg.IndexMergeSortUnion},
		{"mrr", &cfg.MRR},
		{"group_min_max", &cfg.GroupMinMax},
		{"remove_jump_scans", &cfg.RemoveJumpScans},
	}
	for _, s := range switches {
		v, err := parseSwitch(section, s.key, *s.dst)
		if err != nil {
			return errors.Trace(err)
		}
		*s.dst = v
	}
	return nil
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	if section == nil {
		return
	}

	cfg.LogError = valueAsString(section, "log_error", cfg.LogError)
	cfg.LogInfos = valueAsString(section, "log_infos", cfg.LogInfos)

	logLevel := strings.ToLower(valueAsString(section, "log_level", cfg.LogLevel))
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		cfg.LogLevel = logLevel
	default:
		logger.Debugf("警告: 无效的日志级别 '%s', 使用默认级别 'info'", logLevel)
		cfg.LogLevel = "info"
	}
}

// GetString 获取配置项的字符串值，key 形如 section.name
func (cfg *Cfg) GetString(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return ""
	}
	return valueAsString(cfg.Raw.Section(parts[0]), strings.Join(parts[1:], "."), "")
}

// GetInt 获取配置项的整数值
func (cfg *Cfg) GetInt(key string) int {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return 0
	}
	return cfg.Raw.Section(parts[0]).Key(strings.Join(parts[1:], ".")).MustInt(0)
}
