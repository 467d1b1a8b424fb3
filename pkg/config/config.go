package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ConfigMode 配置模式
type ConfigMode string

const (
	// ModeLocal 本地配置模式
	ModeLocal ConfigMode = "local"
	// ModeEnv 仅环境变量模式（无配置文件）
	ModeEnv ConfigMode = "env"
)

// Manager 配置管理器
type Manager struct {
	mode      ConfigMode
	viper     *viper.Viper
	envPrefix string
	path      string
}

// NewManager 创建配置管理器，envPrefix 为环境变量前缀（如 COLLECTION）
func NewManager(envPrefix string) *Manager {
	v := viper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	// database.dsn -> COLLECTION_DATABASE_DSN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Manager{
		viper:     v,
		envPrefix: envPrefix,
	}
}

// SetDefault 设置默认值，环境变量覆盖同样对其生效
func (m *Manager) SetDefault(key string, value interface{}) {
	m.viper.SetDefault(key, value)
}

// LoadConfig 加载配置
// configPath 为空或 CONFIG_MODE=env 时只使用默认值与环境变量
func (m *Manager) LoadConfig(configPath string) error {
	mode := os.Getenv("CONFIG_MODE")
	if mode == "" {
		mode = string(ModeLocal)
	}
	m.mode = ConfigMode(strings.ToLower(mode))
	if configPath == "" {
		m.mode = ModeEnv
	}

	switch m.mode {
	case ModeEnv:
		return nil
	case ModeLocal:
		return m.loadFromLocal(configPath)
	default:
		return fmt.Errorf("unsupported config mode: %s", mode)
	}
}

// loadFromLocal 从本地文件加载配置
func (m *Manager) loadFromLocal(configPath string) error {
	m.path = configPath
	m.viper.SetConfigFile(configPath)

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read local config failed: %w", err)
	}
	return nil
}

// Unmarshal 解析配置到结构体
func (m *Manager) Unmarshal(rawVal interface{}) error {
	// AutomaticEnv 只对已知 key 生效，先把所有 key 绑定到环境变量
	for _, key := range m.viper.AllKeys() {
		if err := m.viper.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return m.viper.Unmarshal(rawVal)
}

// UnmarshalKey 解析指定key的配置到结构体
func (m *Manager) UnmarshalKey(key string, rawVal interface{}) error {
	return m.viper.UnmarshalKey(key, rawVal)
}

// GetString 获取字符串配置
func (m *Manager) GetString(key string) string {
	return m.viper.GetString(key)
}

// GetInt 获取整数配置
func (m *Manager) GetInt(key string) int {
	return m.viper.GetInt(key)
}

// GetBool 获取布尔配置
func (m *Manager) GetBool(key string) bool {
	return m.viper.GetBool(key)
}

// GetMode 获取配置模式
func (m *Manager) GetMode() ConfigMode {
	return m.mode
}

// Path 已加载的配置文件路径
func (m *Manager) Path() string {
	return m.path
}
