package config

import "time"

// Config is the root document shape from spec.md §6: an admin block, a list
// of routers (each owning a client and an interpreter tagged union), and a
// list of servers binding each router to a listen address.
type Config struct {
	Admin         AdminConfig    `mapstructure:"admin"`
	Routers       []RouterConfig `mapstructure:"routers"`
	Log           LogConfig      `mapstructure:"log"`
	BufferSizeKB  int            `mapstructure:"buffer_size_kb"`
}

type AdminConfig struct {
	Addr           string        `mapstructure:"addr"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

// RouterConfig is one `routers[]` entry: a label, the servers that feed it,
// the outbound client config, and the naming interpreter it resolves
// destinations against.
type RouterConfig struct {
	Label       string             `mapstructure:"label"`
	Servers     []ServerConfig     `mapstructure:"servers"`
	Client      ClientConfig       `mapstructure:"client"`
	Interpreter InterpreterConfig  `mapstructure:"interpreter"`
	Pool        PoolConfig         `mapstructure:"pool"`
	Dispatch    DispatchConfig     `mapstructure:"dispatcher"`
}

type ServerConfig struct {
	Addr        string      `mapstructure:"addr"`
	DstName     string      `mapstructure:"dst_name"`
	DstFromSNI  bool        `mapstructure:"dst_from_sni"`
	TLS         *TLSConfig  `mapstructure:"tls"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	ConnTimeout time.Duration `mapstructure:"connect_timeout"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// ClientConfig is the tagged union from spec.md §6: io.l5d.global applies
// Global to every destination; io.l5d.static folds Prefixes by specificity.
type ClientConfig struct {
	Kind     string               `mapstructure:"kind"`
	Global   GlobalClientConfig   `mapstructure:"global"`
	Prefixes []PrefixClientConfig `mapstructure:"prefixes"`
}

type GlobalClientConfig struct {
	TLS               *TLSConfig    `mapstructure:"tls"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	KeepAlive         time.Duration `mapstructure:"keep_alive"`
}

type PrefixClientConfig struct {
	Prefix           string     `mapstructure:"prefix"`
	TLS              *TLSConfig `mapstructure:"tls"`
	ConnectTimeoutMs int64      `mapstructure:"connect_timeout_ms"`
	IdleTimeoutMs    int64      `mapstructure:"idle_timeout_ms"`
}

// InterpreterConfig is the naming-service tagged union: io.l5d.fs is a
// fixed, in-memory address table; io.l5d.stream polls an HTTP naming
// service on an interval.
type InterpreterConfig struct {
	Kind         string                   `mapstructure:"kind"`
	Static       map[string][]StaticAddr  `mapstructure:"static"`
	BaseURL      string                   `mapstructure:"base_url"`
	PollInterval time.Duration            `mapstructure:"poll_interval"`
}

type StaticAddr struct {
	Addr   string  `mapstructure:"addr"`
	Weight float64 `mapstructure:"weight"`
}

type PoolConfig struct {
	FailLimit   int           `mapstructure:"fail_limit"`
	FailPenalty time.Duration `mapstructure:"fail_penalty"`
}

type DispatchConfig struct {
	MaxWaiters     int           `mapstructure:"max_waiters"`
	MinConnections int           `mapstructure:"min_connections"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	FileOutput bool   `mapstructure:"file_output"`
	Pretty     bool   `mapstructure:"pretty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}
