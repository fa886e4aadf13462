package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config структура конфигурации.
type Config struct {
	Logger     LogConf        // Logger - конфигурация регистратора.
	MQTT       MQTTConf       // MQTT - конфигурация канала событий пульта.
	WebSocket  WebSocketConf  // WebSocket - конфигурация сервера сессий.
	Controller ControllerConf // Controller - конфигурация контроллера освещения.
	Presets    PresetsConf    // Presets - хранилище пресетов.
	Fade       FadeConf       // Fade - параметры плавного перехода.
	Dimmers    DimmersConf    // Dimmers - каналы, масштабируемые мастером.
}

// LogConf структура конфигурации.
type LogConf struct {
	Level string `toml:"log-level"` // Level - уровень логирования.
}

// MQTTConf структура конфигурации.
type MQTTConf struct {
	ClientID       string   `toml:"clientID"`        // ClientID - имя клиента.
	Host           string   `toml:"server"`          // Host - адрес MQTT сервера.
	Port           string   `toml:"port"`            // Port - порт MQTT сервера.
	User           string   `toml:"user"`            // User - логин для подключения к MQTT серверу.
	Password       string   `toml:"password"`        // Password - пароль для подключения к MQTT серверу.
	Qos            byte     `toml:"qos"`             // Qos - качество обслуживания.
	Topic          string   `toml:"topic"`           // Topic - топик событий фейдеров.
	ReconnectDelay Duration `toml:"reconnect-delay"` // ReconnectDelay - пауза перед переподключением.
	PollInterval   Duration `toml:"poll-interval"`   // PollInterval - период опроса цикла подписки.
}

// WebSocketConf структура конфигурации.
type WebSocketConf struct {
	Listen       string   `toml:"listen"`        // Listen - адрес сервера.
	PingInterval Duration `toml:"ping-interval"` // PingInterval - период ping.
	PongTimeout  Duration `toml:"pong-timeout"`  // PongTimeout - ожидание pong.
	SendBuffer   int      `toml:"send-buffer"`   // SendBuffer - очередь исходящих сообщений сессии.
}

// ControllerConf структура конфигурации.
type ControllerConf struct {
	Driver   string   `toml:"driver"`   // Driver - "tcp" или "artnet".
	Address  string   `toml:"address"`  // Address - адрес секвенсора (tcp).
	Timeout  Duration `toml:"timeout"`  // Timeout - таймаут соединения (tcp).
	Universe uint16   `toml:"universe"` // Universe - вселенная Art-Net.
	Network  string   `toml:"network"`  // Network - подсеть Art-Net (CIDR).
}

// PresetsConf структура конфигурации.
type PresetsConf struct {
	Path string `toml:"path"` // Path - путь к базе sqlite.
}

// FadeConf структура конфигурации.
type FadeConf struct {
	Stages   int      `toml:"stages"`   // Stages - число шагов перехода.
	Interval Duration `toml:"interval"` // Interval - пауза между кадрами.
}

// DimmersConf структура конфигурации.
type DimmersConf struct {
	Channels []int `toml:"channels"` // Channels - пусто = таблица по умолчанию.
}

// Duration is a time.Duration decoded from a TOML string such as "30ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when a key is missing from the file.
func Default() Config {
	return Config{
		Logger: LogConf{Level: "info"},
		MQTT: MQTTConf{
			ClientID:       "webdmx",
			Host:           "127.0.0.1",
			Port:           "1883",
			Topic:          "fader",
			ReconnectDelay: Duration{time.Second},
			PollInterval:   Duration{10 * time.Second},
		},
		WebSocket: WebSocketConf{
			Listen:       "0.0.0.0:31501",
			PingInterval: Duration{30 * time.Second},
			PongTimeout:  Duration{10 * time.Second},
			SendBuffer:   64,
		},
		Controller: ControllerConf{
			Driver:  "tcp",
			Address: "127.0.0.1:60877",
			Timeout: Duration{2 * time.Second},
			Network: "192.168.6.0/24",
		},
		Presets: PresetsConf{Path: "dmx.sqlite3"},
		Fade: FadeConf{
			Stages:   50,
			Interval: Duration{30 * time.Millisecond},
		},
	}
}

// NewConfig конструктор.
func NewConfig(path string) (*Config, error) {
	// default values
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}
