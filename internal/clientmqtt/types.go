package clientmqtt

import "time"

type MQTTConf struct {
	ClientID string        // ClientID - уникальное имя клиента для брокеров.
	Schema   string        // Schema - тип подключения.
	Host     string        // Host - адрес MQTT сервера.
	Port     string        // Port - порт MQTT сервера.
	User     string        // User - логин для подключения к MQTT серверу.
	Password string        // Password - пароль для подключения к MQTT серверу.
	Qos      byte          // Qos - качество обслуживания подписки.
	Timeout  time.Duration // Timeout - ожидание подключения и подписки.
}
