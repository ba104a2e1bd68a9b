package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env-default:"local"`
	Telegram struct {
		ApiKey  string `yaml:"api_key" env-default:""`
		AdminId int64  `yaml:"admin_id" env-default:"0"`
		BotName string `yaml:"bot_name" env-default:"StayDeskBot"`
		Enabled bool   `yaml:"enabled" env-default:"false"`
	} `yaml:"telegram"`
	Mongo struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:"staydesk"`
	} `yaml:"mongo"`
	Nats struct {
		URL      string `yaml:"url" env-default:"nats://127.0.0.1:4222"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
	} `yaml:"nats"`
	Auth struct {
		// Secret verifies the HMAC signature of identity tokens issued by
		// the external auth subsystem.
		Secret string `yaml:"secret" env:"AUTH_SECRET" env-default:""`
	} `yaml:"auth"`
	Support struct {
		AssignmentTTL     time.Duration `yaml:"assignment_ttl" env-default:"5m"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval" env-default:"60s"`
		DrainInterval     time.Duration `yaml:"drain_interval" env-default:"30s"`
	} `yaml:"support"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env-default:"9200"`
	} `yaml:"listen"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
