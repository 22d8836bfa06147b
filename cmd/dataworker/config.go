package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DATAWORKER"

type Config struct {
	ID      string        `mapstructure:"id"`
	Debug   bool          `mapstructure:"debug"`
	LogStd  bool          `mapstructure:"logstd"`
	Store   StoreConfig   `mapstructure:"store"`
	OData   ODataConfig   `mapstructure:"odata"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	Dir      string        `mapstructure:"dir"`
	Compress bool          `mapstructure:"compress"`
	Schema   string        `mapstructure:"schema"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ODataConfig struct {
	URI      string         `mapstructure:"uri"`
	User     string         `mapstructure:"user"`
	Password string         `mapstructure:"password"`
	PageSize int            `mapstructure:"pagesize"`
	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"clientid"`
	ClientSecret string `mapstructure:"clientsecret"`
}

type BridgeConfig struct {
	Prefix string `mapstructure:"prefix"`
	Codec  string `mapstructure:"codec"`
	NATS   struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`
	MQTT struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"mqtt"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// every key needs a default, Unmarshal only sees environment values of
// known keys
func defaults(v *viper.Viper) {
	v.SetDefault("id", "")
	v.SetDefault("debug", false)
	v.SetDefault("logstd", false)
	v.SetDefault("store.dir", "/SD/dataworker")
	v.SetDefault("store.compress", false)
	v.SetDefault("store.schema", "")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("odata.uri", "")
	v.SetDefault("odata.user", "")
	v.SetDefault("odata.password", "")
	v.SetDefault("odata.pagesize", 50)
	for _, k := range []string{"url", "realm", "clientid", "clientsecret"} {
		v.SetDefault("odata.keycloak."+k, "")
	}
	v.SetDefault("bridge.prefix", "dataworker")
	v.SetDefault("bridge.codec", "json")
	v.SetDefault("bridge.nats.url", "")
	v.SetDefault("bridge.mqtt.url", "")
	v.SetDefault("metrics.addr", "")
}

// Load reads dataworker.yaml (or file when set), then DATAWORKER_*
// variables, then the flags of fs set on the command line.
func Load(file string, fs *flag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("yaml")
	if len(file) > 0 {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("dataworker")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dataworker")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if len(file) > 0 || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" || f.Name == "version" {
				return
			}
			v.Set(f.Name, f.Value.String())
		})
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
