// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the broker's configuration. A Config is built once at
// startup and passed by reference to every component that needs it.
package config

import (
	"fmt"
	"os"

	"github.com/taky-project/taky/util/errwrap"

	"gopkg.in/yaml.v2"
)

// Taky holds top-level site identity and persistence-backend selection.
type Taky struct {
	BindIP        string `yaml:"bind_ip"`
	ServerAddress string `yaml:"server_address"`
	RootDir       string `yaml:"root_dir"`
	// Redis selects the external persistence backend. An empty string
	// disables it (in-memory backend); any non-empty value is the
	// backend's connect URI (see Component Design §4.3 for why this
	// backs onto etcd rather than a real Redis connection).
	Redis string `yaml:"redis"`
}

// CotServer holds the CoT listener's own settings.
type CotServer struct {
	Port          int    `yaml:"port"`
	MonIP         string `yaml:"mon_ip"`
	MonPort       int    `yaml:"mon_port"`
	LogCot        string `yaml:"log_cot"`
	MaxPersistTTL int    `yaml:"max_persist_ttl"`
}

// SSL holds the TLS material and policy.
type SSL struct {
	Enabled             bool   `yaml:"enabled"`
	ClientCertRequired  bool   `yaml:"client_cert_required"`
	CA                  string `yaml:"ca"`
	Cert                string `yaml:"cert"`
	Key                 string `yaml:"key"`
	KeyPW               string `yaml:"key_pw"`
	CertDB              string `yaml:"cert_db"`
}

// Metrics holds the Prometheus HTTP listener address.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Config is the full broker configuration.
type Config struct {
	Taky      Taky      `yaml:"taky"`
	CotServer CotServer `yaml:"cot_server"`
	SSL       SSL       `yaml:"ssl"`
	Metrics   Metrics   `yaml:"metrics"`
}

// DefaultMetricsListen matches this codebase's own default metrics bind
// convention.
const DefaultMetricsListen = "127.0.0.1:9233"

// Default returns a Config with every key defaulted per the external
// interface contract.
func Default() *Config {
	return &Config{
		Taky: Taky{
			RootDir: "/var/lib/taky",
		},
		CotServer: CotServer{
			Port:          0, // resolved by applyDefaults
			MonPort:       8087,
			MaxPersistTTL: -1,
		},
		Metrics: Metrics{
			Listen: DefaultMetricsListen,
		},
	}
}

// Load reads and parses a YAML config file at path, applying defaults for
// any key left unset.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errwrap.Wrapf(err, "config: unable to read %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errwrap.Wrapf(err, "config: unable to parse %s", path)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the port-defaulting rule: cot_server.port defaults
// to 8089 when ssl is enabled, else 8087; mon_port defaults to 8087 when ssl
// is enabled.
func (c *Config) applyDefaults() {
	if c.CotServer.Port == 0 {
		if c.SSL.Enabled {
			c.CotServer.Port = 8089
		} else {
			c.CotServer.Port = 8087
		}
	}
	if c.CotServer.MonPort == 0 && c.SSL.Enabled {
		c.CotServer.MonPort = 8087
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
}

func (c *Config) validate() error {
	if c.SSL.Enabled {
		if c.SSL.Cert == "" || c.SSL.Key == "" {
			return fmt.Errorf("config: ssl.enabled requires ssl.cert and ssl.key")
		}
		if c.SSL.ClientCertRequired && c.SSL.CA == "" {
			return fmt.Errorf("config: ssl.client_cert_required requires ssl.ca")
		}
	}
	return nil
}

// MgmtSocketPath returns the path of the management UNIX socket.
func (c *Config) MgmtSocketPath() string {
	return c.Taky.RootDir + "/taky-mgmt.sock"
}

// ExternalPersistenceEnabled reports whether the external key/value backend
// is selected instead of the in-memory one.
func (c *Config) ExternalPersistenceEnabled() bool {
	return c.Taky.Redis != ""
}
