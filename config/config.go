// Package config loads the service's TOML configuration, following the
// layout described in the external interfaces section of the design: one
// file, overridable by the CONFIG_FILE_PATH environment variable.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Log struct {
	Level string `toml:"level"`
}

type Server struct {
	Port             int    `toml:"port"`
	CertFile         string `toml:"cert_file"`
	KeyFile          string `toml:"key_file"`
	GracefulShutdown int    `toml:"graceful_shutdown"` // seconds
}

type Scylla struct {
	Nodes    []string `toml:"nodes"`
	Keyspace string   `toml:"keyspace"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
}

type Qdrant struct {
	Addr       string `toml:"url"`
	APIKey     string `toml:"api_key"`
	Collection string `toml:"collection"`
}

type Redis struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	MaxConnections int    `toml:"max_connections"`
}

type Agent struct {
	ClientPEMFile      string `toml:"client_pem_file"`
	ClientRootCertFile string `toml:"client_root_cert_file"`
}

type OpenAI struct {
	Disable      bool   `toml:"disable"`
	AgentEndpoint string `toml:"agent_endpoint"`
	APIKey       string `toml:"api_key"`
	OrgID        string `toml:"org_id"`
}

type AzureAI struct {
	Disable        bool   `toml:"disable"`
	AgentEndpoint  string `toml:"agent_endpoint"`
	ResourceName   string `toml:"resource_name"`
	APIKey         string `toml:"api_key"`
	APIVersion     string `toml:"api_version"`
	EmbeddingModel string `toml:"embedding_model"`
	ChatModel      string `toml:"chat_model"`
	GPT4ChatModel  string `toml:"gpt4_chat_model"`
}

type AI struct {
	Agent    Agent     `toml:"agent"`
	OpenAI   OpenAI    `toml:"openai"`
	AzureAIs []AzureAI `toml:"azureais"`
}

type Conf struct {
	Env    string `toml:"env"`
	Log    Log    `toml:"log"`
	Server Server `toml:"server"`
	Scylla Scylla `toml:"scylla"`
	Qdrant Qdrant `toml:"qdrant"`
	Redis  Redis  `toml:"redis"`
	AI     AI     `toml:"ai"`
}

const defaultPath = "./config/default.toml"

// New loads the config file named by CONFIG_FILE_PATH, or defaultPath when
// the variable is unset.
func New() (*Conf, error) {
	path := os.Getenv("CONFIG_FILE_PATH")
	if path == "" {
		path = defaultPath
	}
	return FromFile(path)
}

// FromFile loads and parses a single TOML config file.
func FromFile(path string) (*Conf, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Conf
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
