package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Pipeline struct {
		Python       string `yaml:"python"`
		ScriptsDir   string `yaml:"scriptsDir"`
		OutputDir    string `yaml:"outputDir"`
		SampleReport string `yaml:"sampleReport"`
	} `yaml:"pipeline"`

	Storage struct {
		Backend string `yaml:"backend"` // "local" or "minio"
	} `yaml:"storage"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		BaseURL string `yaml:"baseURL"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
}

// Load reads the yaml config file and applies environment overrides for
// secrets, so keys never have to live in the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required (openai.apiKey or OPENAI_API_KEY)")
	}
	if cfg.Storage.Backend != "local" && cfg.Storage.Backend != "minio" {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Pipeline.Python == "" {
		c.Pipeline.Python = "python"
	}
	if c.Pipeline.ScriptsDir == "" {
		c.Pipeline.ScriptsDir = "."
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = "output"
	}
	if c.Pipeline.SampleReport == "" {
		c.Pipeline.SampleReport = "dummy_visualization.html"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
}
