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

	Database struct {
		// mysql | postgres | memory
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Storage struct {
		// minio | local
		Backend  string `yaml:"backend"`
		LocalDir string `yaml:"localDir"`
		Minio    struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Pipeline struct {
		DecisionThreshold float64 `yaml:"decisionThreshold"`
		LowTrustBand      float64 `yaml:"lowTrustBand"`
		Workers           int     `yaml:"workers"`
		MaxQueueDepth     int     `yaml:"maxQueueDepth"`
		RetryLimit        int     `yaml:"retryLimit"`
		MaxUploadBytes    int64   `yaml:"maxUploadBytes"`

		Image struct {
			ModelPath string `yaml:"modelPath"`
			InputSize int    `yaml:"inputSize"`
		} `yaml:"image"`

		Video struct {
			FrameRate int `yaml:"frameRate"`
			MaxFrames int `yaml:"maxFrames"`
		} `yaml:"video"`

		Audio struct {
			ModelPath          string `yaml:"modelPath"`
			SampleRate         int    `yaml:"sampleRate"`
			WindowSeconds      int    `yaml:"windowSeconds"`
			MaxDurationSeconds int    `yaml:"maxDurationSeconds"`
		} `yaml:"audio"`
	} `yaml:"pipeline"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the yaml config file and applies defaults for anything the
// file leaves out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in the documented defaults. Config is read once
// at process start; there is no hot reload.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./uploads"
	}
	if c.Pipeline.DecisionThreshold == 0 {
		c.Pipeline.DecisionThreshold = 0.5
	}
	if c.Pipeline.LowTrustBand == 0 {
		c.Pipeline.LowTrustBand = 0.05
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 2
	}
	if c.Pipeline.MaxQueueDepth == 0 {
		c.Pipeline.MaxQueueDepth = 64
	}
	if c.Pipeline.RetryLimit == 0 {
		c.Pipeline.RetryLimit = 1
	}
	if c.Pipeline.MaxUploadBytes == 0 {
		c.Pipeline.MaxUploadBytes = 100 << 20
	}
	if c.Pipeline.Image.InputSize == 0 {
		c.Pipeline.Image.InputSize = 224
	}
	if c.Pipeline.Video.FrameRate == 0 {
		c.Pipeline.Video.FrameRate = 1
	}
	if c.Pipeline.Video.MaxFrames == 0 {
		c.Pipeline.Video.MaxFrames = 30
	}
	if c.Pipeline.Audio.SampleRate == 0 {
		c.Pipeline.Audio.SampleRate = 16000
	}
	if c.Pipeline.Audio.WindowSeconds == 0 {
		c.Pipeline.Audio.WindowSeconds = 3
	}
	if c.Pipeline.Audio.MaxDurationSeconds == 0 {
		c.Pipeline.Audio.MaxDurationSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Helper to build MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper to build Postgres DSN
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
