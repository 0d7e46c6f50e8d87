package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rarydzu/monodisk/monodisk/layout"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBlockSize = 128
	DefaultMaxFiles  = 5
	DefaultTotalSize = 128 * 1024
	// MaxBlocksLimit keeps block indexes within the signed 2-byte firstBlock field
	MaxBlocksLimit = 1<<15 - 1
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	//Name filesystem name reported by the stat service and fuse
	Name string `yaml:"name"`
	// Path to the backing disk file
	Path string `yaml:"path"`
	//TotalSize size of the disk in bytes
	TotalSize int `yaml:"totalSize"`
	//BlockSize size of a single block in bytes
	BlockSize int `yaml:"blockSize"`
	//MaxFiles capacity of the file table
	MaxFiles int `yaml:"maxFiles"`
	//SyncWrites fsync the medium after every metadata save
	SyncWrites bool `yaml:"syncWrites"`
	//ListenAddress address of the line protocol listener
	ListenAddress string `yaml:"listenAddress"`
	//WebsocketAddress address of the websocket listener, empty disables it
	WebsocketAddress string `yaml:"websocketAddress"`
	//StatAddress address of the grpc stat server, empty disables it
	StatAddress string `yaml:"statAddress"`
	//Mountpoint filesystem mountpoint, empty disables fuse
	Mountpoint string `yaml:"mountpoint"`
	//ReadOnly mount fuse in read only mode
	ReadOnly bool `yaml:"readOnly"`
	//DebugMode run in debug mode
	DebugMode bool `yaml:"debugMode"`
	//FuseDebug log every fuse operation
	FuseDebug bool `yaml:"fuseDebug"`
	//ShutdownTimeout timeout for shutdown
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	//MinHostFree bytes that must stay free on the host after the disk file is created
	MinHostFree uint64 `yaml:"minHostFree"`
}

// Default returns config with default values
func Default() *Config {
	return &Config{
		Name:            "monodisk",
		Path:            "/tmp/monodisk.img",
		TotalSize:       DefaultTotalSize,
		BlockSize:       DefaultBlockSize,
		MaxFiles:        DefaultMaxFiles,
		SyncWrites:      true,
		ListenAddress:   ":12345",
		ShutdownTimeout: 60 * time.Second,
	}
}

// Load reads a yaml config file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MaxBlocks returns number of blocks on the disk
func (c *Config) MaxBlocks() int {
	return c.TotalSize / c.BlockSize
}

// Validate checks that the disk geometry can be represented on disk
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrInvalidConfig)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("%w: max files %d", ErrInvalidConfig, c.MaxFiles)
	}
	blocks := c.MaxBlocks()
	if blocks > MaxBlocksLimit {
		return fmt.Errorf("%w: %d blocks exceed limit %d", ErrInvalidConfig, blocks, MaxBlocksLimit)
	}
	if meta := layout.MetadataBlocks(c.MaxFiles, blocks, c.BlockSize); meta >= blocks {
		return fmt.Errorf("%w: metadata needs %d of %d blocks, no room for data", ErrInvalidConfig, meta, blocks)
	}
	return nil
}
