package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	monostat "github.com/rarydzu/monodisk/monoclient/stat"
	"github.com/rarydzu/monodisk/monodisk/config"
	"github.com/rarydzu/monodisk/worker"
	"go.uber.org/zap"
)

var fConfig = flag.String("config", "", "Path to yaml config file.")
var fDiskPath = flag.String("disk_path", "", "Path to the disk file.")
var fTotalSize = flag.Int("total_size", 0, "Size of the disk in bytes.")
var fListen = flag.String("listen", "", "Address of the line protocol listener.")
var fWsAddress = flag.String("ws_address", "", "Address of the websocket listener.")
var fStatServerAddress = flag.String("statAddress", "", "Address of the stat server.")
var fMountPoint = flag.String("mount_point", "", "Path to mount point.")
var fReadOnly = flag.Bool("read_only", false, "Mount in read-only mode.")
var fDev = flag.Bool("dev", false, "Run in development mode")
var fFuseDebug = flag.Bool("fuse_debug", false, "Run in fuse debug mode")
var fStatQuery = flag.Bool("stat_query", false, "Print stats of the server at --statAddress and exit.")
var fCertDir = flag.String("cert_dir", "", "Certificate directory for --stat_query")

// loadConfig reads --config and applies the flags set on the command line on top
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *fConfig != "" {
		var err error
		if cfg, err = config.Load(*fConfig); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "disk_path":
			cfg.Path = *fDiskPath
		case "total_size":
			cfg.TotalSize = *fTotalSize
		case "listen":
			cfg.ListenAddress = *fListen
		case "ws_address":
			cfg.WebsocketAddress = *fWsAddress
		case "statAddress":
			cfg.StatAddress = *fStatServerAddress
		case "mount_point":
			cfg.Mountpoint = *fMountPoint
		case "read_only":
			cfg.ReadOnly = *fReadOnly
		case "dev":
			cfg.DebugMode = *fDev
		case "fuse_debug":
			cfg.FuseDebug = *fFuseDebug
		}
	})
	return cfg, cfg.Validate()
}

func statQuery(cfg *config.Config, sugarlog *zap.SugaredLogger) error {
	if cfg.StatAddress == "" {
		return fmt.Errorf("You must set --statAddress.")
	}
	conn, err := monostat.NewConnection(cfg.StatAddress, *fCertDir, sugarlog)
	if err != nil {
		return err
	}
	client := monostat.New(conn)
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := client.Stat(ctx, cfg.Name)
	if err != nil {
		return err
	}
	fmt.Printf("fs:          %s\n", st.Fs)
	fmt.Printf("block size:  %d\n", st.BlockSize)
	fmt.Printf("blocks:      %d (%d data)\n", st.Blocks, st.DataBlocks)
	fmt.Printf("blocks free: %d\n", st.BlocksFree)
	fmt.Printf("files:       %d/%d\n", st.Files, st.MaxFiles)
	return nil
}

func main() {
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := zap.NewProduction()
	if cfg.DebugMode {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	sugarlog := logger.Sugar()
	defer sugarlog.Sync()

	if *fStatQuery {
		if err := statQuery(cfg, sugarlog); err != nil {
			log.Fatalf("stat: %v", err)
		}
		return
	}

	w, err := worker.New(cfg, sugarlog)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	if err := w.Start(); err != nil {
		log.Fatalf("Start: %v", err)
	}
	if err := w.Wait(); err != nil {
		log.Fatalf("Wait: %v", err)
	}
}
