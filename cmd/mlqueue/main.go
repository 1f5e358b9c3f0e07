package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/mlqueue/server"
	"github.com/cyclopcam/mlqueue/server/configdb"
)

// parseQueueSpec parses name:maxSize:maxBatchSize
func parseQueueSpec(spec string) (*configdb.Queue, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("Queue must be specified as name:maxSize:maxBatchSize (got '%v')", spec)
	}
	maxSize, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("Invalid maxSize '%v'", parts[1])
	}
	maxBatchSize, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("Invalid maxBatchSize '%v'", parts[2])
	}
	return &configdb.Queue{
		Name:         parts[0],
		MaxSize:      maxSize,
		MaxBatchSize: maxBatchSize,
	}, nil
}

func main() {
	parser := argparse.NewParser("mlqueue", "Adaptive frame queue between cameras and batched inference")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "Configuration database file (overrides config file)", Default: ""})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address, eg :8080 (overrides config file)", Default: ""})
	addQueues := parser.StringList("", "add-queue", &argparse.Options{Help: "Create a queue in the config database, as name:maxSize:maxBatchSize"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	if *configFile != "" {
		loaded, err := server.LoadConfig(*configFile)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *dbFile != "" {
		cfg.DB = *dbFile
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	configDB, err := configdb.NewConfigDB(logger, cfg.DB)
	if err != nil {
		logger.Errorf("Failed to open config database: %v", err)
		os.Exit(1)
	}

	for _, spec := range *addQueues {
		q, err := parseQueueSpec(spec)
		if err == nil {
			err = configDB.CreateQueue(q)
		}
		if err != nil {
			logger.Errorf("Failed to add queue: %v", err)
			os.Exit(1)
		}
		logger.Infof("Added queue %v", q.Name)
	}

	srv, err := server.NewServer(logger, cfg, configDB)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()
	if err := srv.StartCameras(); err != nil {
		logger.Warnf("Not all cameras started: %v", err)
	}

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(cfg.Listen)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Close()
		logger.Close()
		os.Exit(1)
	}
	<-srv.ShutdownComplete
	logger.Close()
}
