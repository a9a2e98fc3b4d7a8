package setup

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/Sarthakshelke9895/Cloud/persistence"
	"github.com/Sarthakshelke9895/Cloud/server"
	"github.com/Sarthakshelke9895/Cloud/sharding"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile     = "config_file"
	EnvDBURL          = "db_url"
	EnvLogLevel       = "log_level"
	EnvListen         = "listen"
	EnvRequestTimeout = "request_timeout"
	EnvChunkSize      = "chunk_size"
	EnvMaxUploadSize  = "max_upload_size"
	EnvClientOrigin   = "client_origin"
	EnvCORSOrigins    = "cors_origins"
	EnvZipkinURL      = "zipkin_url"
	EnvGCInterval     = "gc_interval"
	EnvGCGrace        = "gc_grace"
	EnvShardCount     = "shard_count"
)

var flagHelp = map[string]string{
	EnvConfigFile:     "YAML file with configuration keys",
	EnvDBURL:          "storage URL: inmem:, sqlite3://<path> or mysql://<dsn>",
	EnvLogLevel:       "log level (debug, info, warn, error)",
	EnvListen:         "HTTP listen address",
	EnvRequestTimeout: "timeout of non-streaming requests in ms",
	EnvChunkSize:      "bytes per stored chunk",
	EnvMaxUploadSize:  "largest accepted upload in bytes",
	EnvClientOrigin:   "origin of the web client used in share links",
	EnvCORSOrigins:    "comma separated allowed CORS origins",
	EnvZipkinURL:      "zipkin span collector URL, empty disables zipkin",
	EnvGCInterval:     "orphaned chunk sweep interval in ms, 0 disables",
	EnvGCGrace:        "age in ms before unreferenced chunks are collected",
	EnvShardCount:     "lock shards of the in-memory store",
}

var (
	configMu sync.RWMutex
	defaults = make(map[string]string)
)

var log = logrus.New().WithField("logger", "setup")

func canonKey(key string) string {
	return strings.Replace(strings.Replace(strings.ToLower(key), "-", "_", -1), ".", "_", -1)
}

func flagName(key string) string {
	return strings.Replace(key, "_", "-", -1)
}

func SetDefault(key string, value string) {
	configMu.Lock()
	defer configMu.Unlock()
	defaults[canonKey(key)] = value
}

func GetString(key string) string {
	configMu.RLock()
	defer configMu.RUnlock()
	return defaults[canonKey(key)]
}

func GetInteger(key string) int {
	if valueStr := GetString(key); len(valueStr) > 0 {
		val, err := strconv.Atoi(valueStr)
		if err != nil {
			panic(fmt.Sprintf("Value of key %s is not a number", key))
		}
		return val
	}
	panic(fmt.Sprintf("Missing required key %s", key))
}

func GetInt64(key string) int64 {
	if valueStr := GetString(key); len(valueStr) > 0 {
		val, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			panic(fmt.Sprintf("Value of key %s is not a number", key))
		}
		return val
	}
	panic(fmt.Sprintf("Missing required key %s", key))
}

func GetDurationMs(key string) time.Duration {
	strVal := GetString(key)
	val, err := strconv.ParseUint(strVal, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("Invalid value '%s' for config key '%s' - couldn't parse as int", strVal, key))
	}
	return time.Millisecond * time.Duration(val)
}

// GetList splits a comma separated value, dropping empty entries
func GetList(key string) []string {
	var list []string
	for _, v := range strings.Split(GetString(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func setDefaults() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	// Replace back slashes in case this is windows
	cwd = strings.Replace(cwd, "\\", "/", -1)

	configMu.Lock()
	defaults = make(map[string]string)
	configMu.Unlock()

	SetDefault(EnvLogLevel, "info")
	SetDefault(EnvDBURL, fmt.Sprintf("sqlite3://%s/data/cloud.db", cwd))
	SetDefault(EnvListen, ":8081")
	SetDefault(EnvRequestTimeout, "60000")
	SetDefault(EnvChunkSize, strconv.Itoa(255*1024))
	SetDefault(EnvMaxUploadSize, strconv.FormatInt(blobs.DefaultMaxBlobSize, 10))
	SetDefault(EnvClientOrigin, "http://localhost:3000")
	SetDefault(EnvCORSOrigins, "*")
	SetDefault(EnvZipkinURL, "")
	SetDefault(EnvGCInterval, "600000")
	SetDefault(EnvGCGrace, "3600000")
	SetDefault(EnvShardCount, "16")
	SetDefault(EnvConfigFile, "")
	return nil
}

func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	values := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	for k, v := range values {
		switch val := v.(type) {
		case nil:
			SetDefault(k, "")
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			SetDefault(k, strings.Join(items, ","))
		case map[string]interface{}:
			return fmt.Errorf("config file %s: key %s must not be a mapping", path, k)
		default:
			SetDefault(k, fmt.Sprint(val))
		}
	}
	return nil
}

// LoadConfig fills the configuration from defaults, the optional YAML
// config file, the environment and finally command line flags
func LoadConfig(args []string) error {
	if err := setDefaults(); err != nil {
		return err
	}

	flags := pflag.NewFlagSet("cloud", pflag.ContinueOnError)
	keys := make([]string, 0, len(flagHelp))
	for key := range flagHelp {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		flags.String(flagName(key), GetString(key), flagHelp[key])
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	env := make(map[string]string)
	for _, v := range os.Environ() {
		vals := strings.SplitN(v, "=", 2)
		if len(vals) == 2 {
			env[canonKey(vals[0])] = vals[1]
		}
	}

	configFile := GetString(EnvConfigFile)
	if v, ok := env[EnvConfigFile]; ok {
		configFile = v
	}
	if f := flags.Lookup(flagName(EnvConfigFile)); f.Changed {
		configFile = f.Value.String()
	}
	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return err
		}
	}

	for k, v := range env {
		SetDefault(k, v)
	}
	flags.Visit(func(f *pflag.Flag) {
		SetDefault(f.Name, f.Value.String())
	})
	return nil
}

// App is a configured blob service ready to run
type App struct {
	Server     *server.Server
	Service    *blobs.Service
	store      blobs.Store
	tracer     io.Closer
	gcInterval time.Duration
	gcGrace    time.Duration
}

// InitFromConfig builds the store, service and server from the loaded configuration
func InitFromConfig() (*App, error) {
	logLevel, err := logrus.ParseLevel(GetString(EnvLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", GetString(EnvLogLevel), err)
	}
	logrus.SetLevel(logLevel)

	gin.SetMode(gin.ReleaseMode)
	if logLevel == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	}

	tracer, err := server.SetupTracer(GetString(EnvListen), GetString(EnvZipkinURL))
	if err != nil {
		return nil, err
	}

	store, err := InitStorageFromConfig()
	if err != nil {
		tracer.Close()
		return nil, err
	}

	index := blobs.NewStreamingIndex(store)
	service := blobs.NewService(store, index,
		blobs.WithChunkSize(GetInteger(EnvChunkSize)),
		blobs.WithMaxBlobSize(GetInt64(EnvMaxUploadSize)),
	)

	srv, err := server.New(service, index.GetEventStream(), server.Config{
		Listen:         GetString(EnvListen),
		ClientOrigin:   GetString(EnvClientOrigin),
		CORSOrigins:    GetList(EnvCORSOrigins),
		RequestTimeout: GetDurationMs(EnvRequestTimeout),
	})
	if err != nil {
		store.Close()
		tracer.Close()
		return nil, err
	}

	return &App{
		Server:     srv,
		Service:    service,
		store:      store,
		tracer:     tracer,
		gcInterval: GetDurationMs(EnvGCInterval),
		gcGrace:    GetDurationMs(EnvGCGrace),
	}, nil
}

// InitStorageFromConfig opens the store named by db_url
func InitStorageFromConfig() (blobs.Store, error) {
	dbURL := GetString(EnvDBURL)
	if dbURL == "inmem" || strings.HasPrefix(dbURL, "inmem:") {
		log.Info("Using in-memory blob store")
		return blobs.NewInMemBlobStore(sharding.NewFixedSizeExtractor(GetInteger(EnvShardCount))), nil
	}

	dbConn, err := persistence.CreateDBConnection(dbURL)
	if err != nil {
		return nil, err
	}
	store, err := blobs.NewSQLBlobStore(dbConn)
	if err != nil {
		dbConn.Close()
		return nil, err
	}
	return store, nil
}

// Run serves requests and sweeps orphaned chunks until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.gcInterval > 0 {
		log.WithField("gc_interval", a.gcInterval).WithField("gc_grace", a.gcGrace).Info("Starting orphaned chunk collector")
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Service.RunGarbageCollector(ctx, a.gcInterval, a.gcGrace, server.GarbageCollected)
		}()
	}

	err := a.Server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close releases the store and flushes the tracer
func (a *App) Close() error {
	err := a.store.Close()
	if tErr := a.tracer.Close(); tErr != nil && err == nil {
		err = tErr
	}
	return err
}
