package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/dumacp/go-dataworker/internal/bridge"
	"github.com/dumacp/go-dataworker/internal/idb"
	"github.com/dumacp/go-dataworker/internal/metrics"
	"github.com/dumacp/go-dataworker/internal/odata"
	"github.com/dumacp/go-dataworker/internal/worker"
	"github.com/dumacp/go-dataworker/pkg/services"
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

const (
	NAME_INSTANCE = "dataworker"
)

const (
	version = "1.0.0"
)

var (
	configFile  string
	showversion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "config file (default ./dataworker.yaml)")
	flag.BoolVar(&showversion, "version", false, "show version")
	flag.String("id", "", "override id for device")
	flag.Bool("debug", false, "debug")
	flag.Bool("logstd", false, "send logs to stdout")
	flag.String("store.dir", "", "directory of the database files")
	flag.Bool("store.compress", false, "zstd compress stored records")
	flag.String("store.schema", "", "schema file (yaml or json) applied at start")
	flag.String("odata.uri", "", "OData entity set uri")
	flag.String("odata.user", "", "username for the OData service")
	flag.String("odata.password", "", "password for the OData service")
	flag.String("odata.keycloak.url", "", "keycloak url")
	flag.String("odata.keycloak.realm", "", "keycloak realm")
	flag.String("odata.keycloak.clientid", "", "client id in keycloak")
	flag.String("odata.keycloak.clientsecret", "", "client secret in keycloak")
	flag.String("bridge.nats.url", "", "nats url, empty disables the nats bridge")
	flag.String("bridge.mqtt.url", "", "mqtt broker url, empty disables the mqtt bridge")
	flag.String("bridge.prefix", "", "subject prefix of the bridges")
	flag.String("bridge.codec", "", "bridge codec: json, msgpack or proto")
	flag.String("metrics.addr", "", "listen address of /metrics")
}

func setupLogs(cfg *Config) {
	if cfg.LogStd {
		for _, l := range []*logs.Logger{logs.LogBuild, logs.LogInfo, logs.LogWarn, logs.LogError} {
			l.SetOutput(os.Stdout)
		}
	}
	if !cfg.Debug {
		logs.LogBuild.SetOutput(io.Discard)
	}
}

func main() {

	flag.Parse()
	if showversion {
		fmt.Printf("version: %s\n", version)
		os.Exit(2)
	}

	cfg, err := Load(configFile, flag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}
	setupLogs(cfg)

	id := Hostname(cfg.ID)
	contxt, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logs.LogError.Fatalln(err)
	}
	if len(cfg.Metrics.Addr) > 0 {
		go serveMetrics(cfg.Metrics.Addr)
	}

	store := idb.NewAdapter(cfg.Store.Dir,
		idb.WithCompression(cfg.Store.Compress),
		idb.WithTimeout(cfg.Store.Timeout))
	if len(cfg.Store.Schema) > 0 {
		schema, err := idb.LoadSchema(cfg.Store.Schema)
		if err != nil {
			logs.LogError.Fatalln(err)
		}
		if err := store.SetSchema(contxt, schema); err != nil {
			logs.LogError.Fatalln(err)
		}
	}

	var tks oauth2.TokenSource
	opts := []odata.Option{odata.WithPageSize(cfg.OData.PageSize)}
	if kc := cfg.OData.Keycloak; len(kc.URL) > 0 {
		ts, cl, err := odata.Token(contxt, cfg.OData.User, cfg.OData.Password, odata.Keycloak{
			URL:          kc.URL,
			Realm:        kc.Realm,
			ClientID:     kc.ClientID,
			ClientSecret: kc.ClientSecret,
		})
		if err != nil {
			logs.LogError.Fatalf("keycloak token: %s", err)
		}
		tks = ts
		opts = append(opts, odata.WithHTTPClient(cl))
	}
	remote := odata.NewClient(opts...)
	if len(cfg.OData.URI) > 0 {
		remote.SetURI(cfg.OData.URI)
	}
	if tks == nil && len(cfg.OData.User) > 0 {
		remote.SetAuthentication(cfg.OData.User, cfg.OData.Password)
	}

	w, err := services.NewWorker(store, remote, worker.WithDebugReports(cfg.Debug))
	if err != nil {
		logs.LogError.Fatalln(err)
	}

	sys := actor.NewActorSystem()
	workerPid, err := sys.Root.SpawnNamed(w.Props(), NAME_INSTANCE)
	if err != nil {
		logs.LogError.Fatalln(err)
	}

	codec, err := bridge.CodecByName(cfg.Bridge.Codec)
	if err != nil {
		logs.LogError.Fatalln(err)
	}
	transports := make([]bridge.Transport, 0)
	if len(cfg.Bridge.NATS.URL) > 0 {
		natsOpts := []nats.Option{nats.Name(id)}
		if tks != nil {
			opt, err := bridge.TokenOpt(tks)
			if err != nil {
				logs.LogError.Fatalln(err)
			}
			natsOpts = append(natsOpts, opt)
		}
		t, err := bridge.NewNATSTransport(cfg.Bridge.NATS.URL, natsOpts...)
		if err != nil {
			logs.LogError.Fatalln(err)
		}
		transports = append(transports, t)
	}
	if len(cfg.Bridge.MQTT.URL) > 0 {
		t, err := bridge.NewMQTTTransport(cfg.Bridge.MQTT.URL, fmt.Sprintf("%s-%d", id, time.Now().Unix()))
		if err != nil {
			logs.LogError.Fatalln(err)
		}
		transports = append(transports, t)
	}
	bridgePids := make([]*actor.PID, 0)
	for i, t := range transports {
		props := actor.PropsFromFunc(services.BridgeActor(t, codec, cfg.Bridge.Prefix, workerPid).Receive)
		pid, err := sys.Root.SpawnNamed(props, fmt.Sprintf("%s-bridge-%d", NAME_INSTANCE, i))
		if err != nil {
			logs.LogError.Fatalln(err)
		}
		bridgePids = append(bridgePids, pid)
	}
	logs.LogInfo.Printf("dataworker %q started, %d bridges", id, len(bridgePids))

	finish := make(chan os.Signal, 1)
	signal.Notify(finish, syscall.SIGINT)
	signal.Notify(finish, syscall.SIGTERM)

	<-finish
	for _, pid := range bridgePids {
		sys.Root.PoisonFuture(pid).Wait()
	}
	for _, t := range transports {
		t.Close()
	}
	sys.Root.PoisonFuture(workerPid).Wait()
	if err := store.Close(); err != nil {
		logs.LogWarn.Printf("close store: %s", err)
	}
	time.Sleep(300 * time.Millisecond)
	log.Print("Finish")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		logs.LogError.Printf("metrics server: %s", err)
	}
}
