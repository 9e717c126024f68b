// Command convert-server serves conversions over TCP, gRPC and ZeroMQ.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/VanDung-dev/root2avro/bridge"
	"github.com/VanDung-dev/root2avro/config"
	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
	"github.com/VanDung-dev/root2avro/root2avro-engine/network"
)

var (
	configPath = kingpin.Flag("config", "TOML configuration file.").Short('c').String()
	tcpAddr    = kingpin.Flag("tcp", "TCP listen address (overrides the config, empty keeps it).").String()
	grpcAddr   = kingpin.Flag("grpc", "gRPC listen address (overrides the config, empty keeps it).").String()
	dumpConfig = kingpin.Flag("dump-config", "Write the effective configuration to this file and exit.").String()
)

func main() {
	kingpin.Version(api.Version)
	kingpin.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert-server: %v\n", err)
		os.Exit(1)
	}
	if *tcpAddr != "" {
		cfg.Server.TCPAddress = *tcpAddr
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddress = *grpcAddr
	}
	if *dumpConfig != "" {
		if err := cfg.Write(*dumpConfig); err != nil {
			fmt.Fprintf(os.Stderr, "convert-server: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert-server: %v\n", err)
		os.Exit(1)
	}

	if err := serve(cfg, log); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
}

func serve(cfg config.Config, log *logrus.Logger) error {
	metrics := api.NewMetrics("root2avro", prometheus.DefaultRegisterer)

	auth := api.NewAuthenticator(cfg.Auth)
	if auth.IsEnabled() && cfg.Auth.Token == "" {
		log.WithField("token", auth.GetToken()).Warn("Authentication enabled without a token; generated one")
	}

	bridgeConfig := cfg.Convert.Bridge()
	bridgeConfig.Observer = metrics
	bridgeConfig.Logger = log
	handler := api.NewConversionHandler(bridge.NewConverter(bridgeConfig), auth, metrics, cfg.Convert.Defaults())

	var stops []func()
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}()

	if addr := cfg.Server.MetricsAddress; addr != "" {
		ms := api.NewMetricsServer(addr, prometheus.DefaultGatherer)
		ms.StartAsync()
		stops = append(stops, func() { _ = ms.Stop() })
		log.WithField("address", addr).Info("Metrics server listening")
	}

	if addr := cfg.Server.TCPAddress; addr != "" {
		tcp := api.NewArrowServer(cfg.Server.TCP(), handler, metrics, log)
		if err := tcp.StartAsync(addr); err != nil {
			return err
		}
		stops = append(stops, tcp.Stop)
		log.WithField("address", tcp.Addr().String()).Info("TCP server listening")
	}

	if addr := cfg.Server.GRPCAddress; addr != "" {
		g := api.NewGRPCServer(api.DefaultGRPCConfig(), handler, metrics, log)
		if err := g.StartAsync(addr); err != nil {
			return err
		}
		stops = append(stops, g.Stop)
	}

	if cfg.Server.ZMQPort > 0 {
		node := network.NewZmqNode("root2avro", cfg.Server.ZMQHost, cfg.Server.ZMQPort, cfg.Server.ZMQ(), handler, metrics, log)
		if err := node.Start(); err != nil {
			return err
		}
		stops = append(stops, node.Stop)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.WithField("signal", sig.String()).Info("Shutting down")
	return nil
}
