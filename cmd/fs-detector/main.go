package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"FlowSentry/internal/alert"
	"FlowSentry/internal/api"
	"FlowSentry/internal/config"
	"FlowSentry/internal/detlog"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/engine/protocol"
	"FlowSentry/internal/ensemble"
	"FlowSentry/internal/model"
	"FlowSentry/internal/notification"
	"FlowSentry/internal/pipeline"
	"FlowSentry/internal/sink"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Capture interface (overrides the config file).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}
	if cfg.Capture.Interface == "" {
		log.Fatalf("No capture interface configured: set capture.interface or pass -iface")
	}

	ens, err := ensemble.Load(cfg.Detector.ModelsDir)
	if err != nil {
		log.Fatalf("Failed to load model ensemble: %v", err)
	}
	log.Printf("Ensemble ready with models: %v", ens.Models())

	logger, err := detlog.New(cfg.Log.Path)
	if err != nil {
		log.Fatalf("Failed to open detection log: %v", err)
	}

	dispatcher := sink.NewDispatcher(buildSinks(cfg), cfg.Sinks.QueueSize)
	dispatcher.Start()

	var notifier model.Notifier
	if cfg.Alert.Enabled && cfg.Alert.SMTP.Host != "" {
		notifier = notification.NewEmailNotifier(cfg.Alert.SMTP)
		log.Println("Email notifier enabled for HIGH severity alerts.")
	}
	alerter := alert.New(cfg.AlertCooldown(), notifier)

	table := flowtable.New(cfg.Detector.NumShards, flowtable.ParseProtocolFilter(cfg.Capture.Protocol))

	pipe := pipeline.New(pipeline.Options{
		Threshold:       cfg.Threshold(),
		VoteK:           cfg.Detector.VoteK,
		SelectedModels:  cfg.SelectedModels(),
		FlowTimeout:     cfg.FlowTimeout(),
		ExpireInterval:  cfg.ExpireInterval(),
		FinalizeWorkers: cfg.Detector.FinalizeWorkers,
		Verbose:         cfg.Detector.Verbose,
	}, table, ens, alerter, logger, dispatcher)
	pipe.Start()

	var statusAPI *api.Server
	if cfg.API.Enabled {
		statusAPI = api.NewServer(cfg.API.ListenAddr, pipe)
		statusAPI.Start()
	}

	handle, err := pcap.OpenLive(cfg.Capture.Interface, cfg.Capture.SnapshotLen, cfg.Capture.Promiscuous, pcap.BlockForever)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", cfg.Capture.Interface, err)
	}
	if err := handle.SetBPFFilter(cfg.BPFFilter()); err != nil {
		log.Fatalf("Error setting BPF filter %q: %v", cfg.BPFFilter(), err)
	}
	log.Printf("Capture started on %s (filter: %s)", cfg.Capture.Interface, cfg.BPFFilter())

	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		for packet := range packetSource.Packets() {
			info, err := protocol.ParsePacket(packet)
			if err != nil {
				continue // Skip non-IPv4 / non-TCP/UDP packets
			}
			pipe.Input() <- info
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")

	handle.Close()
	<-captureDone

	pipe.Stop()
	if statusAPI != nil {
		statusAPI.Stop()
	}
	if err := logger.Close(); err != nil {
		log.Printf("Warning: closing detection log: %v", err)
	}
	log.Println("Shutdown complete.")
}

// buildSinks instantiates every enabled export sink. A sink that fails to
// connect is skipped with a warning so detection can still start.
func buildSinks(cfg *config.Config) []model.Sink {
	var sinks []model.Sink

	if cfg.Sinks.NATS.Enabled {
		s, err := sink.NewNATSSink(cfg.Sinks.NATS)
		if err != nil {
			log.Printf("Warning: NATS sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Sinks.HTTP.Enabled {
		sinks = append(sinks, sink.NewHTTPSink(cfg.Sinks.HTTP))
	}
	if cfg.Sinks.AMQP.Enabled {
		s, err := sink.NewAMQPSink(cfg.Sinks.AMQP)
		if err != nil {
			log.Printf("Warning: AMQP sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Sinks.ClickHouse.Enabled {
		s, err := sink.NewClickHouseSink(cfg.Sinks.ClickHouse)
		if err != nil {
			log.Printf("Warning: ClickHouse sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}
