package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/shockburst/pkg/dsp/viz"
	"github.com/norasector/shockburst/pkg/sniffer"
	"github.com/norasector/shockburst/pkg/sniffer/config"
	"github.com/norasector/shockburst/pkg/sniffer/device"
	"github.com/norasector/shockburst/pkg/sniffer/device/file"
	hackrfDevice "github.com/norasector/shockburst/pkg/sniffer/device/hackrf"
	"github.com/norasector/shockburst/pkg/sniffer/output"
	"github.com/norasector/shockburst/pkg/util"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"
)

const (
	fileByteReadSize = 262144
	fileReadDelay    = time.Microsecond * 7282 // 131072 samples at 18 MS/s
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "shockburst.yaml", "YAML config file")
	debug := flag.Bool("debug", false, "log decoded packets and channel hops")

	flag.Parse()

	if *debug {
		log.Logger = log.Logger.Level(zerolog.TraceLevel)
	}

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config file")
	}

	var dev device.Device

	switch opts.Device {
	case "file":
		log.Info().Str("device", "file").Str("location", opts.PlaybackLocation).Msg("initializing device...")
		// Captures are expected to be cs8 as written by a HackRF
		var fileOpts []file.Option
		if opts.PlaybackLoop {
			fileOpts = append(fileOpts, file.WithLoop())
		}
		dev, err = file.NewFileDevice(opts.PlaybackLocation, fileByteReadSize, fileReadDelay, fileOpts...)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
	default:
		log.Info().Str("device", "hackrf").Msg("initializing device...")
		if err := hackrf.Init(); err != nil {
			log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to initialize hackRF")
		}
		defer hackrf.Exit()

		dev, err = hackrfDevice.NewHackRFDevice(hackrfDevice.Options{
			LNAGain:        opts.HackRF.LNAGain,
			VGAGain:        opts.HackRF.VGAGain,
			EnableAmp:      opts.HackRF.EnableAmp,
			RecordLocation: opts.RecordLocation,
		})
		if err != nil {
			log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to create hackRF device")
		}
	}

	var influxWriteAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, "")
		defer client.Close()
		influxWriteAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	var outputs []sniffer.PacketOutput
	if opts.Printer.Enabled || len(opts.OutputDestinations) == 0 {
		outputs = append(outputs, output.NewPrinter(os.Stdout, output.PrinterOptions{
			Include:   opts.Printer.Include,
			Exclude:   opts.Printer.Exclude,
			IgnoreAck: opts.Printer.IgnoreAck,
			Filters:   opts.Printer.Filters,
			Verbose:   *debug,
		}))
	}
	if len(opts.OutputDestinations) > 0 {
		outputs = append(outputs, output.NewUDPOutput(opts.OutputDestinations, influxWriteAPI, log.Logger))
	}

	snifferOpts := sniffer.OptionsFromConfig(opts)
	snifferOpts.Outputs = outputs

	snifferOptions := []sniffer.SnifferOption{
		sniffer.WithInfluxDB(influxWriteAPI),
		sniffer.WithLogger(log.Logger),
	}
	if opts.VizServer.Enabled {
		snifferOptions = append(snifferOptions, sniffer.WithImageServer(viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval)))
	}

	s, err := sniffer.NewSniffer(dev, snifferOpts, snifferOptions...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sniffer")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return s.Stop()
	})

	eg.Go(func() error {
		return s.Start(ctx)
	})

	// a capture running out is a normal end of playback
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		log.Fatal().Err(err).Msg("exited program")
	}
}
