package config

import (
	"fmt"
	"os"
	"time"

	"github.com/norasector/shockburst/pkg/esb"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Device           string `yaml:"device"`
	RecordLocation   string `yaml:"record_location"`
	PlaybackLocation string `yaml:"playback_location"`
	PlaybackLoop     bool   `yaml:"playback_loop"`

	SampleRate       int `yaml:"sample_rate"`
	DataRate         int `yaml:"data_rate"`
	SamplesPerSymbol int `yaml:"samples_per_symbol"`
	// Offset the receiver is tuned away from the channel, keeps the channel
	// clear of the DC spike.
	Offset          int  `yaml:"offset"`
	Bandwidth       int  `yaml:"bandwidth"`
	TransitionWidth int  `yaml:"transition_width"`
	FSKDeviation    int  `yaml:"fsk_deviation"`
	InvertSymbols   bool `yaml:"invert_symbols"`

	HackRF struct {
		LNAGain   int  `yaml:"lna_gain"`
		VGAGain   int  `yaml:"vga_gain"`
		EnableAmp bool `yaml:"enable_amp"`
	} `yaml:"hackrf"`

	Carrier struct {
		AverageLength int `yaml:"average_length"`
		// Threshold is nil when unset, 0 is a valid threshold.
		Threshold *float64 `yaml:"threshold"`
	} `yaml:"carrier"`

	Burst struct {
		MinSamples int `yaml:"min_samples"`
		MaxSymbols int `yaml:"max_symbols"`
	} `yaml:"burst"`

	Decoder struct {
		AddressLength int `yaml:"address_length"`
		CRCLength     int `yaml:"crc_length"`
		// Tries bounds the preamble candidates per burst, 0 tries all of them.
		Tries         *int          `yaml:"tries"`
		Channels      []int         `yaml:"channels,flow"`
		SweepTimeout  time.Duration `yaml:"sweep_timeout"`
		LockedTimeout time.Duration `yaml:"locked_timeout"`
	} `yaml:"decoder"`

	Printer struct {
		Enabled   bool         `yaml:"enabled"`
		Include   []string     `yaml:"include,flow"`
		Exclude   []string     `yaml:"exclude,flow"`
		IgnoreAck bool         `yaml:"ignore_ack"`
		Filters   []esb.Filter `yaml:"filters"`
	} `yaml:"printer"`

	OutputDestinations []OutputDestination `yaml:"output_destinations"`

	VizServer struct {
		Enabled        bool          `yaml:"enabled"`
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
	} `yaml:"viz_server"`

	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads a YAML config file and fills in defaults.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	c.Defaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Defaults fills unset fields with an 18 MS/s, 2 Mbps receiver.
func (c *Config) Defaults() {
	if c.PlaybackLocation != "" {
		c.Device = "file"
	}
	if c.Device == "" {
		c.Device = "hackrf"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 18e6
	}
	if c.DataRate == 0 {
		c.DataRate = 2e6
	}
	if c.SamplesPerSymbol == 0 {
		c.SamplesPerSymbol = c.SampleRate / c.DataRate
	}
	if c.Offset == 0 {
		c.Offset = 3.5e6
	}
	if c.Bandwidth == 0 {
		c.Bandwidth = 3e6
	}
	if c.TransitionWidth == 0 {
		c.TransitionWidth = 300e3
	}
	if c.FSKDeviation == 0 {
		c.FSKDeviation = 300e3
	}
	if c.Carrier.AverageLength == 0 {
		c.Carrier.AverageLength = 50
	}
	if c.Carrier.Threshold == nil {
		threshold := 0.01
		c.Carrier.Threshold = &threshold
	}
	if c.Burst.MinSamples == 0 {
		c.Burst.MinSamples = 500
	}
	if c.Decoder.AddressLength == 0 {
		c.Decoder.AddressLength = 5
	}
	if c.Decoder.CRCLength == 0 {
		c.Decoder.CRCLength = 2
	}
	if c.Decoder.Tries == nil {
		tries := 8
		c.Decoder.Tries = &tries
	}
	if len(c.Decoder.Channels) == 0 {
		c.Decoder.Channels = esb.DefaultChannels()
	}
	if c.Decoder.SweepTimeout == 0 {
		c.Decoder.SweepTimeout = 200 * time.Millisecond
	}
	if c.Decoder.LockedTimeout == 0 {
		c.Decoder.LockedTimeout = 5 * time.Second
	}
	if c.VizServer.Port == 0 {
		c.VizServer.Port = 8080
	}
	if c.VizServer.UpdateInterval == 0 {
		c.VizServer.UpdateInterval = 500 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	switch c.Device {
	case "hackrf", "file":
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	if c.Device == "file" && c.PlaybackLocation == "" {
		return fmt.Errorf("file device needs a playback_location")
	}
	if c.SamplesPerSymbol <= 0 {
		return fmt.Errorf("samples_per_symbol must be positive, got %d", c.SamplesPerSymbol)
	}
	if ifRate := c.DataRate * c.SamplesPerSymbol; ifRate <= 0 || c.SampleRate%ifRate != 0 {
		return fmt.Errorf("sample rate %d is not a multiple of data rate %d * %d samples per symbol", c.SampleRate, c.DataRate, c.SamplesPerSymbol)
	}
	if c.Decoder.CRCLength != 1 && c.Decoder.CRCLength != 2 {
		return fmt.Errorf("crc_length must be 1 or 2, got %d", c.Decoder.CRCLength)
	}
	if len(c.Printer.Include) > 0 && len(c.Printer.Exclude) > 0 {
		return fmt.Errorf("printer include and exclude lists can't be used together")
	}
	for _, f := range c.Printer.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, dest := range c.OutputDestinations {
		if dest.Host == "" || dest.Port <= 0 {
			return fmt.Errorf("invalid output destination %s:%d", dest.Host, dest.Port)
		}
	}
	return nil
}
