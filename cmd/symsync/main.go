package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/shockburst/pkg/dsp/processor"
	"github.com/norasector/shockburst/pkg/dsp/slicer"
	"github.com/norasector/shockburst/pkg/dsp/timing"
	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/turbine-common/types"
)

var errEmptyInput = errors.New("no samples in input")

const (
	formatASCII = "ascii"
	formatRaw   = "raw"
)

type options struct {
	SamplesPerSymbol int
	DataRate         int
	ChunkSize        int
	Format           string
	Decode           bool
	DecodeOptions    esb.DecodeOptions
}

type result struct {
	Samples int
	Symbols int
	Packets []*esb.Packet
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	input := flag.String("input", "-", "bit file, one sample per byte (0/1 or '0'/'1'); - reads stdin")
	outputFile := flag.String("output", "-", "recovered symbols; - writes stdout")
	sps := flag.Int("sps", 8, "samples per symbol")
	dataRate := flag.Int("data-rate", 2000000, "symbol rate, only used to label the segments")
	chunk := flag.Int("chunk", 4096, "samples handed to the sampler per segment")
	format := flag.String("format", formatASCII, "output format: ascii or raw")
	decode := flag.Bool("decode", false, "decode Enhanced ShockBurst packets from the recovered symbols")
	addressLength := flag.Int("address-length", 5, "ESB address length in bytes")
	crcLength := flag.Int("crc-length", 2, "ESB CRC length in bytes")
	debug := flag.Bool("debug", false, "debug logging")

	flag.Parse()

	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	in, err := openInput(*input)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("failed to open input")
	}
	defer in.Close()

	out, err := openOutput(*outputFile)
	if err != nil {
		log.Fatal().Err(err).Str("output", *outputFile).Msg("failed to open output")
	}
	defer out.Close()

	decodeOpts := esb.DefaultDecodeOptions()
	decodeOpts.AddressLength = *addressLength
	decodeOpts.CRCLength = *crcLength

	w := bufio.NewWriter(out)
	res, err := run(in, w, options{
		SamplesPerSymbol: *sps,
		DataRate:         *dataRate,
		ChunkSize:        *chunk,
		Format:           *format,
		Decode:           *decode,
		DecodeOptions:    decodeOpts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("symbol recovery failed")
	}
	if err := w.Flush(); err != nil {
		log.Fatal().Err(err).Msg("failed to write output")
	}

	log.Info().Int("samples", res.Samples).Int("symbols", res.Symbols).Int("packets", len(res.Packets)).Msg("done")
	for _, p := range res.Packets {
		fmt.Fprintln(os.Stderr, p.String())
	}
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func openOutput(name string) (io.WriteCloser, error) {
	if name == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(name)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (o options) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.DataRate <= 0 {
		return fmt.Errorf("data rate must be positive, got %d", o.DataRate)
	}
	switch o.Format {
	case formatASCII, formatRaw:
	default:
		return fmt.Errorf("unknown output format %q", o.Format)
	}
	return nil
}

func newChain(o options) (*processor.Processor, error) {
	sampler, err := timing.NewSymbolSampler(o.SamplesPerSymbol)
	if err != nil {
		return nil, err
	}

	inputRate := o.DataRate * o.SamplesPerSymbol

	p := processor.NewProcessor("symsync", "Bits", nil)
	p.AddBlock(processor.NewDSPWorkerBB("normalise", "Normalise", inputRate, inputRate, slicer.NewByteSlicer()))
	p.AddBlock(processor.NewDSPWorkerGeneralBB("symbol_recovery", "Symbol Recovery", inputRate, o.DataRate, sampler))
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

// run recovers symbols from r chunk by chunk and writes them to w.
func run(r io.Reader, w io.Writer, o options) (*result, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	chain, err := newChain(o)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	data = stripSpace(data)
	if len(data) == 0 {
		return nil, errEmptyInput
	}

	res := &result{Samples: len(data)}
	var symbols []byte
	metrics := make(map[string]interface{})

	for i, seg := 0, 0; i < len(data); i, seg = i+o.ChunkSize, seg+1 {
		end := i + o.ChunkSize
		if end > len(data) {
			end = len(data)
		}

		out, err := chain.ProcessBinary(&types.SegmentBinaryBytes{
			SymbolRate:    o.DataRate * o.SamplesPerSymbol,
			Data:          data[i:end],
			SegmentNumber: seg,
		}, metrics)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", seg, err)
		}

		if err := writeSymbols(w, out.Data, o.Format); err != nil {
			return nil, err
		}
		res.Symbols += len(out.Data)
		if o.Decode {
			symbols = append(symbols, out.Data...)
		}
		log.Debug().Int("segment", seg).Int("symbols", len(out.Data)).Interface("metrics", metrics).Msg("processed segment")
	}

	if o.Decode {
		packets, err := esb.DecodeAll(symbols, o.DecodeOptions)
		if err != nil {
			return nil, err
		}
		res.Packets = packets
	}

	return res, nil
}

func writeSymbols(w io.Writer, symbols []byte, format string) error {
	buf := symbols
	if format == formatASCII {
		buf = make([]byte, len(symbols))
		for i, b := range symbols {
			buf[i] = '0' + b
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("error writing symbols: %w", err)
	}
	return nil
}

// stripSpace drops line breaks and other separators from ASCII captures.  Raw 0x00
// and 0x01 samples are not spaces and pass through.
func stripSpace(data []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)
}
