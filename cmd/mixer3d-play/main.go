// Command mixer3d-play is a small demonstration host for the mixer package:
// it loads a single WAV sample, places it on one Object somewhere in 3D
// space, and plays it through the default audio device via portaudio, with
// an optional simultaneous capture of the mixed output to a timestamped WAV
// file.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"github.com/kemarsound/mixer3d/config"
	"github.com/kemarsound/mixer3d/mixer"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to a mixer3d.yaml config file; built-in defaults are used if omitted.")
		samplePath = pflag.StringP("sample", "s", "", "Path to a 16-bit PCM WAV file to play.")
		x          = pflag.Float64P("x", "x", 1, "Source position X, meters.")
		y          = pflag.Float64P("y", "y", 0, "Source position Y, meters.")
		z          = pflag.Float64P("z", "z", 0, "Source position Z, meters.")
		loop       = pflag.BoolP("loop", "l", false, "Loop the sample instead of playing it once.")
		seconds    = pflag.Float64P("seconds", "t", 5, "How long to run before exiting.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Parse()

	if *help || *samplePath == "" {
		pflag.Usage()
		if *samplePath == "" {
			os.Exit(2)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("loading config", "err", err)
		}
	}
	logger := cfg.BuildLogger()

	sample, err := loadWAVSample(*samplePath)
	if err != nil {
		logger.Fatal("loading sample", "err", err)
	}

	ctx, err := mixer.NewContext(float64(cfg.Audio.SampleRate), cfg.Audio.BlockSize,
		mixer.WithLogger(logger),
		mixer.WithDistanceModel(cfg.DistanceModel()),
	)
	if err != nil {
		logger.Fatal("creating mixer context", "err", err)
	}

	handle := ctx.CreateObject()
	obj, err := ctx.GetObject(handle)
	if err != nil {
		logger.Fatal("fetching object", "err", err)
	}
	obj.SetPosition(mixer.Vector{X: *x, Y: *y, Z: *z})
	opts := mixer.DefaultPlayOptions()
	opts.Loop = *loop
	obj.Play("demo", sample, opts)

	var capture *wavCapture
	if cfg.Logging.Capture != "" {
		capture, err = newWAVCapture(cfg.Logging.Capture, cfg.Audio.SampleRate)
		if err != nil {
			logger.Error("opening capture file; continuing without capture", "err", err)
			capture = nil
		} else {
			defer capture.Close()
		}
	}

	if err := portaudio.Initialize(); err != nil {
		logger.Fatal("initializing portaudio", "err", err)
	}
	defer portaudio.Terminate()

	// Context.Process wants one interleaved buffer; portaudio's non-interleaved
	// callback convention (out[0] is the left channel, out[1] is right, each
	// cfg.Audio.BlockSize samples long) needs a scratch buffer in between.
	interleaved := make([]float32, 2*cfg.Audio.BlockSize)
	callback := func(out [][]float32) {
		if err := ctx.Process(interleaved, cfg.Audio.BlockSize); err != nil {
			logger.Error("process failed; emitting silence", "err", err)
			for ch := range out {
				for i := range out[ch] {
					out[ch][i] = 0
				}
			}
			return
		}
		for i := 0; i < cfg.Audio.BlockSize; i++ {
			out[0][i] = interleaved[2*i]
			out[1][i] = interleaved[2*i+1]
		}
		if capture != nil {
			capture.Write(interleaved)
		}
	}

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(cfg.Audio.SampleRate), cfg.Audio.BlockSize, callback)
	if err != nil {
		logger.Fatal("opening audio stream", "err", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		logger.Fatal("starting audio stream", "err", err)
	}
	defer stream.Stop()

	logger.Info("playing", "sample", *samplePath, "position", []float64{*x, *y, *z}, "loop", *loop)
	time.Sleep(time.Duration(*seconds * float64(time.Second)))
}

// loadWAVSample reads a canonical 16-bit PCM WAV file into a mixer.Sample.
// There is no WAV decoder in this module's dependency tree; the format is a
// small, fixed binary layout, so it is parsed directly.
func loadWAVSample(path string) (*mixer.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("reading riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var format mixer.SampleFormat
	var data []byte

	for {
		chunkHdr := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHdr); err != nil {
			break
		}
		id := string(chunkHdr[0:4])
		size := binary.LittleEndian.Uint32(chunkHdr[4:8])

		body := make([]byte, size)
		if _, err := io.ReadFull(f, body); err != nil {
			return nil, fmt.Errorf("reading %q chunk: %w", id, err)
		}
		if size%2 == 1 {
			f.Seek(1, io.SeekCurrent) // RIFF chunks are word-aligned
		}

		switch id {
		case "fmt ":
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			data = body
		}
	}

	sample, err := mixer.NewSample(format, data)
	if err != nil {
		return nil, err
	}
	return sample, nil
}

// wavCapture mirrors a Process loop's output to a timestamped WAV file,
// finalizing the header's size fields on Close since the total frame count
// isn't known up front.
type wavCapture struct {
	f          *os.File
	sampleRate int
	frames     int
}

func newWAVCapture(dir string, sampleRate int) (*wavCapture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name, err := strftime.Format("capture-%Y%m%d-%H%M%S.wav", time.Now())
	if err != nil {
		return nil, fmt.Errorf("formatting capture filename: %w", err)
	}
	f, err := os.Create(dir + string(os.PathSeparator) + name)
	if err != nil {
		return nil, err
	}
	c := &wavCapture{f: f, sampleRate: sampleRate}
	if _, err := f.Write(make([]byte, 44)); err != nil { // placeholder header
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *wavCapture) Write(stereo []float32) {
	buf := make([]byte, len(stereo)*2)
	for i, v := range stereo {
		s := int16(v * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := c.f.Write(buf); err != nil {
		return
	}
	c.frames += len(stereo) / 2
}

func (c *wavCapture) Close() error {
	dataSize := c.frames * 4 // stereo, 16-bit
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 2)
	binary.LittleEndian.PutUint32(header[24:28], uint32(c.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(c.sampleRate*4))
	binary.LittleEndian.PutUint16(header[32:34], 4)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := c.f.WriteAt(header, 0); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
