// Command mixer3d-tone writes a single-frequency test tone to a WAV file, for
// feeding into mixer3d-play or into mixer.NewSample directly while developing
// against the library without a real sound asset on hand.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

func main() {
	var (
		freq       = pflag.Float64P("freq", "f", 440.0, "Tone frequency in Hz.")
		duration   = pflag.Float64P("duration", "d", 1.0, "Tone duration in seconds.")
		sampleRate = pflag.IntP("rate", "r", 44100, "Sample rate in Hz.")
		channels   = pflag.IntP("channels", "c", 1, "Number of channels, 1 or 2.")
		amplitude  = pflag.Float64P("amplitude", "a", 0.8, "Peak amplitude, 0..1.")
		out        = pflag.StringP("out", "o", "tone.wav", "Output WAV file path.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	logger := log.Default()

	if *channels != 1 && *channels != 2 {
		logger.Fatal("channels must be 1 or 2", "got", *channels)
	}

	frames := int(*duration * float64(*sampleRate))
	samples := make([]int16, frames*(*channels))

	phaseStep := 2 * math.Pi * *freq / float64(*sampleRate)
	for i := 0; i < frames; i++ {
		v := *amplitude * math.Sin(phaseStep*float64(i))
		s := int16(v * 32767)
		for c := 0; c < *channels; c++ {
			samples[i*(*channels)+c] = s
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("creating output file", "err", err)
	}
	defer f.Close()

	if err := writeWAV(f, samples, *sampleRate, *channels); err != nil {
		logger.Fatal("writing wav", "err", err)
	}

	logger.Info("wrote tone", "path", *out, "freq", *freq, "duration", *duration, "frames", frames)
}

// writeWAV emits a minimal canonical 16-bit PCM WAV file. There is no WAV
// encoder anywhere in this module's dependency tree, and the format is a
// fixed, well-documented binary layout, so it is written directly rather than
// reaching for a third-party codec just to wrap one.
func writeWAV(w *os.File, samples []int16, sampleRate, channels int) error {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	body := make([]byte, dataSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(body[i*2:], uint16(s))
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}
	return nil
}
