// SPDX-License-Identifier: MIT

package detect

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavData is a decoded PCM clip. Samples are normalised to [-1, 1] and
// stored per channel.
type wavData struct {
	sampleRate int
	channels   [][]float64
}

func (w *wavData) frames() int {
	if len(w.channels) == 0 {
		return 0
	}
	return len(w.channels[0])
}

// slice returns the window [startS, endS) of the clip, clamped to bounds.
func (w *wavData) slice(startS, endS float64) *wavData {
	n := w.frames()
	a := int(startS * float64(w.sampleRate))
	b := int(endS * float64(w.sampleRate))
	if a < 0 {
		a = 0
	}
	if b > n {
		b = n
	}
	if a >= b {
		return &wavData{sampleRate: w.sampleRate, channels: make([][]float64, len(w.channels))}
	}
	out := &wavData{sampleRate: w.sampleRate, channels: make([][]float64, len(w.channels))}
	for i, ch := range w.channels {
		out.channels[i] = ch[a:b]
	}
	return out
}

// loadWAV decodes a 16-bit PCM RIFF/WAVE file. Anything else in the store is
// a prep bug, reported as an input defect.
func loadWAV(path string) (*wavData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, InputDefect("open audio", err)
	}
	defer func() { _ = f.Close() }()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, InputDefect("read RIFF header", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, InputDefect("not a RIFF/WAVE file", nil)
	}

	var (
		sampleRate    int
		numChannels   int
		bitsPerSample int
		data          []byte
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, InputDefect("read chunk header", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])
		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(f, buf); err != nil {
				return nil, InputDefect("read fmt chunk", err)
			}
			numChannels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, InputDefect("read data chunk", err)
			}
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, InputDefect("seek past chunk", err)
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				break
			}
		}
	}

	if sampleRate == 0 || numChannels == 0 {
		return nil, InputDefect("missing fmt chunk", nil)
	}
	if bitsPerSample != 16 {
		return nil, InputDefect(fmt.Sprintf("unsupported bit depth %d", bitsPerSample), nil)
	}

	frames := len(data) / (2 * numChannels)
	out := &wavData{sampleRate: sampleRate, channels: make([][]float64, numChannels)}
	for c := range out.channels {
		out.channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			off := (i*numChannels + c) * 2
			s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			out.channels[c][i] = float64(s) / 32768.0
		}
	}
	return out, nil
}
