package metadata

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Meta is the metadata record handed to the library for one audio file.
type Meta struct {
	Title    string
	Artist   string
	Album    string
	Duration int   // in seconds
	Bitrate  int   // in kbps
	FileSize int64 // in bytes
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
	albumArtCache    map[string][]byte
	albumArtMux      sync.RWMutex
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
		albumArtCache:    make(map[string][]byte),
	}
}

// Extract reads tags and audio properties from a file. Tag read failures
// degrade to filename-derived values; only an unreadable file returns an
// error, and callers are expected to substitute Fallback for it.
func (e *Extractor) Extract(filePath string) (Meta, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to open audio file")
		return Meta{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to get file stats")
		return Meta{}, err
	}

	duration, bitrate, err := e.probeAudio(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to probe audio properties, setting duration to 0")
		duration, bitrate = 0, 0
	}

	meta := Meta{
		Duration: duration,
		Bitrate:  bitrate,
		FileSize: stat.Size(),
	}

	tags, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to read tags, using filename")

		fallback := Fallback(filePath)
		meta.Title = fallback.Title
		meta.Artist = fallback.Artist
		meta.Album = fallback.Album
		return meta, nil
	}

	meta.Title = tags.Title()
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	meta.Artist = tags.Artist()
	if meta.Artist == "" {
		meta.Artist = "Unknown"
	}
	meta.Album = tags.Album()

	e.extractAlbumArt(tags)

	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          meta.Title,
		"artist":         meta.Artist,
		"album":          meta.Album,
		"duration":       meta.Duration,
		"bitrate":        meta.Bitrate,
		"processingTime": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return meta, nil
}

// Fallback derives the minimal metadata record from the filename alone.
// Used whenever extraction fails so a bad file never stops a scan.
func Fallback(filePath string) Meta {
	filename := filepath.Base(filePath)
	return Meta{
		Title:  strings.TrimSuffix(filename, filepath.Ext(filename)),
		Artist: "Unknown",
		Album:  "",
	}
}

// probeAudio returns duration (seconds) and bitrate (kbps) for a file.
func (e *Extractor) probeAudio(filePath string) (int, int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.probeMP3(filePath)
	case ".flac":
		return e.probeFLAC(filePath)
	case ".wav":
		return e.probeWAV(filePath)
	case ".m4a":
		return e.probeM4A(filePath)
	default:
		return 0, 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fallback to average bitrate
// estimation only if frames fail entirely. Bitrate is read from the
// first decodable frame header.
func (e *Extractor) probeMP3(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	bitrate := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 { // could not decode any frame
				dur, err := e.estimateFromFileSize(path, 192000) // assume 192 kbps
				return dur, 192, err
			}
			break // partial decode; use what we have
		}
		if frames == 0 {
			bitrate = int(fr.Header().BitRate()) / 1000
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds()), bitrate, nil
}

// FLAC duration via STREAMINFO metadata block; bitrate derived from file
// size over duration.
func (e *Extractor) probeFLAC(path string) (int, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		duration := int(secs + 0.5)
		bitrate := 0
		if st, err := os.Stat(path); err == nil && secs > 0 {
			bitrate = int(float64(st.Size()) * 8 / secs / 1000)
		}
		return duration, bitrate, nil
	}
	return 0, 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration using go-audio/wav to read the header; PCM bitrate comes
// straight from sample rate, bit depth and channel count.
func (e *Extractor) probeWAV(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, 0, fmt.Errorf("invalid wav header")
	}
	// Approximate using file size; full sample count may require decoding all samples.
	st, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	secs := float64(sampleFrames) / float64(dec.SampleRate)
	bitrate := int(dec.SampleRate) * int(dec.BitDepth) * int(dec.NumChans) / 1000
	return int(secs + 0.5), bitrate, nil
}

// M4A (AAC in MP4) minimal duration parsing: read 'mvhd' timescale &
// duration. Lightweight manual atom scan to avoid pulling a large dep.
// Best-effort; bitrate derived from file size over duration.
func (e *Extractor) probeM4A(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	for {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		atom := string(head[4:8])
		if size < 8 {
			return 0, 0, fmt.Errorf("invalid atom size")
		}
		if atom == "moov" {
			// scan inside moov for mvhd
			limit := int64(size) - 8
			for read := int64(0); read < limit; {
				subHead := make([]byte, 8)
				if _, err := io.ReadFull(f, subHead); err != nil {
					return 0, 0, err
				}
				subSize := binary.BigEndian.Uint32(subHead[0:4])
				subAtom := string(subHead[4:8])
				if subAtom == "mvhd" {
					version := make([]byte, 1)
					if _, err := io.ReadFull(f, version); err != nil {
						return 0, 0, err
					}
					var skip int64
					if version[0] == 1 { // 64-bit
						skip = 3 + 8 + 8 // flags + creation + mod times (64-bit)
					} else {
						skip = 3 + 4 + 4 // flags + times (32-bit)
					}
					if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
						return 0, 0, err
					}
					tsBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, tsBuf); err != nil {
						return 0, 0, err
					}
					timescale := binary.BigEndian.Uint32(tsBuf)
					durBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, durBuf); err != nil {
						return 0, 0, err
					}
					durUnits := binary.BigEndian.Uint32(durBuf)
					if timescale == 0 {
						return 0, 0, fmt.Errorf("invalid timescale")
					}
					secs := float64(durUnits) / float64(timescale)
					duration := int(secs + 0.5)
					bitrate := 0
					if st, err := os.Stat(path); err == nil && secs > 0 {
						bitrate = int(float64(st.Size()) * 8 / secs / 1000)
					}
					return duration, bitrate, nil
				}
				// skip remainder of sub atom
				if subSize < 8 {
					return 0, 0, fmt.Errorf("invalid sub-atom size")
				}
				if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
					return 0, 0, err
				}
				read += int64(subSize)
			}
			break
		}
		// skip rest of atom
		if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
			return 0, 0, err
		}
	}
	return 0, 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize provides last-resort duration estimation if
// parsing fails. Not authoritative.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (int, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	dur := (st.Size() * 8) / int64(bitrate)
	return int(dur), nil
}

// extractAlbumArt caches embedded album art keyed by a content hash.
func (e *Extractor) extractAlbumArt(tags tag.Metadata) (string, bool) {
	if tags == nil {
		return "", false
	}
	picture := tags.Picture()
	if picture == nil {
		return "", false
	}

	hash := md5.Sum(picture.Data)
	artID := fmt.Sprintf("%x", hash)

	e.albumArtMux.Lock()
	e.albumArtCache[artID] = picture.Data
	e.albumArtMux.Unlock()

	return artID, true
}

// GetAlbumArt retrieves cached album art by ID
func (e *Extractor) GetAlbumArt(artID string) ([]byte, bool) {
	e.albumArtMux.RLock()
	data, exists := e.albumArtCache[artID]
	e.albumArtMux.RUnlock()
	return data, exists
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
