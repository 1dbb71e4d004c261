package data

import (
	"bytes"
	"encoding/binary"

	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

const oggPageHeaderSize = 27

// OggProbe reads voice-note durations from Ogg Opus and Ogg Vorbis streams
type OggProbe struct{}

var _ repo.AudioProbe = OggProbe{}

// Duration returns the stream length in seconds from the last page's granule position
func (OggProbe) Duration(audio []byte) (float64, bool) {
	if len(audio) < oggPageHeaderSize || !bytes.HasPrefix(audio, []byte("OggS")) {
		return 0, false
	}
	segments := int(audio[26])
	start := oggPageHeaderSize + segments
	if start > len(audio) {
		return 0, false
	}
	payload := audio[start:]

	var rate, preSkip uint64
	switch {
	case bytes.HasPrefix(payload, []byte("OpusHead")) && len(payload) >= 12:
		rate = 48000
		preSkip = uint64(binary.LittleEndian.Uint16(payload[10:12]))
	case bytes.HasPrefix(payload, []byte("\x01vorbis")) && len(payload) >= 16:
		rate = uint64(binary.LittleEndian.Uint32(payload[12:16]))
	default:
		return 0, false
	}
	if rate == 0 {
		return 0, false
	}

	last := bytes.LastIndex(audio, []byte("OggS"))
	if last < 0 || last+14 > len(audio) {
		return 0, false
	}
	granule := binary.LittleEndian.Uint64(audio[last+6 : last+14])
	// -1 marks a page on which no packet ends
	if granule == ^uint64(0) || granule <= preSkip {
		return 0, false
	}
	return float64(granule-preSkip) / float64(rate), true
}
