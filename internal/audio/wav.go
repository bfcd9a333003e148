package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"interviewdesk/internal/domain"
)

const wavHeaderSize = 44

// EncodeWAV wraps s16le samples in a canonical RIFF/WAVE container.
func EncodeWAV(pcm domain.PCM) []byte {
	channels := pcm.Channels
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * 2
	byteRate := pcm.SampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm.Data))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm.Data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(pcm.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm.Data)))
	buf.Write(pcm.Data)
	return buf.Bytes()
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV extracts 16-bit PCM from a RIFF/WAVE container.
func DecodeWAV(data []byte) (domain.PCM, error) {
	if !IsWAV(data) {
		return domain.PCM{}, errors.New("not a RIFF/WAVE stream")
	}

	var (
		pcm           domain.PCM
		haveFmt       bool
		bitsPerSample uint16
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return domain.PCM{}, errors.New("wav fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return domain.PCM{}, fmt.Errorf("unsupported wav encoding %d", audioFormat)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return domain.PCM{}, errors.New("wav data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return domain.PCM{}, fmt.Errorf("unsupported wav bit depth %d", bitsPerSample)
			}
			pcm.Data = append([]byte(nil), data[body:body+size]...)
			return pcm, nil
		}

		offset = body + size + size%2
	}
	return domain.PCM{}, errors.New("wav stream has no data chunk")
}
