package synthesis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	aviHasIndex  = 0x10
	aviKeyframe  = 0x10
	avihSize     = 56
	strhSize     = 56
	strfSize     = 40
	idxEntrySize = 16
)

// EncodeAVI wraps JPEG frames in a RIFF AVI container with one MJPG video stream
// and an idx1 index. The layout has no timestamps, so equal frames yield equal bytes.
func EncodeAVI(frames [][]byte, width, height, fps int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyVideo
	}
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("synthesis: invalid avi geometry %dx%d@%d", width, height, fps)
	}
	maxFrame := 0
	for _, f := range frames {
		maxFrame = max(maxFrame, len(f))
	}

	var movi bytes.Buffer
	movi.WriteString("movi")
	index := make([]byte, 0, len(frames)*idxEntrySize)
	for _, f := range frames {
		// Offsets in idx1 are relative to the "movi" fourcc.
		offset := uint32(movi.Len())
		movi.WriteString("00dc")
		writeU32(&movi, uint32(len(f)))
		movi.Write(f)
		if len(f)%2 == 1 {
			movi.WriteByte(0)
		}
		index = append(index, "00dc"...)
		index = binary.LittleEndian.AppendUint32(index, aviKeyframe)
		index = binary.LittleEndian.AppendUint32(index, offset)
		index = binary.LittleEndian.AppendUint32(index, uint32(len(f)))
	}

	var strl bytes.Buffer
	strl.WriteString("strl")
	strl.WriteString("strh")
	writeU32(&strl, strhSize)
	strl.WriteString("vids")
	strl.WriteString("MJPG")
	writeU32(&strl, 0)                   // dwFlags
	writeU16(&strl, 0)                   // wPriority
	writeU16(&strl, 0)                   // wLanguage
	writeU32(&strl, 0)                   // dwInitialFrames
	writeU32(&strl, 1)                   // dwScale
	writeU32(&strl, uint32(fps))         // dwRate
	writeU32(&strl, 0)                   // dwStart
	writeU32(&strl, uint32(len(frames))) // dwLength
	writeU32(&strl, uint32(maxFrame))    // dwSuggestedBufferSize
	writeU32(&strl, 0xFFFFFFFF)          // dwQuality
	writeU32(&strl, 0)                   // dwSampleSize
	writeU16(&strl, 0)
	writeU16(&strl, 0)
	writeU16(&strl, uint16(width))
	writeU16(&strl, uint16(height))
	strl.WriteString("strf")
	writeU32(&strl, strfSize)
	writeU32(&strl, strfSize)
	writeU32(&strl, uint32(width))
	writeU32(&strl, uint32(height))
	writeU16(&strl, 1)  // biPlanes
	writeU16(&strl, 24) // biBitCount
	strl.WriteString("MJPG")
	writeU32(&strl, uint32(width*height*3))
	writeU32(&strl, 0)
	writeU32(&strl, 0)
	writeU32(&strl, 0)
	writeU32(&strl, 0)

	var hdrl bytes.Buffer
	hdrl.WriteString("hdrl")
	hdrl.WriteString("avih")
	writeU32(&hdrl, avihSize)
	writeU32(&hdrl, uint32(1_000_000/fps)) // dwMicroSecPerFrame
	writeU32(&hdrl, uint32(maxFrame*fps))  // dwMaxBytesPerSec
	writeU32(&hdrl, 0)                     // dwPaddingGranularity
	writeU32(&hdrl, aviHasIndex)
	writeU32(&hdrl, uint32(len(frames)))
	writeU32(&hdrl, 0) // dwInitialFrames
	writeU32(&hdrl, 1) // dwStreams
	writeU32(&hdrl, uint32(maxFrame))
	writeU32(&hdrl, uint32(width))
	writeU32(&hdrl, uint32(height))
	for i := 0; i < 4; i++ {
		writeU32(&hdrl, 0)
	}
	writeList(&hdrl, strl.Bytes())

	var body bytes.Buffer
	body.WriteString("AVI ")
	writeList(&body, hdrl.Bytes())
	writeList(&body, movi.Bytes())
	body.WriteString("idx1")
	writeU32(&body, uint32(len(index)))
	body.Write(index)

	var out bytes.Buffer
	out.Grow(body.Len() + 8)
	out.WriteString("RIFF")
	writeU32(&out, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// AVIInfo is the subset of the main header callers inspect.
type AVIInfo struct {
	MicroSecPerFrame uint32
	TotalFrames      uint32
	Width            uint32
	Height           uint32
	Streams          uint32
	Handler          string
}

// FPS derives the frame rate from the frame period.
func (i AVIInfo) FPS() float64 {
	if i.MicroSecPerFrame == 0 {
		return 0
	}
	return 1_000_000 / float64(i.MicroSecPerFrame)
}

// Seconds is the clip duration.
func (i AVIInfo) Seconds() float64 {
	return float64(i.TotalFrames) * float64(i.MicroSecPerFrame) / 1_000_000
}

// ReadAVIInfo parses the main and stream headers written by EncodeAVI.
func ReadAVIInfo(data []byte) (AVIInfo, error) {
	var info AVIInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		return info, errors.New("synthesis: not a RIFF AVI file")
	}
	// RIFF(4) size(4) AVI(4) LIST(4) size(4) hdrl(4) avih(4) size(4)
	const avihAt = 32
	if len(data) < avihAt+avihSize || string(data[12:16]) != "LIST" || string(data[20:24]) != "hdrl" || string(data[24:28]) != "avih" {
		return info, errors.New("synthesis: missing avih header")
	}
	h := data[avihAt:]
	le := binary.LittleEndian
	info.MicroSecPerFrame = le.Uint32(h[0:])
	info.TotalFrames = le.Uint32(h[16:])
	info.Streams = le.Uint32(h[24:])
	info.Width = le.Uint32(h[32:])
	info.Height = le.Uint32(h[36:])

	// LIST(4) size(4) strl(4) strh(4) size(4) fccType(4) fccHandler(4)
	strh := avihAt + avihSize
	if len(data) >= strh+28 && string(data[strh+12:strh+16]) == "strh" {
		info.Handler = string(data[strh+24 : strh+28])
	}
	return info, nil
}

func writeList(dst *bytes.Buffer, payload []byte) {
	dst.WriteString("LIST")
	writeU32(dst, uint32(len(payload)))
	dst.Write(payload)
}

func writeU32(dst *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	dst.Write(b[:])
}

func writeU16(dst *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	dst.Write(b[:])
}
