package pipeline

import (
	"bytes"
	"regexp"
	"strconv"
)

// Motion photos embed an MP4 clip after the still image, advertised
// through XMP attributes in the JPEG header. Two generations of markers
// exist: the current MotionPhoto family and the legacy MicroVideo one.
var (
	motionPhotoMarkers = [][]byte{
		[]byte(`GCamera:MotionPhoto="1"`),
		[]byte(`<GCamera:MotionPhoto>1</GCamera:MotionPhoto>`),
		[]byte(`GCamera:MicroVideo="1"`),
		[]byte(`<GCamera:MicroVideo>1</GCamera:MicroVideo>`),
	}

	microVideoOffsetRe = regexp.MustCompile(`GCamera:MicroVideoOffset(?:="(\d+)"|>(\d+)<)`)

	ftypBox = []byte("ftyp")
)

// extractMotionVideo returns the embedded MP4 clip from a motion photo
// buffer, or nil when the buffer is a plain still.
func extractMotionVideo(data []byte) []byte {
	if !hasMotionPhotoMarker(data) {
		return nil
	}

	// The legacy marker records the video length as an offset from the end
	// of the file.
	if m := microVideoOffsetRe.FindSubmatch(data); m != nil {
		raw := m[1]
		if len(raw) == 0 {
			raw = m[2]
		}
		if offset, err := strconv.Atoi(string(raw)); err == nil && offset > 0 && offset < len(data) {
			video := data[len(data)-offset:]
			if isMP4(video) {
				return video
			}
		}
	}

	// Otherwise locate the MP4 container directly: the ftyp box type sits
	// four bytes into the stream, after the box size.
	idx := bytes.LastIndex(data, ftypBox)
	if idx < 4 {
		return nil
	}
	video := data[idx-4:]
	if !isMP4(video) {
		return nil
	}
	return video
}

func hasMotionPhotoMarker(data []byte) bool {
	for _, marker := range motionPhotoMarkers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

func isMP4(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[4:8], ftypBox)
}
