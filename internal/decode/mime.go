package decode

import (
	"mime"
	"path/filepath"
	"strings"
)

// Format is what a declared MIME type tells the chain about the payload.
type Format struct {
	// Extension used for temporary files handed to ffmpeg.
	Extension string
	// Container is the ffmpeg demuxer hint.
	Container string
	// Declared is false when the MIME type was empty or not recognized.
	Declared bool
}

// IsWAV reports whether the payload was declared as WAV.
func (f Format) IsWAV() bool {
	return f.Declared && f.Container == containerWAV
}

const (
	containerWAV = "wav"
	containerPCM = "pcm"
)

//nolint:gochecknoglobals // lookup table, effectively const
var unknownFormat = Format{Extension: ".wav", Container: containerWAV}

//nolint:gochecknoglobals // lookup table, effectively const
var formats = map[string]Format{
	"audio/wav":       {Extension: ".wav", Container: containerWAV},
	"audio/wave":      {Extension: ".wav", Container: containerWAV},
	"audio/x-wav":     {Extension: ".wav", Container: containerWAV},
	"audio/vnd.wave":  {Extension: ".wav", Container: containerWAV},
	"audio/webm":      {Extension: ".webm", Container: "webm"},
	"video/webm":      {Extension: ".webm", Container: "webm"},
	"audio/mpeg":      {Extension: ".mp3", Container: "mp3"},
	"audio/mp3":       {Extension: ".mp3", Container: "mp3"},
	"audio/ogg":       {Extension: ".ogg", Container: "ogg"},
	"application/ogg": {Extension: ".ogg", Container: "ogg"},
	"audio/opus":      {Extension: ".ogg", Container: "ogg"},
	"audio/mp4":       {Extension: ".m4a", Container: "mp4"},
	"audio/x-m4a":     {Extension: ".m4a", Container: "mp4"},
	"audio/m4a":       {Extension: ".m4a", Container: "mp4"},
	"video/mp4":       {Extension: ".m4a", Container: "mp4"},
	"audio/aac":       {Extension: ".aac", Container: "aac"},
	"audio/flac":      {Extension: ".flac", Container: "flac"},
	"audio/x-flac":    {Extension: ".flac", Container: "flac"},
	"audio/pcm":       {Extension: ".pcm", Container: containerPCM},
	"audio/l16":       {Extension: ".pcm", Container: containerPCM},
}

//nolint:gochecknoglobals // lookup table, effectively const
var extensions = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".pcm":  "audio/pcm",
}

// LookupFormat maps a MIME type to a Format. Parameters such as codecs are ignored.
// The mapping is total: unknown or empty types yield an undeclared WAV format.
func LookupFormat(mimeType string) Format {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType, _, _ = strings.Cut(mimeType, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	}

	format, ok := formats[mediaType]
	if !ok {
		return unknownFormat
	}

	format.Declared = true

	return format
}

// MIMETypeForPath infers a MIME type from a file extension. Unknown extensions yield an empty string.
func MIMETypeForPath(path string) string {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// SupportedExtensions lists the file extensions the chain recognizes.
func SupportedExtensions() []string {
	return []string{"wav", "mp3", "flac", "m4a", "ogg", "webm", "aac", "opus"}
}
