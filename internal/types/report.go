//nolint:staticcheck // too dumb on Db vs. DB
package types

// ChannelClipping contains clipping statistics for a single channel.
type ChannelClipping struct {
	Events         uint64 `json:"events"`
	ClippedSamples uint64 `json:"clipped_samples"`
	LongestRun     uint64 `json:"longest_run"`
}

// ClippingDetection contains runs of two or more consecutive full scale samples.
type ClippingDetection struct {
	Events         uint64            `json:"events"`
	ClippedSamples uint64            `json:"clipped_samples"`
	LongestRun     uint64            `json:"longest_run"`
	Samples        uint64            `json:"samples"`
	Channels       []ChannelClipping `json:"channels"`
}

// DCOffsetResult contains the DC offset of a decoded waveform.
type DCOffsetResult struct {
	Offset   float64   `json:"offset"`    // average absolute offset over channels
	OffsetDb float64   `json:"offset_db"` // 20*log10(Offset), -120 for silence
	Channels []float64 `json:"channels"`  // per channel offset
}

// SilenceSegment is one stretch of silence.
type SilenceSegment struct {
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
	RmsDb       float64 `json:"rms_db"`
}

// SilenceResult contains silent segments of a decoded waveform.
type SilenceResult struct {
	Segments      []SilenceSegment `json:"segments"`
	TotalSilence  float64          `json:"total_silence_sec"`
	LeadingSec    float64          `json:"leading_sec"`
	TrailingSec   float64          `json:"trailing_sec"`
	TotalDuration float64          `json:"total_duration_sec"`
}

// InputReport summarizes the decoded input before normalization.
type InputReport struct {
	Backend     string             `json:"backend"`
	SampleRate  int                `json:"sample_rate"`
	Channels    int                `json:"channels"`
	BitDepth    BitDepth           `json:"bit_depth,omitempty"`
	DurationSec float64            `json:"duration_sec"`
	PeakDb      float64            `json:"peak_db"`
	Clipping    *ClippingDetection `json:"clipping"`
	DCOffset    *DCOffsetResult    `json:"dc_offset"`
	Silence     *SilenceResult     `json:"silence"`
}
