// Package config handles configuration loading, validation and hot reload
// for verum. Every analyzer constant is exposed as an overridable field.
package config

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"verum/internal/audio"
	"verum/internal/document"
	"verum/internal/forensics"
	"verum/internal/fusion"
	"verum/internal/imaging"
	"verum/internal/seal"
	"verum/internal/video"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete verum configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
	Image    ImageConfig    `toml:"image" json:"image" yaml:"image"`
	Video    VideoConfig    `toml:"video" json:"video" yaml:"video"`
	Audio    AudioConfig    `toml:"audio" json:"audio" yaml:"audio"`
	Document DocumentConfig `toml:"document" json:"document" yaml:"document"`
	Fusion   FusionConfig   `toml:"fusion" json:"fusion" yaml:"fusion"`
	Seal     SealConfig     `toml:"seal" json:"seal" yaml:"seal"`
	Ledger   LedgerConfig   `toml:"ledger" json:"ledger" yaml:"ledger"`
	Server   ServerConfig   `toml:"server" json:"server" yaml:"server"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// AuditPath is the custody log. Empty disables it.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`
}

// ImageConfig holds the image analyzer constants.
type ImageConfig struct {
	BlockSize           int     `toml:"block_size" json:"block_size" yaml:"block_size"`
	NoiseThreshold      float64 `toml:"noise_threshold" json:"noise_threshold" yaml:"noise_threshold"`
	AnomalyConfidenceAt float64 `toml:"anomaly_confidence_at" json:"anomaly_confidence_at" yaml:"anomaly_confidence_at"`
	MinAnomalies        int     `toml:"min_anomalies" json:"min_anomalies" yaml:"min_anomalies"`
	AnomalySaturation   int     `toml:"anomaly_saturation" json:"anomaly_saturation" yaml:"anomaly_saturation"`
}

// VideoConfig holds the video analyzer constants.
type VideoConfig struct {
	SampleInterval          int     `toml:"sample_interval" json:"sample_interval" yaml:"sample_interval"`
	AssumedFrameRate        float64 `toml:"assumed_frame_rate" json:"assumed_frame_rate" yaml:"assumed_frame_rate"`
	SceneSimilarity         float64 `toml:"scene_similarity" json:"scene_similarity" yaml:"scene_similarity"`
	GOPTolerance            float64 `toml:"gop_tolerance" json:"gop_tolerance" yaml:"gop_tolerance"`
	ContinuousSimilarity    float64 `toml:"continuous_similarity" json:"continuous_similarity" yaml:"continuous_similarity"`
	CutSimilarity           float64 `toml:"cut_similarity" json:"cut_similarity" yaml:"cut_similarity"`
	DiscontinuitySimilarity float64 `toml:"discontinuity_similarity" json:"discontinuity_similarity" yaml:"discontinuity_similarity"`
	EdgeVariance            float64 `toml:"edge_variance" json:"edge_variance" yaml:"edge_variance"`
	BlockHitSaturation      int     `toml:"block_hit_saturation" json:"block_hit_saturation" yaml:"block_hit_saturation"`
	DuplicateConfidence     float64 `toml:"duplicate_confidence" json:"duplicate_confidence" yaml:"duplicate_confidence"`
	FrameCountTolerance     float64 `toml:"frame_count_tolerance" json:"frame_count_tolerance" yaml:"frame_count_tolerance"`
}

// AudioConfig holds the audio analyzer constants.
type AudioConfig struct {
	FrameSize               int     `toml:"frame_size" json:"frame_size" yaml:"frame_size"`
	HopSize                 int     `toml:"hop_size" json:"hop_size" yaml:"hop_size"`
	MelBands                int     `toml:"mel_bands" json:"mel_bands" yaml:"mel_bands"`
	Coefficients            int     `toml:"coefficients" json:"coefficients" yaml:"coefficients"`
	RolloffFraction         float64 `toml:"rolloff_fraction" json:"rolloff_fraction" yaml:"rolloff_fraction"`
	FlatnessLimit           float64 `toml:"flatness_limit" json:"flatness_limit" yaml:"flatness_limit"`
	CentroidLow             float64 `toml:"centroid_low" json:"centroid_low" yaml:"centroid_low"`
	CentroidHigh            float64 `toml:"centroid_high" json:"centroid_high" yaml:"centroid_high"`
	DiscontinuityFactor     float64 `toml:"discontinuity_factor" json:"discontinuity_factor" yaml:"discontinuity_factor"`
	DiscontinuitySaturation int     `toml:"discontinuity_saturation" json:"discontinuity_saturation" yaml:"discontinuity_saturation"`
	VADPercentile           float64 `toml:"vad_percentile" json:"vad_percentile" yaml:"vad_percentile"`
	VADMultiplier           float64 `toml:"vad_multiplier" json:"vad_multiplier" yaml:"vad_multiplier"`
	MinSegmentSeconds       float64 `toml:"min_segment_seconds" json:"min_segment_seconds" yaml:"min_segment_seconds"`
	DurationTolerance       float64 `toml:"duration_tolerance" json:"duration_tolerance" yaml:"duration_tolerance"`
}

// DocumentConfig holds the PDF analyzer constants.
type DocumentConfig struct {
	MaxIncrementalUpdates int     `toml:"max_incremental_updates" json:"max_incremental_updates" yaml:"max_incremental_updates"`
	MaxVersions           int     `toml:"max_versions" json:"max_versions" yaml:"max_versions"`
	HiddenCap             int     `toml:"hidden_cap" json:"hidden_cap" yaml:"hidden_cap"`
	IssuePenalty          float64 `toml:"issue_penalty" json:"issue_penalty" yaml:"issue_penalty"`
	MaxIssuePenalty       float64 `toml:"max_issue_penalty" json:"max_issue_penalty" yaml:"max_issue_penalty"`
	MaxInflatedBytes      int64   `toml:"max_inflated_bytes" json:"max_inflated_bytes" yaml:"max_inflated_bytes"`
	MaxStreams            int     `toml:"max_streams" json:"max_streams" yaml:"max_streams"`
}

// FusionConfig holds the fusion engine constants and per-medium weights.
type FusionConfig struct {
	VarianceLimit      float64            `toml:"variance_limit" json:"variance_limit" yaml:"variance_limit"`
	DiscrepancyMargin  float64            `toml:"discrepancy_margin" json:"discrepancy_margin" yaml:"discrepancy_margin"`
	InconsistencyBoost float64            `toml:"inconsistency_boost" json:"inconsistency_boost" yaml:"inconsistency_boost"`
	HighScore          float64            `toml:"high_score" json:"high_score" yaml:"high_score"`
	LowScore           float64            `toml:"low_score" json:"low_score" yaml:"low_score"`

	VeryHighLikelihood  float64 `toml:"very_high_likelihood" json:"very_high_likelihood" yaml:"very_high_likelihood"`
	HighLikelihood      float64 `toml:"high_likelihood" json:"high_likelihood" yaml:"high_likelihood"`
	MediumLikelihood    float64 `toml:"medium_likelihood" json:"medium_likelihood" yaml:"medium_likelihood"`
	LowLikelihood       float64 `toml:"low_likelihood" json:"low_likelihood" yaml:"low_likelihood"`
	CriticalForVeryHigh int     `toml:"critical_for_very_high" json:"critical_for_very_high" yaml:"critical_for_very_high"`
	HighForHigh         int     `toml:"high_for_high" json:"high_for_high" yaml:"high_for_high"`

	Weights            map[string]float64 `toml:"weights" json:"weights" yaml:"weights"`
}

// SealConfig holds integrity seal settings.
type SealConfig struct {
	AlgorithmVersion string `toml:"algorithm_version" json:"algorithm_version" yaml:"algorithm_version"`
}

// LedgerConfig holds chain-of-custody ledger settings.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// KeyPath holds the ledger master key. It is generated on first use.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr               string  `toml:"addr" json:"addr" yaml:"addr"`
	MaxUploadMB        int64   `toml:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`
	ReadTimeoutSec     int     `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec    int     `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`
	AnalysisTimeoutSec int     `toml:"analysis_timeout_sec" json:"analysis_timeout_sec" yaml:"analysis_timeout_sec"`
	RateLimit          float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	RateBurst          int     `toml:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
}

// DefaultConfig returns a configuration with every analyzer at its stock
// thresholds.
func DefaultConfig() *Config {
	dataDir := DataDir()
	img := imaging.DefaultThresholds()
	vid := video.DefaultThresholds()
	aud := audio.DefaultThresholds()
	doc := document.DefaultThresholds()
	fus := fusion.DefaultThresholds()

	return &Config{
		Version: Version,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(LogDir(), "verum.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			Compress:   true,
		},
		Image: ImageConfig{
			BlockSize:           img.BlockSize,
			NoiseThreshold:      img.NoiseThreshold,
			AnomalyConfidenceAt: img.AnomalyConfidenceAt,
			MinAnomalies:        img.MinAnomalies,
			AnomalySaturation:   img.AnomalySaturation,
		},
		Video: VideoConfig{
			SampleInterval:          vid.SampleInterval,
			AssumedFrameRate:        vid.AssumedFrameRate,
			SceneSimilarity:         vid.SceneSimilarity,
			GOPTolerance:            vid.GOPTolerance,
			ContinuousSimilarity:    vid.ContinuousSimilarity,
			CutSimilarity:           vid.CutSimilarity,
			DiscontinuitySimilarity: vid.DiscontinuitySimilarity,
			EdgeVariance:            vid.EdgeVariance,
			BlockHitSaturation:      vid.BlockHitSaturation,
			DuplicateConfidence:     vid.DuplicateConfidence,
			FrameCountTolerance:     vid.FrameCountTolerance,
		},
		Audio: AudioConfig{
			FrameSize:               aud.FrameSize,
			HopSize:                 aud.HopSize,
			MelBands:                aud.MelBands,
			Coefficients:            aud.Coefficients,
			RolloffFraction:         aud.RolloffFraction,
			FlatnessLimit:           aud.FlatnessLimit,
			CentroidLow:             aud.CentroidLow,
			CentroidHigh:            aud.CentroidHigh,
			DiscontinuityFactor:     aud.DiscontinuityFactor,
			DiscontinuitySaturation: aud.DiscontinuitySaturation,
			VADPercentile:           aud.VADPercentile,
			VADMultiplier:           aud.VADMultiplier,
			MinSegmentSeconds:       aud.MinSegmentSeconds,
			DurationTolerance:       aud.DurationTolerance,
		},
		Document: DocumentConfig{
			MaxIncrementalUpdates: doc.MaxIncrementalUpdates,
			MaxVersions:           doc.MaxVersions,
			HiddenCap:             doc.HiddenCap,
			IssuePenalty:          doc.IssuePenalty,
			MaxIssuePenalty:       doc.MaxIssuePenalty,
			MaxInflatedBytes:      doc.MaxInflatedBytes,
			MaxStreams:            doc.MaxStreams,
		},
		Fusion: FusionConfig{
			VarianceLimit:      fus.VarianceLimit,
			DiscrepancyMargin:  fus.DiscrepancyMargin,
			InconsistencyBoost: fus.InconsistencyBoost,
			HighScore:          fus.HighScore,
			LowScore:           fus.LowScore,

			VeryHighLikelihood:  fus.VeryHighScore,
			HighLikelihood:      fus.HighLikelihood,
			MediumLikelihood:    fus.MediumLikelihood,
			LowLikelihood:       fus.LowLikelihood,
			CriticalForVeryHigh: fus.CriticalForVeryHigh,
			HighForHigh:         fus.HighForHigh,

			Weights: map[string]float64{},
		},
		Seal: SealConfig{
			AlgorithmVersion: seal.DefaultAlgorithmVersion,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "ledger.db"),
			KeyPath: filepath.Join(dataDir, "ledger.key"),
		},
		Server: ServerConfig{
			Addr:               "127.0.0.1:8420",
			MaxUploadMB:        256,
			ReadTimeoutSec:     60,
			WriteTimeoutSec:    300,
			AnalysisTimeoutSec: 240,
			RateLimit:          5,
			RateBurst:          20,
		},
	}
}

// Thresholds converts the section into analyzer thresholds.
func (c ImageConfig) Thresholds() imaging.Thresholds {
	return imaging.Thresholds{
		BlockSize:           c.BlockSize,
		NoiseThreshold:      c.NoiseThreshold,
		AnomalyConfidenceAt: c.AnomalyConfidenceAt,
		MinAnomalies:        c.MinAnomalies,
		AnomalySaturation:   c.AnomalySaturation,
	}
}

// Thresholds converts the section into analyzer thresholds.
func (c VideoConfig) Thresholds() video.Thresholds {
	return video.Thresholds{
		SampleInterval:          c.SampleInterval,
		AssumedFrameRate:        c.AssumedFrameRate,
		SceneSimilarity:         c.SceneSimilarity,
		GOPTolerance:            c.GOPTolerance,
		ContinuousSimilarity:    c.ContinuousSimilarity,
		CutSimilarity:           c.CutSimilarity,
		DiscontinuitySimilarity: c.DiscontinuitySimilarity,
		EdgeVariance:            c.EdgeVariance,
		BlockHitSaturation:      c.BlockHitSaturation,
		DuplicateConfidence:     c.DuplicateConfidence,
		FrameCountTolerance:     c.FrameCountTolerance,
	}
}

// Thresholds converts the section into analyzer thresholds.
func (c AudioConfig) Thresholds() audio.Thresholds {
	return audio.Thresholds{
		FrameSize:               c.FrameSize,
		HopSize:                 c.HopSize,
		MelBands:                c.MelBands,
		Coefficients:            c.Coefficients,
		RolloffFraction:         c.RolloffFraction,
		FlatnessLimit:           c.FlatnessLimit,
		CentroidLow:             c.CentroidLow,
		CentroidHigh:            c.CentroidHigh,
		DiscontinuityFactor:     c.DiscontinuityFactor,
		DiscontinuitySaturation: c.DiscontinuitySaturation,
		VADPercentile:           c.VADPercentile,
		VADMultiplier:           c.VADMultiplier,
		MinSegmentSeconds:       c.MinSegmentSeconds,
		DurationTolerance:       c.DurationTolerance,
	}
}

// Thresholds converts the section into analyzer thresholds.
func (c DocumentConfig) Thresholds() document.Thresholds {
	return document.Thresholds{
		MaxIncrementalUpdates: c.MaxIncrementalUpdates,
		MaxVersions:           c.MaxVersions,
		HiddenCap:             c.HiddenCap,
		IssuePenalty:          c.IssuePenalty,
		MaxIssuePenalty:       c.MaxIssuePenalty,
		MaxInflatedBytes:      c.MaxInflatedBytes,
		MaxStreams:            c.MaxStreams,
	}
}

// Thresholds converts the section into fusion thresholds.
func (c FusionConfig) Thresholds() fusion.Thresholds {
	return fusion.Thresholds{
		VarianceLimit:      c.VarianceLimit,
		DiscrepancyMargin:  c.DiscrepancyMargin,
		InconsistencyBoost: c.InconsistencyBoost,
		HighScore:          c.HighScore,
		LowScore:           c.LowScore,

		VeryHighScore:       c.VeryHighLikelihood,
		HighLikelihood:      c.HighLikelihood,
		MediumLikelihood:    c.MediumLikelihood,
		LowLikelihood:       c.LowLikelihood,
		CriticalForVeryHigh: c.CriticalForVeryHigh,
		HighForHigh:         c.HighForHigh,
	}
}

// MediumWeights returns the configured fusion weights keyed by medium.
// Media without an entry fall back to the engine default.
func (c FusionConfig) MediumWeights() fusion.Weights {
	w := make(fusion.Weights, len(c.Weights))
	for k, v := range c.Weights {
		w[forensics.Medium(k)] = v
	}
	return w
}

// ReadTimeout returns the server read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the server write timeout.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

// AnalysisTimeout returns the per-request analysis deadline. Zero means none.
func (c ServerConfig) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSec) * time.Second
}

// MaxUploadBytes returns the multipart upload limit in bytes.
func (c ServerConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Fusion.Weights = maps.Clone(c.Fusion.Weights)
	return &clone
}

// ApplyEnvOverrides applies VERUM_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	setString("VERUM_LOG_LEVEL", &c.Logging.Level)
	setString("VERUM_LOG_FORMAT", &c.Logging.Format)
	setString("VERUM_LOG_OUTPUT", &c.Logging.Output)
	setString("VERUM_LOG_PATH", &c.Logging.FilePath)
	setString("VERUM_AUDIT_PATH", &c.Logging.AuditPath)
	setString("VERUM_LEDGER_PATH", &c.Ledger.Path)
	setString("VERUM_LEDGER_KEY_PATH", &c.Ledger.KeyPath)
	setString("VERUM_SERVER_ADDR", &c.Server.Addr)
	setString("VERUM_SEAL_ALGORITHM_VERSION", &c.Seal.AlgorithmVersion)

	if v := os.Getenv("VERUM_LEDGER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Ledger.Enabled = b
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}
