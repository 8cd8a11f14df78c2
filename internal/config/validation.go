package config

import (
	"fmt"
	"math"
	"net"
	"regexp"
	"strings"

	"verum/internal/forensics"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

var semver = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// checker accumulates errors for one validation pass.
type checker struct {
	errs ValidationErrors
}

func (c *checker) fail(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) positive(field string, v float64) {
	if math.IsNaN(v) || v <= 0 {
		c.fail(field, "must be positive, got %v", v)
	}
}

func (c *checker) fraction(field string, v float64) {
	if math.IsNaN(v) || v <= 0 || v > 1 {
		c.fail(field, "must be in (0, 1], got %v", v)
	}
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var ck checker

	if c.Version < 1 || c.Version > Version {
		ck.fail("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	validateLogging(&ck, &c.Logging)
	validateImage(&ck, &c.Image)
	validateVideo(&ck, &c.Video)
	validateAudio(&ck, &c.Audio)
	validateDocument(&ck, &c.Document)
	validateFusion(&ck, &c.Fusion)
	validateSeal(&ck, &c.Seal)
	validateLedger(&ck, &c.Ledger)
	validateServer(&ck, &c.Server)

	if len(ck.errs) > 0 {
		return ck.errs
	}
	return nil
}

func validateLogging(ck *checker, l *LoggingConfig) {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		ck.fail("logging.level", "invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		ck.fail("logging.format", "invalid log format: %s (valid: text, json)", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			ck.fail("logging.file_path", "file path is required when output is '%s'", l.Output)
		}
	default:
		ck.fail("logging.output", "invalid log output: %q (valid: stdout, stderr, file, both)", l.Output)
	}

	if l.MaxSizeMB < 1 {
		ck.fail("logging.max_size_mb", "max size must be at least 1 MB")
	}
	if l.MaxBackups < 0 {
		ck.fail("logging.max_backups", "max backups cannot be negative")
	}
}

func validateImage(ck *checker, c *ImageConfig) {
	if c.BlockSize < 2 {
		ck.fail("image.block_size", "must be at least 2, got %d", c.BlockSize)
	}
	ck.positive("image.noise_threshold", c.NoiseThreshold)
	ck.positive("image.anomaly_confidence_at", c.AnomalyConfidenceAt)
	if c.MinAnomalies < 0 {
		ck.fail("image.min_anomalies", "cannot be negative")
	}
	if c.AnomalySaturation < 1 {
		ck.fail("image.anomaly_saturation", "must be at least 1")
	}
}

func validateVideo(ck *checker, c *VideoConfig) {
	if c.SampleInterval < 1 {
		ck.fail("video.sample_interval", "must be at least 1, got %d", c.SampleInterval)
	}
	ck.positive("video.assumed_frame_rate", c.AssumedFrameRate)
	ck.fraction("video.scene_similarity", c.SceneSimilarity)
	ck.fraction("video.gop_tolerance", c.GOPTolerance)
	ck.fraction("video.continuous_similarity", c.ContinuousSimilarity)
	ck.fraction("video.cut_similarity", c.CutSimilarity)
	ck.fraction("video.discontinuity_similarity", c.DiscontinuitySimilarity)
	if c.CutSimilarity > c.ContinuousSimilarity {
		ck.fail("video.cut_similarity", "must not exceed continuous_similarity")
	}
	ck.positive("video.edge_variance", c.EdgeVariance)
	if c.BlockHitSaturation < 1 {
		ck.fail("video.block_hit_saturation", "must be at least 1")
	}
	ck.fraction("video.duplicate_confidence", c.DuplicateConfidence)
	ck.fraction("video.frame_count_tolerance", c.FrameCountTolerance)
}

func validateAudio(ck *checker, c *AudioConfig) {
	if c.FrameSize < 2 {
		ck.fail("audio.frame_size", "must be at least 2, got %d", c.FrameSize)
	}
	if c.HopSize < 1 || c.HopSize > c.FrameSize {
		ck.fail("audio.hop_size", "must be in [1, frame_size], got %d", c.HopSize)
	}
	if c.MelBands < 1 {
		ck.fail("audio.mel_bands", "must be at least 1")
	}
	if c.Coefficients < 1 || c.Coefficients > c.MelBands {
		ck.fail("audio.coefficients", "must be in [1, mel_bands], got %d", c.Coefficients)
	}
	ck.fraction("audio.rolloff_fraction", c.RolloffFraction)
	ck.fraction("audio.flatness_limit", c.FlatnessLimit)
	if c.CentroidLow < 0 || c.CentroidHigh <= c.CentroidLow {
		ck.fail("audio.centroid_high", "centroid range [%v, %v] is empty", c.CentroidLow, c.CentroidHigh)
	}
	ck.positive("audio.discontinuity_factor", c.DiscontinuityFactor)
	if c.DiscontinuitySaturation < 1 {
		ck.fail("audio.discontinuity_saturation", "must be at least 1")
	}
	if c.VADPercentile < 0 || c.VADPercentile > 1 {
		ck.fail("audio.vad_percentile", "must be in [0, 1], got %v", c.VADPercentile)
	}
	ck.positive("audio.vad_multiplier", c.VADMultiplier)
	ck.positive("audio.min_segment_seconds", c.MinSegmentSeconds)
	ck.fraction("audio.duration_tolerance", c.DurationTolerance)
}

func validateDocument(ck *checker, c *DocumentConfig) {
	if c.MaxIncrementalUpdates < 1 {
		ck.fail("document.max_incremental_updates", "must be at least 1")
	}
	if c.MaxVersions < 1 {
		ck.fail("document.max_versions", "must be at least 1")
	}
	if c.HiddenCap < 1 {
		ck.fail("document.hidden_cap", "must be at least 1")
	}
	ck.fraction("document.issue_penalty", c.IssuePenalty)
	ck.fraction("document.max_issue_penalty", c.MaxIssuePenalty)
	if c.MaxInflatedBytes < 1024 {
		ck.fail("document.max_inflated_bytes", "must be at least 1024")
	}
	if c.MaxStreams < 1 {
		ck.fail("document.max_streams", "must be at least 1")
	}
}

func validateFusion(ck *checker, c *FusionConfig) {
	ck.positive("fusion.variance_limit", c.VarianceLimit)
	ck.fraction("fusion.discrepancy_margin", c.DiscrepancyMargin)
	ck.fraction("fusion.inconsistency_boost", c.InconsistencyBoost)
	ck.fraction("fusion.high_score", c.HighScore)
	ck.fraction("fusion.low_score", c.LowScore)
	if c.LowScore >= c.HighScore {
		ck.fail("fusion.low_score", "must be below high_score")
	}
	ck.fraction("fusion.very_high_likelihood", c.VeryHighLikelihood)
	ck.fraction("fusion.high_likelihood", c.HighLikelihood)
	ck.fraction("fusion.medium_likelihood", c.MediumLikelihood)
	ck.fraction("fusion.low_likelihood", c.LowLikelihood)
	if !(c.LowLikelihood < c.MediumLikelihood && c.MediumLikelihood < c.HighLikelihood && c.HighLikelihood < c.VeryHighLikelihood) {
		ck.fail("fusion.likelihood", "cut-offs must increase from low to very_high")
	}
	if c.CriticalForVeryHigh < 1 {
		ck.fail("fusion.critical_for_very_high", "must be at least 1")
	}
	if c.HighForHigh < 1 {
		ck.fail("fusion.high_for_high", "must be at least 1")
	}

	known := make(map[string]bool, len(forensics.Media))
	for _, m := range forensics.Media {
		known[string(m)] = true
	}
	for medium, w := range c.Weights {
		field := "fusion.weights." + medium
		if !known[medium] {
			ck.fail(field, "unknown medium")
			continue
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			ck.fail(field, "weight must be a finite non-negative number, got %v", w)
		}
	}
}

func validateSeal(ck *checker, c *SealConfig) {
	if !semver.MatchString(c.AlgorithmVersion) {
		ck.fail("seal.algorithm_version", "must be a semantic version, got %q", c.AlgorithmVersion)
	}
}

func validateLedger(ck *checker, c *LedgerConfig) {
	if !c.Enabled {
		return
	}
	if c.Path == "" {
		ck.fail("ledger.path", "path is required when the ledger is enabled")
	}
	if c.KeyPath == "" {
		ck.fail("ledger.key_path", "key path is required when the ledger is enabled")
	}
}

func validateServer(ck *checker, c *ServerConfig) {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		ck.fail("server.addr", "invalid listen address %q: %v", c.Addr, err)
	}
	if c.MaxUploadMB < 1 {
		ck.fail("server.max_upload_mb", "must be at least 1")
	}
	if c.ReadTimeoutSec < 0 || c.WriteTimeoutSec < 0 || c.AnalysisTimeoutSec < 0 {
		ck.fail("server.timeouts", "timeouts cannot be negative")
	}
	if c.RateLimit < 0 {
		ck.fail("server.rate_limit", "cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		ck.fail("server.rate_burst", "must be at least 1 when rate limiting is enabled")
	}
}
