package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"verum/internal/engine"
	"verum/internal/health"
	"verum/internal/ledger"
	"verum/internal/media"
	"verum/internal/seal"
	"verum/internal/security"
	"verum/internal/video"
)

// Form fields.
const (
	fieldImage    = "image"
	fieldFrames   = "frames"
	fieldAudio    = "audio"
	fieldDocument = "document"
	fieldContent  = "content"
	fieldSeal     = "seal"
	fieldMetadata = "metadata"
	fieldFirst    = "first"
	fieldSecond   = "second"
)

const multipartMemory = 32 << 20

var errMissingField = errors.New("missing form field")

// parseMultipart bounds the body and parses the form.
func parseMultipart(c *gin.Context, limit int64) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("request exceeds %d bytes", limit))
			return false
		}
		abort(c, http.StatusBadRequest, "invalid_form", "expected multipart/form-data: "+err.Error())
		return false
	}
	return true
}

func readHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formFile returns the named upload, or errMissingField when absent.
func formFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, fmt.Errorf("%w: %s", errMissingField, field)
	}
	if err != nil {
		return nil, err
	}
	return readHeader(fh)
}

func optionalFile(c *gin.Context, field string) ([]byte, bool, error) {
	data, err := formFile(c, field)
	if errors.Is(err, errMissingField) {
		return nil, false, nil
	}
	return data, err == nil, err
}

// formMetadata parses a JSON object of string pairs from field. An absent
// field yields ok == false.
func formMetadata(c *gin.Context, field string) (kv map[string]string, ok bool, err error) {
	raw, present := c.GetPostForm(field)
	if !present || raw == "" {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &kv); err != nil {
		return nil, false, fmt.Errorf("%s: %w", field, err)
	}
	for k, v := range kv {
		if err := security.ValidateLabel(k); err != nil {
			return nil, false, fmt.Errorf("%s key: %w", field, err)
		}
		if err := security.ValidateLabel(v); err != nil {
			return nil, false, fmt.Errorf("%s[%q]: %w", field, k, err)
		}
	}
	if kv == nil {
		kv = map[string]string{}
	}
	return kv, true, nil
}

func decodeWAV(data []byte) (*media.Audio, error) {
	return media.DecodeWAV(bytes.NewReader(data))
}

// evidence builds engine input from the uploaded media.
func (s *Server) evidence(c *gin.Context) (*engine.Evidence, error) {
	ev := &engine.Evidence{}

	if data, ok, err := optionalFile(c, fieldImage); err != nil {
		return nil, err
	} else if ok {
		img, err := s.decoder.DecodeImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldImage, err)
		}
		ev.Image = &engine.ImageInput{Pixels: img.Pixels, Tags: img.Tags}
	}

	if headers := c.Request.MultipartForm.File[fieldFrames]; len(headers) > 0 {
		vi, err := s.frames(c, headers)
		if err != nil {
			return nil, err
		}
		ev.Video = vi
	}

	if data, ok, err := optionalFile(c, fieldAudio); err != nil {
		return nil, err
	} else if ok {
		a, err := decodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldAudio, err)
		}
		ev.Audio = &engine.AudioInput{Samples: a.Samples, Metadata: a.Metadata()}
	}

	if data, ok, err := optionalFile(c, fieldDocument); err != nil {
		return nil, err
	} else if ok {
		ev.Document = &engine.DocumentInput{Data: data}
	}
	return ev, nil
}

// frames decodes uploaded frames in file-name order.
func (s *Server) frames(c *gin.Context, headers []*multipart.FileHeader) (*engine.VideoInput, error) {
	sorted := append([]*multipart.FileHeader(nil), headers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	vi := &engine.VideoInput{Metadata: video.Metadata{Codec: c.PostForm("codec")}}
	if raw := c.PostForm("frame_rate"); raw != "" {
		fps, err := strconv.ParseFloat(raw, 64)
		if err != nil || fps <= 0 {
			return nil, fmt.Errorf("frame_rate: invalid value %q", raw)
		}
		vi.Metadata.FrameRate = fps
	}
	for _, fh := range sorted {
		data, err := readHeader(fh)
		if err != nil {
			return nil, err
		}
		img, err := s.decoder.DecodeImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", fieldFrames, fh.Filename, err)
		}
		vi.Frames = append(vi.Frames, img.Pixels)
	}
	vi.Metadata.Width = vi.Frames[0].Width
	vi.Metadata.Height = vi.Frames[0].Height
	return vi, nil
}

func (s *Server) handleEvidence(c *gin.Context) {
	st := s.state.Load()
	if !parseMultipart(c, st.maxUpload) {
		return
	}
	ev, err := s.evidence(c)
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, "invalid_media", err.Error())
		return
	}

	ctx := c.Request.Context()
	if st.analysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.analysisTimeout)
		defer cancel()
	}
	report, err := st.engine.Run(ctx, ev)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			abort(c, http.StatusGatewayTimeout, "analysis_timeout", err.Error())
			return
		}
		abort(c, http.StatusServiceUnavailable, "analysis_abandoned", err.Error())
		return
	}

	names := make([]string, len(report.Media))
	for i, m := range report.Media {
		names[i] = string(m)
	}
	_ = s.audit.LogAnalysis(ctx, report.RunID, string(report.Fusion.Likelihood), report.Fusion.OverallScore, names)
	c.JSON(http.StatusOK, report)
}

// SealResponse is returned by the seal endpoint.
type SealResponse struct {
	Seal     *seal.Seal `json:"seal"`
	RecordID string     `json:"record_id,omitempty"`
	Footer   string     `json:"footer"`
}

func (s *Server) handleSeal(c *gin.Context) {
	st := s.state.Load()
	if !parseMultipart(c, st.maxUpload) {
		return
	}
	ctx := c.Request.Context()

	content, err := formFile(c, fieldContent)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	meta := seal.Metadata{
		CaseLabel: c.PostForm("case_label"),
		Device: seal.Device{
			Manufacturer: c.PostForm("manufacturer"),
			Model:        c.PostForm("model"),
			OSVersion:    c.PostForm("os_version"),
		},
	}
	for _, v := range []string{meta.CaseLabel, meta.Device.Manufacturer, meta.Device.Model, meta.Device.OSVersion} {
		if err := security.ValidateLabel(v); err != nil {
			abort(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	if meta.KV, _, err = formMetadata(c, fieldMetadata); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sl, err := st.sealer.Seal(content, meta)
	s.metrics.RecordSeal(err)
	if err != nil {
		_ = s.audit.LogSeal(ctx, meta.CaseLabel, seal.ContentHash(content), err)
		s.logger.WithContext(ctx).Error("seal failed", "error", err)
		abort(c, http.StatusInternalServerError, "seal_failed", "could not seal content")
		return
	}
	_ = s.audit.LogSeal(ctx, sl.CaseLabel, sl.ContentHash, nil)

	resp := SealResponse{Seal: sl, Footer: seal.Footer(sl)}
	if s.ledger != nil {
		rec, err := s.ledger.Append(ctx, sl)
		if err != nil {
			_ = s.audit.LogLedger(ctx, "append", "", err)
			s.logger.WithContext(ctx).Error("ledger append failed", "error", err)
			abort(c, http.StatusInternalServerError, "ledger_failed", "sealed but could not record in ledger")
			return
		}
		_ = s.audit.LogLedger(ctx, "append", rec.ID, nil)
		resp.RecordID = rec.ID
	}
	c.JSON(http.StatusCreated, resp)
}

// handleVerify checks uploaded content against a seal. Without a metadata
// field the seal's own key-value set is checked.
func (s *Server) handleVerify(c *gin.Context) {
	st := s.state.Load()
	if !parseMultipart(c, st.maxUpload) {
		return
	}
	ctx := c.Request.Context()

	raw, err := formFile(c, fieldSeal)
	if errors.Is(err, errMissingField) {
		raw, err = []byte(c.PostForm(fieldSeal)), nil
	}
	if err != nil || len(raw) == 0 {
		abort(c, http.StatusBadRequest, "invalid_request", "missing seal document")
		return
	}
	sl, err := seal.Decode(raw)
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, "invalid_seal", err.Error())
		return
	}
	content, err := formFile(c, fieldContent)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	kv, ok, err := formMetadata(c, fieldMetadata)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !ok {
		kv = sl.MetadataKV
	}

	result := seal.Verify(sl, content, kv)
	s.metrics.RecordVerification(result.OverallValid)
	_ = s.audit.LogVerification(ctx, sl.CaseLabel, sl.ContentHash, result.ContentIntact, result.MetadataIntact, result.SignatureIntact)
	c.JSON(http.StatusOK, result)
}

// SpeakerComparison is returned by the speaker comparison endpoint.
type SpeakerComparison struct {
	Similarity float64 `json:"similarity"`
	SampleRate int     `json:"sample_rate"`
}

func (s *Server) handleCompareSpeakers(c *gin.Context) {
	st := s.state.Load()
	if !parseMultipart(c, st.maxUpload) {
		return
	}
	var clips [2]*media.Audio
	for i, field := range []string{fieldFirst, fieldSecond} {
		data, err := formFile(c, field)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if clips[i], err = decodeWAV(data); err != nil {
			abort(c, http.StatusUnprocessableEntity, "invalid_media", fmt.Sprintf("%s: %v", field, err))
			return
		}
	}
	if clips[0].SampleRate != clips[1].SampleRate {
		abort(c, http.StatusUnprocessableEntity, "invalid_media",
			fmt.Sprintf("sample rates differ: %d and %d", clips[0].SampleRate, clips[1].SampleRate))
		return
	}
	c.JSON(http.StatusOK, SpeakerComparison{
		Similarity: st.engine.CompareSpeakers(clips[0].Samples, clips[1].Samples, clips[0].SampleRate),
		SampleRate: clips[0].SampleRate,
	})
}

func (s *Server) requireLedger(c *gin.Context) bool {
	if s.ledger == nil {
		abort(c, http.StatusServiceUnavailable, "ledger_disabled", "ledger is not enabled")
		return false
	}
	return true
}

func (s *Server) handleLedgerGet(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", "record id must be a UUID")
		return
	}
	rec, err := s.ledger.Get(c.Request.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleLedgerSearch lists records by ?case= or ?hash=.
func (s *Server) handleLedgerSearch(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	ctx := c.Request.Context()

	var (
		records []ledger.Record
		err     error
	)
	switch caseLabel, hash := c.Query("case"), c.Query("hash"); {
	case hash != "":
		if err := security.ValidateHexString(hash, 128); err != nil {
			abort(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		records, err = s.ledger.FindByContentHash(ctx, hash)
	case caseLabel != "":
		if err := security.ValidateLabel(caseLabel); err != nil {
			abort(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		records, err = s.ledger.ListByCase(ctx, caseLabel)
	default:
		abort(c, http.StatusBadRequest, "invalid_request", "one of case or hash is required")
		return
	}
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleLedgerStats(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	st, err := s.ledger.Stats(c.Request.Context())
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleLedgerVerify(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	ctx := c.Request.Context()
	v, err := s.ledger.Verify(ctx)
	_ = s.audit.LogLedger(ctx, "verify", "", err)
	if errors.Is(err, ledger.ErrIntegrity) {
		abort(c, http.StatusConflict, "integrity_failure", err.Error())
		return
	}
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) ledgerError(c *gin.Context, err error) {
	s.logger.WithContext(c.Request.Context()).Error("ledger query failed", "error", err)
	abort(c, http.StatusInternalServerError, "ledger_failed", "ledger query failed")
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.Report(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
