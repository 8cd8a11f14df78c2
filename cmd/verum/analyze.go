package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"verum/internal/engine"
	"verum/internal/fusion"
	"verum/internal/media"
	"verum/internal/video"
)

func cmdAnalyze(c *cli, args []string) error {
	fs := c.newFlagSet("analyze", "analyze [-image f] [-frames dir] [-audio f.wav] [-document f.pdf] [-json]")
	imagePath := fs.String("image", "", "still image (JPEG, PNG, GIF, BMP, TIFF, WebP)")
	framesDir := fs.String("frames", "", "directory of extracted video frames, in file-name order")
	frameRate := fs.Float64("frame-rate", 0, "declared video frame rate")
	codec := fs.String("codec", "", "declared video codec")
	audioPath := fs.String("audio", "", "PCM WAV recording")
	documentPath := fs.String("document", "", "PDF document")
	asJSON := fs.Bool("json", false, "print the full report as JSON")
	timeout := fs.Duration("timeout", 0, "abandon the analysis after this long (0 = no limit)")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ev, err := loadEvidence(media.NewDecoder(), *imagePath, *framesDir, *audioPath, *documentPath)
	if err != nil {
		return err
	}
	if ev.Video != nil {
		ev.Video.Metadata.FrameRate = *frameRate
		ev.Video.Metadata.Codec = *codec
	}

	ctx := c.ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	report, err := engine.New(cfg, engine.WithLogger(logger)).Run(ctx, ev)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(c.stdout, "Run %s (%s)\n\n", report.RunID, report.Duration.Round(time.Millisecond))
	fusion.PrintReport(c.stdout, report.Fusion)
	return nil
}

func loadEvidence(d *media.Decoder, imagePath, framesDir, audioPath, documentPath string) (*engine.Evidence, error) {
	ev := &engine.Evidence{}
	if imagePath != "" {
		img, err := d.LoadImage(imagePath)
		if err != nil {
			return nil, err
		}
		ev.Image = &engine.ImageInput{Pixels: img.Pixels, Tags: img.Tags}
	}
	if framesDir != "" {
		frames, err := d.LoadFrames(framesDir)
		if err != nil {
			return nil, err
		}
		ev.Video = &engine.VideoInput{
			Frames:   frames,
			Metadata: video.Metadata{Width: frames[0].Width, Height: frames[0].Height},
		}
	}
	if audioPath != "" {
		a, err := media.LoadWAV(audioPath)
		if err != nil {
			return nil, err
		}
		ev.Audio = &engine.AudioInput{Samples: a.Samples, Metadata: a.Metadata()}
	}
	if documentPath != "" {
		data, err := os.ReadFile(documentPath)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		ev.Document = &engine.DocumentInput{Data: data}
	}
	return ev, nil
}

func cmdCompareSpeakers(c *cli, args []string) error {
	fs := c.newFlagSet("compare-speakers", "compare-speakers <first.wav> <second.wav>")
	paths, err := parse(fs, args)
	if err != nil {
		return err
	}
	if len(paths) != 2 {
		fs.Usage()
		return errUsage
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	first, err := media.LoadWAV(paths[0])
	if err != nil {
		return err
	}
	second, err := media.LoadWAV(paths[1])
	if err != nil {
		return err
	}
	if first.SampleRate != second.SampleRate {
		return fmt.Errorf("sample rates differ: %d Hz and %d Hz", first.SampleRate, second.SampleRate)
	}

	similarity := engine.New(cfg).CompareSpeakers(first.Samples, second.Samples, first.SampleRate)
	fmt.Fprintf(c.stdout, "Similarity: %.4f\n", similarity)
	return nil
}
