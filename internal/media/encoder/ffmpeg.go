package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"rinkreel/internal/logging"
	"rinkreel/internal/services"
)

// FFmpeg runs the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	workDir    string
	logger     *slog.Logger
}

// NewFFmpeg builds an encoder using the given binaries. workDir holds
// temporary concat lists and subtitle files.
func NewFFmpeg(ffmpegBin, ffprobeBin, workDir string, logger *slog.Logger) *FFmpeg {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpeg{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		workDir:    workDir,
		logger:     logger.With(logging.String(logging.FieldComponent, "encoder")),
	}
}

var _ Encoder = (*FFmpeg)(nil)

// Concat joins the inputs with the concat demuxer, re-encoding to a uniform
// H.264/AAC MP4 so segments from different feed chunks always splice cleanly.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, outputPath string) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrValidation, "assemble", "concat", "no input segments to join", nil)
	}
	for _, input := range inputs {
		if _, err := os.Stat(input); err != nil {
			return services.Wrap(services.ErrValidation, "assemble", "concat",
				fmt.Sprintf("missing segment file %s", input), err)
		}
	}

	listPath := filepath.Join(f.workDir, "concat_"+filepath.Base(outputPath)+".txt")
	if err := writeConcatList(listPath, inputs); err != nil {
		return services.Wrap(services.ErrInternal, "assemble", "concat", "writing concat list", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		outputPath,
	}
	return f.runFFmpeg(ctx, "assemble", args)
}

// BurnCaptions renders captions into the video via a temporary SRT file and
// the subtitles filter. Audio passes through untouched.
func (f *FFmpeg) BurnCaptions(ctx context.Context, inputPath string, captions []Caption, outputPath string) error {
	if len(captions) == 0 {
		return services.Wrap(services.ErrValidation, "overlay", "captions", "no captions to render", nil)
	}

	srtPath := filepath.Join(f.workDir, "captions_"+filepath.Base(outputPath)+".srt")
	if err := os.WriteFile(srtPath, []byte(FormatSRT(captions)), 0o644); err != nil {
		return services.Wrap(services.ErrInternal, "overlay", "captions", "writing subtitle file", err)
	}
	defer os.Remove(srtPath)

	filter := fmt.Sprintf(
		"subtitles=%s:force_style='FontSize=24,PrimaryColour=&Hffffff,OutlineColour=&H000000,BackColour=&H80000000,Bold=1'",
		escapeFilterPath(srtPath))
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
	return f.runFFmpeg(ctx, "overlay", args)
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe inspects a media file with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.ffprobeBin,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "probe", "ffprobe",
			strings.TrimSpace(string(output)), err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "probe", "parse", "decoding ffprobe output", err)
	}

	result := &ProbeResult{}
	if seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		result.DurationMS = int64(seconds * 1000)
	}
	if size, err := strconv.ParseInt(parsed.Format.Size, 10, 64); err == nil {
		result.SizeBytes = size
	}
	for _, stream := range parsed.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			result.Width = stream.Width
			result.Height = stream.Height
			break
		}
	}
	return result, nil
}

func (f *FFmpeg) runFFmpeg(ctx context.Context, step string, args []string) error {
	f.logger.Debug("running ffmpeg", logging.String("step", step))
	cmd := exec.CommandContext(ctx, f.ffmpegBin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, step, "ffmpeg",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}

// writeConcatList emits the concat demuxer's file list. Single quotes in
// paths are escaped the way the demuxer expects.
func writeConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// escapeFilterPath escapes a path for use inside an ffmpeg filter argument.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
	)
	return replacer.Replace(path)
}
