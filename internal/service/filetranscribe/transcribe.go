// Package filetranscribe turns a recorded media file into transcript
// fragments using an AWS Transcribe batch job.
package filetranscribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/observability/logging"
)

var (
	// ErrNoBucket is returned when no media bucket is configured.
	ErrNoBucket = errors.New("media bucket not configured")
	// ErrJobFailed is returned when the transcription job ends in FAILED.
	ErrJobFailed = errors.New("transcription job failed")
	// ErrUnsupportedMedia is returned for file extensions Transcribe cannot read.
	ErrUnsupportedMedia = errors.New("unsupported media format")
)

// ObjectAPI is the subset of the S3 client used for media and results.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// JobAPI is the subset of the Transcribe client used for batch jobs.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// Options configures a Service.
type Options struct {
	Bucket string
	// LanguageCode is a BCP-47 code; "" or "auto" lets Transcribe identify
	// the language among LanguageOptions.
	LanguageCode    string
	LanguageOptions []string
	MaxSpeakers     int
	PollInterval    time.Duration
	// Force re-uploads the media and starts a new, timestamped job.
	Force bool
}

// DefaultOptions returns options for bucket with speaker diarization on.
func DefaultOptions(bucket string) Options {
	return Options{
		Bucket:          bucket,
		LanguageOptions: []string{"en-US", "ja-JP"},
		MaxSpeakers:     10,
		PollInterval:    10 * time.Second,
	}
}

// Service uploads media, runs the batch job and parses its result.
type Service struct {
	objects ObjectAPI
	jobs    JobAPI
	opts    Options
	logger  zerolog.Logger
}

// New creates a Service over the given clients.
func New(objects ObjectAPI, jobs JobAPI, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	return &Service{
		objects: objects,
		jobs:    jobs,
		opts:    opts,
		logger:  logging.WithComponent("filetranscribe"),
	}
}

// NewFromConfig creates a Service with S3 and Transcribe clients built from cfg.
func NewFromConfig(cfg aws.Config, opts Options) *Service {
	return New(s3.NewFromConfig(cfg), transcribe.NewFromConfig(cfg), opts)
}

// TranscribeFile transcribes the media file at path. The media is stored
// under media/<file name> and the job is named after the file, so a second
// call for the same file reuses the earlier upload and job.
func (s *Service) TranscribeFile(ctx context.Context, path string) (Result, error) {
	if s.opts.Bucket == "" {
		return Result{}, ErrNoBucket
	}
	format, err := mediaFormat(path)
	if err != nil {
		return Result{}, err
	}

	base := filepath.Base(path)
	mediaKey := "media/" + base
	jobName := JobName(base)
	if s.opts.Force {
		jobName = fmt.Sprintf("%s-%d", jobName, time.Now().Unix())
	}
	logger := s.logger.With().Str("jobName", jobName).Str("mediaKey", mediaKey).Logger()

	if err := s.ensureUploaded(ctx, mediaKey, path); err != nil {
		return Result{}, fmt.Errorf("upload media: %w", err)
	}
	if err := s.ensureJob(ctx, logger, jobName, mediaKey, format); err != nil {
		return Result{}, err
	}

	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(jobName + ".json"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("download transcript: %w", err)
	}
	defer out.Body.Close()

	res, err := ParseResult(out.Body)
	if err != nil {
		return Result{}, err
	}
	logger.Info().Int("fragments", len(res.Fragments)).Msg("File transcription complete")
	return res, nil
}

func (s *Service) ensureUploaded(ctx context.Context, key, path string) error {
	if !s.opts.Force {
		_, err := s.objects.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			s.logger.Debug().Str("mediaKey", key).Msg("Media already uploaded")
			return nil
		}
		if !IsNotFound(err) {
			return err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

func (s *Service) ensureJob(ctx context.Context, logger zerolog.Logger, jobName, mediaKey string, format types.MediaFormat) error {
	status, err := s.jobStatus(ctx, jobName)
	switch {
	case err == nil:
		logger.Info().Str("status", string(status)).Msg("Transcription job already exists")
	case IsNotFound(err):
		if err := s.startJob(ctx, jobName, mediaKey, format); err != nil {
			return fmt.Errorf("start transcription job: %w", err)
		}
		logger.Info().Msg("Transcription job started")
		status = types.TranscriptionJobStatusInProgress
	default:
		return fmt.Errorf("get transcription job: %w", err)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		switch status {
		case types.TranscriptionJobStatusCompleted:
			return nil
		case types.TranscriptionJobStatusFailed:
			return fmt.Errorf("%w: %s", ErrJobFailed, jobName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err = s.jobStatus(ctx, jobName)
		if err != nil {
			return fmt.Errorf("get transcription job: %w", err)
		}
		logger.Debug().Str("status", string(status)).Msg("Transcription job polled")
	}
}

func (s *Service) jobStatus(ctx context.Context, jobName string) (types.TranscriptionJobStatus, error) {
	out, err := s.jobs.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return "", err
	}
	if out.TranscriptionJob == nil {
		return "", &smithy.GenericAPIError{Code: "NotFoundException", Message: "empty job description"}
	}
	job := out.TranscriptionJob
	if job.TranscriptionJobStatus == types.TranscriptionJobStatusFailed && job.FailureReason != nil {
		s.logger.Warn().Str("jobName", jobName).Str("reason", *job.FailureReason).Msg("Transcription job failed")
	}
	return job.TranscriptionJobStatus, nil
}

func (s *Service) startJob(ctx context.Context, jobName, mediaKey string, format types.MediaFormat) error {
	uri := fmt.Sprintf("s3://%s/%s", s.opts.Bucket, mediaKey)
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		MediaFormat:          format,
		Media:                &types.Media{MediaFileUri: aws.String(uri)},
		OutputBucketName:     aws.String(s.opts.Bucket),
	}

	if code := s.opts.LanguageCode; code == "" || code == "auto" {
		in.IdentifyLanguage = aws.Bool(true)
		for _, l := range s.opts.LanguageOptions {
			in.LanguageOptions = append(in.LanguageOptions, types.LanguageCode(l))
		}
	} else {
		in.LanguageCode = types.LanguageCode(code)
	}

	if s.opts.MaxSpeakers > 1 {
		in.Settings = &types.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(int32(s.opts.MaxSpeakers)),
		}
	}

	_, err := s.jobs.StartTranscriptionJob(ctx, in)
	return err
}

var jobNameInvalid = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

// JobName derives a Transcribe job name from a file name.
func JobName(fileName string) string {
	name := jobNameInvalid.ReplaceAllString(fileName, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "media"
	}
	if len(name) > 180 {
		name = name[:180]
	}
	return "meeting-" + name
}

func mediaFormat(path string) (types.MediaFormat, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "mp3", "mp4", "wav", "flac", "ogg", "amr", "webm", "m4a":
		return types.MediaFormat(ext), nil
	case "oga", "opus":
		return types.MediaFormatOgg, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, filepath.Ext(path))
}

// IsNotFound reports whether err from S3 or Transcribe means the object or
// job does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFoundException", "NotFound", "NoSuchKey", "404":
			return true
		case "BadRequestException":
			return strings.Contains(apiErr.ErrorMessage(), "couldn't be found")
		}
	}
	return strings.Contains(err.Error(), "NotFound:")
}
