package filetranscribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
)

const diarizedOutput = `{
  "jobName": "meeting-standup.m4a",
  "status": "COMPLETED",
  "results": {
    "language_code": "en-US",
    "transcripts": [{"transcript": "Good morning. Morning, shall we start?"}],
    "items": [
      {"start_time": "0.1", "end_time": "0.4", "type": "pronunciation", "speaker_label": "spk_0", "alternatives": [{"confidence": "0.99", "content": "Good"}]},
      {"start_time": "0.4", "end_time": "0.8", "type": "pronunciation", "speaker_label": "spk_0", "alternatives": [{"confidence": "0.99", "content": "morning"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": "."}]},
      {"start_time": "1.2", "end_time": "1.6", "type": "pronunciation", "speaker_label": "spk_1", "alternatives": [{"confidence": "0.98", "content": "Morning"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": ","}]},
      {"start_time": "1.7", "end_time": "1.9", "type": "pronunciation", "speaker_label": "spk_1", "alternatives": [{"confidence": "0.97", "content": "shall"}]},
      {"start_time": "1.9", "end_time": "2.0", "type": "pronunciation", "speaker_label": "spk_1", "alternatives": [{"confidence": "0.97", "content": "we"}]},
      {"start_time": "2.0", "end_time": "2.5", "type": "pronunciation", "speaker_label": "spk_1", "alternatives": [{"confidence": "0.96", "content": "start"}]},
      {"type": "punctuation", "alternatives": [{"confidence": "0.0", "content": "?"}]}
    ]
  }
}`

func TestParseResult(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  error
	}{
		{
			name:     "diarized",
			input:    diarizedOutput,
			expected: "spk_0: Good morning.\nspk_1: Morning, shall we start?",
		},
		{
			name:     "no speaker labels",
			input:    `{"results": {"transcripts": [{"transcript": "Just one voice."}], "items": [{"type": "pronunciation", "alternatives": [{"content": "Just"}]}]}}`,
			expected: "Just one voice.",
		},
		{
			name:    "empty",
			input:   `{"results": {"transcripts": []}}`,
			wantErr: ErrEmptyTranscript,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResult(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Text() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, res.Text())
			}
		})
	}
}

func TestParseResult_Metadata(t *testing.T) {
	res, err := ParseResult(strings.NewReader(diarizedOutput))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LanguageCode != "en-US" {
		t.Errorf("expected en-US, got %s", res.LanguageCode)
	}
	if res.Duration != 2.5 {
		t.Errorf("expected duration 2.5, got %v", res.Duration)
	}
	if len(res.Fragments) != 2 || res.Fragments[1].SpeakerLabel != "spk_1" {
		t.Errorf("unexpected fragments %+v", res.Fragments)
	}
}

func TestParseResult_InvalidJSON(t *testing.T) {
	if _, err := ParseResult(strings.NewReader("{")); err == nil {
		t.Error("expected decode error")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"s3 head 404", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"missing job", &smithy.GenericAPIError{Code: "BadRequestException", Message: "The requested job couldn't be found. Check the job name and try your request again."}, true},
		{"other bad request", &smithy.GenericAPIError{Code: "BadRequestException", Message: "invalid media"}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestJobName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"standup.m4a", "meeting-standup.m4a"},
		{"weekly sync (final).mp3", "meeting-weekly-sync-final-.mp3"},
		{"???", "meeting-media"},
	}
	for _, tt := range tests {
		if got := JobName(tt.in); got != tt.expected {
			t.Errorf("JobName(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestMediaFormat(t *testing.T) {
	if f, err := mediaFormat("a/b/call.M4A"); err != nil || f != types.MediaFormatM4a {
		t.Errorf("expected m4a, got %q %v", f, err)
	}
	if f, err := mediaFormat("voice.opus"); err != nil || f != types.MediaFormatOgg {
		t.Errorf("expected ogg, got %q %v", f, err)
	}
	if _, err := mediaFormat("notes.txt"); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("expected ErrUnsupportedMedia, got %v", err)
	}
}

type fakeObjects struct {
	stored  map[string][]byte
	puts    int
	results map[string]string
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.stored[*in.Key]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &smithy.GenericAPIError{Code: "NotFound"}
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.stored[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	doc, ok := f.results[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(doc)))}, nil
}

// fakeJobs completes a started job after a number of polls.
type fakeJobs struct {
	objects     *fakeObjects
	started     []*transcribe.StartTranscriptionJobInput
	statuses    map[string][]types.TranscriptionJobStatus
	failAfter   bool
	pollsToDone int
}

func (f *fakeJobs) StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error) {
	f.started = append(f.started, in)
	var seq []types.TranscriptionJobStatus
	for i := 0; i < f.pollsToDone; i++ {
		seq = append(seq, types.TranscriptionJobStatusInProgress)
	}
	if f.failAfter {
		seq = append(seq, types.TranscriptionJobStatusFailed)
	} else {
		seq = append(seq, types.TranscriptionJobStatusCompleted)
		f.objects.results[*in.TranscriptionJobName+".json"] = diarizedOutput
	}
	f.statuses[*in.TranscriptionJobName] = seq
	return &transcribe.StartTranscriptionJobOutput{}, nil
}

func (f *fakeJobs) GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error) {
	seq, ok := f.statuses[*in.TranscriptionJobName]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "BadRequestException", Message: "The requested job couldn't be found."}
	}
	status := seq[0]
	if len(seq) > 1 {
		f.statuses[*in.TranscriptionJobName] = seq[1:]
	}
	return &transcribe.GetTranscriptionJobOutput{
		TranscriptionJob: &types.TranscriptionJob{TranscriptionJobStatus: status},
	}, nil
}

func newFakes(pollsToDone int, fail bool) (*fakeObjects, *fakeJobs) {
	objects := &fakeObjects{stored: map[string][]byte{}, results: map[string]string{}}
	jobs := &fakeJobs{objects: objects, statuses: map[string][]types.TranscriptionJobStatus{}, pollsToDone: pollsToDone, failAfter: fail}
	return objects, jobs
}

func writeMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake audio"), 0o600); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestTranscribeFile_UploadsStartsAndPolls(t *testing.T) {
	objects, jobs := newFakes(2, false)
	opts := DefaultOptions("meetings")
	opts.PollInterval = time.Millisecond
	svc := New(objects, jobs, opts)

	path := writeMedia(t, "standup.m4a")
	res, err := svc.TranscribeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Text(), "spk_0: Good morning.") {
		t.Errorf("unexpected text %q", res.Text())
	}
	if string(objects.stored["media/standup.m4a"]) != "fake audio" {
		t.Error("expected media to be uploaded under media/")
	}
	if len(jobs.started) != 1 {
		t.Fatalf("expected 1 job started, got %d", len(jobs.started))
	}
	in := jobs.started[0]
	if *in.Media.MediaFileUri != "s3://meetings/media/standup.m4a" {
		t.Errorf("unexpected media uri %s", *in.Media.MediaFileUri)
	}
	if in.IdentifyLanguage == nil || !*in.IdentifyLanguage || len(in.LanguageOptions) != 2 {
		t.Errorf("expected language identification, got %+v", in)
	}
	if in.Settings == nil || !*in.Settings.ShowSpeakerLabels || *in.Settings.MaxSpeakerLabels != 10 {
		t.Errorf("expected speaker diarization settings, got %+v", in.Settings)
	}

	// Second run reuses the upload and the completed job.
	if _, err := svc.TranscribeFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error on rerun: %v", err)
	}
	if objects.puts != 1 || len(jobs.started) != 1 {
		t.Errorf("expected upload and job reuse, got puts=%d jobs=%d", objects.puts, len(jobs.started))
	}
}

func TestTranscribeFile_ExplicitLanguage(t *testing.T) {
	objects, jobs := newFakes(0, false)
	opts := DefaultOptions("meetings")
	opts.LanguageCode = "ja-JP"
	opts.MaxSpeakers = 0
	opts.PollInterval = time.Millisecond
	svc := New(objects, jobs, opts)

	if _, err := svc.TranscribeFile(context.Background(), writeMedia(t, "call.wav")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := jobs.started[0]
	if in.LanguageCode != types.LanguageCodeJaJp || in.IdentifyLanguage != nil {
		t.Errorf("expected explicit ja-JP, got %+v", in)
	}
	if in.Settings != nil {
		t.Error("expected no diarization settings")
	}
}

func TestTranscribeFile_Errors(t *testing.T) {
	t.Run("no bucket", func(t *testing.T) {
		objects, jobs := newFakes(0, false)
		svc := New(objects, jobs, Options{})
		if _, err := svc.TranscribeFile(context.Background(), "a.mp3"); !errors.Is(err, ErrNoBucket) {
			t.Errorf("expected ErrNoBucket, got %v", err)
		}
	})

	t.Run("job failed", func(t *testing.T) {
		objects, jobs := newFakes(1, true)
		opts := DefaultOptions("meetings")
		opts.PollInterval = time.Millisecond
		svc := New(objects, jobs, opts)
		if _, err := svc.TranscribeFile(context.Background(), writeMedia(t, "x.mp3")); !errors.Is(err, ErrJobFailed) {
			t.Errorf("expected ErrJobFailed, got %v", err)
		}
	})

	t.Run("canceled while polling", func(t *testing.T) {
		objects, jobs := newFakes(1000, false)
		opts := DefaultOptions("meetings")
		opts.PollInterval = time.Hour
		svc := New(objects, jobs, opts)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := svc.TranscribeFile(ctx, writeMedia(t, "x.mp3")); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
