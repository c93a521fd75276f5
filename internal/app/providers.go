package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"meeting-minutes-service/internal/config"
	"meeting-minutes-service/internal/service/stt"
	awsstt "meeting-minutes-service/internal/service/stt/aws"
	"meeting-minutes-service/internal/service/stt/google"
	"meeting-minutes-service/internal/service/stt/mock"
)

// Supported STT providers.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
	ProviderAWS    = "aws"
)

// NewSTTFactory returns the adapter factory for the configured provider.
// awsCfg is only used by the aws provider.
func NewSTTFactory(cfg config.STTConfig, awsCfg aws.Config) (stt.Factory, error) {
	switch cfg.Provider {
	case "", ProviderMock:
		return func(ctx context.Context) (stt.Adapter, error) {
			return mock.New(), nil
		}, nil

	case ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = orDefault(cfg.LanguageCode, gcfg.LanguageCode)
		gcfg.AudioEncoding = orDefault(cfg.AudioEncoding, gcfg.AudioEncoding)
		gcfg.InterimResults = cfg.InterimResults
		if cfg.SampleRateHz > 0 {
			gcfg.SampleRateHz = cfg.SampleRateHz
		}
		return func(ctx context.Context) (stt.Adapter, error) {
			return google.New(ctx, gcfg)
		}, nil

	case ProviderAWS:
		acfg := awsstt.DefaultConfig()
		acfg.LanguageCode = orDefault(cfg.LanguageCode, acfg.LanguageCode)
		acfg.AudioEncoding = orDefault(cfg.AudioEncoding, acfg.AudioEncoding)
		if cfg.SampleRateHz > 0 {
			acfg.SampleRateHz = cfg.SampleRateHz
		}
		return func(ctx context.Context) (stt.Adapter, error) {
			return awsstt.New(awsCfg, acfg), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
